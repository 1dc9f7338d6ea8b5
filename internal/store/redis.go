package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"orderscout/internal/logging"
)

// Redis keeps the seen set and keyword sets in Redis, one set per
// identity. Subscriptions stay in SQLite even on this backend, so Redis
// only carries the high-churn data.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects and verifies the server answers.
func OpenRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	logging.Store("redis store connected to %s db %d", addr, db)
	return &Redis{client: client}, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func seenKey(identity string) string     { return "orderscout:seen:" + identity }
func keywordsKey(identity string) string { return "orderscout:keywords:" + identity }

// MarkSeen records order ids as delivered to identity.
func (r *Redis) MarkSeen(ctx context.Context, identity string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := r.client.SAdd(ctx, seenKey(identity), members...).Err(); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Seen returns every order id already delivered to identity.
func (r *Redis) Seen(ctx context.Context, identity string) (map[string]struct{}, error) {
	ids, err := r.client.SMembers(ctx, seenKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("seen lookup: %w", err)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// AddKeyword saves a keyword to the identity's set.
func (r *Redis) AddKeyword(ctx context.Context, identity, keyword string) error {
	if err := r.client.SAdd(ctx, keywordsKey(identity), keyword).Err(); err != nil {
		return fmt.Errorf("add keyword: %w", err)
	}
	return nil
}

// RemoveKeyword deletes a keyword from the identity's set.
func (r *Redis) RemoveKeyword(ctx context.Context, identity, keyword string) error {
	if err := r.client.SRem(ctx, keywordsKey(identity), keyword).Err(); err != nil {
		return fmt.Errorf("remove keyword: %w", err)
	}
	return nil
}

// Keywords lists the identity's saved keywords. Redis sets are
// unordered, callers wanting stable order sort themselves.
func (r *Redis) Keywords(ctx context.Context, identity string) ([]string, error) {
	kws, err := r.client.SMembers(ctx, keywordsKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("keywords lookup: %w", err)
	}
	return kws, nil
}
