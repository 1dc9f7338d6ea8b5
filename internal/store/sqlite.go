// Package store persists per-identity state: delivered order ids,
// saved keyword sets and subscription expiry. Two backends exist, an
// embedded SQLite file and Redis for multi-instance deployments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"orderscout/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen_orders (
	identity  TEXT NOT NULL,
	order_id  TEXT NOT NULL,
	seen_at   INTEGER NOT NULL,
	PRIMARY KEY (identity, order_id)
);
CREATE TABLE IF NOT EXISTS keywords (
	identity  TEXT NOT NULL,
	keyword   TEXT NOT NULL,
	PRIMARY KEY (identity, keyword)
);
CREATE TABLE IF NOT EXISTS subscriptions (
	identity      TEXT PRIMARY KEY,
	active_until  INTEGER NOT NULL
);
`

// SQLite is the embedded backend.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes itself, a single connection
	// avoids SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logging.Store("sqlite store open at %s", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// MarkSeen records order ids as delivered. Already-known ids are kept
// with their original timestamp.
func (s *SQLite) MarkSeen(ctx context.Context, identity string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO seen_orders (identity, order_id, seen_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, identity, id, now); err != nil {
			return fmt.Errorf("mark seen %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Seen returns every order id already delivered to identity.
func (s *SQLite) Seen(ctx context.Context, identity string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id FROM seen_orders WHERE identity = ?`, identity)
	if err != nil {
		return nil, fmt.Errorf("seen lookup: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = struct{}{}
	}
	return seen, rows.Err()
}

// AddKeyword saves a keyword to the identity's set.
func (s *SQLite) AddKeyword(ctx context.Context, identity, keyword string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO keywords (identity, keyword) VALUES (?, ?)`, identity, keyword)
	if err != nil {
		return fmt.Errorf("add keyword: %w", err)
	}
	return nil
}

// RemoveKeyword deletes a keyword from the identity's set.
func (s *SQLite) RemoveKeyword(ctx context.Context, identity, keyword string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM keywords WHERE identity = ? AND keyword = ?`, identity, keyword)
	if err != nil {
		return fmt.Errorf("remove keyword: %w", err)
	}
	return nil
}

// Keywords lists the identity's saved keywords in insertion order.
func (s *SQLite) Keywords(ctx context.Context, identity string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword FROM keywords WHERE identity = ? ORDER BY rowid`, identity)
	if err != nil {
		return nil, fmt.Errorf("keywords lookup: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

// SubscriptionUntil returns the identity's paid-until time. ok is false
// when the identity was never granted anything.
func (s *SQLite) SubscriptionUntil(ctx context.Context, identity string) (time.Time, bool, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT active_until FROM subscriptions WHERE identity = ?`, identity).Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("subscription lookup: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

// GrantSubscription sets the identity's paid-until time.
func (s *SQLite) GrantSubscription(ctx context.Context, identity string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (identity, active_until) VALUES (?, ?)
		 ON CONFLICT (identity) DO UPDATE SET active_until = excluded.active_until`,
		identity, until.Unix())
	if err != nil {
		return fmt.Errorf("grant subscription: %w", err)
	}
	return nil
}
