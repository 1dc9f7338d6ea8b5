package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orderscout/internal/config"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSeenRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "79001234567")
	require.NoError(t, err)
	require.Empty(t, seen)

	require.NoError(t, s.MarkSeen(ctx, "79001234567", []string{"order-1", "order-2"}))

	seen, err = s.Seen(ctx, "79001234567")
	require.NoError(t, err)
	require.Len(t, seen, 2)
	_, ok := seen["order-1"]
	require.True(t, ok)

	// Other identities see nothing.
	other, err := s.Seen(ctx, "79009999999")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.MarkSeen(ctx, "id", []string{"order-1"}))
	require.NoError(t, s.MarkSeen(ctx, "id", []string{"order-1", "order-2"}))

	seen, err := s.Seen(ctx, "id")
	require.NoError(t, err)
	require.Len(t, seen, 2)
}

func TestMarkSeenEmptyNoop(t *testing.T) {
	s := openTestDB(t)
	require.NoError(t, s.MarkSeen(context.Background(), "id", nil))
}

func TestKeywordsLifecycle(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.AddKeyword(ctx, "id", "юрист"))
	require.NoError(t, s.AddKeyword(ctx, "id", "бухгалтер"))
	require.NoError(t, s.AddKeyword(ctx, "id", "юрист")) // duplicate ignored

	kws, err := s.Keywords(ctx, "id")
	require.NoError(t, err)
	require.Equal(t, []string{"юрист", "бухгалтер"}, kws)

	require.NoError(t, s.RemoveKeyword(ctx, "id", "юрист"))
	kws, err = s.Keywords(ctx, "id")
	require.NoError(t, err)
	require.Equal(t, []string{"бухгалтер"}, kws)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, ok, err := s.SubscriptionUntil(ctx, "id")
	require.NoError(t, err)
	require.False(t, ok)

	until := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	require.NoError(t, s.GrantSubscription(ctx, "id", until))

	got, ok, err := s.SubscriptionUntil(ctx, "id")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Equal(until), "got %s want %s", got, until)

	// Upsert replaces the expiry.
	later := until.Add(24 * time.Hour)
	require.NoError(t, s.GrantSubscription(ctx, "id", later))
	got, _, err = s.SubscriptionUntil(ctx, "id")
	require.NoError(t, err)
	require.True(t, got.Equal(later))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongodb"})
	require.Error(t, err)
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{
		SQLitePath: filepath.Join(t.TempDir(), "default.db"),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
