package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:            filepath.Join(t.TempDir(), "parley.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

func TestNewClientAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testConfig(t))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	for _, table := range []string{"negotiation_state", "audit_log", "thread_ownership", "watch_state"} {
		var name string
		err := client.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
		assert.Equal(t, table, name)
	}
}

func TestNewClientEnablesWAL(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testConfig(t))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	var mode string
	require.NoError(t, client.DB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestNewClientIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	_, err = client.DB().ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, kind, influencer_name, thread_id, state, payload_snippet)
		 VALUES ('2026-08-01T00:00:00Z', 'received', 'Dana Park', 'thread-1', 'counter_received', 'hello')`)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	// Reopening the same file must not reapply migrations or lose rows.
	client, err = NewClient(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	var count int
	require.NoError(t, client.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestNewClientRequiresPath(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testConfig(t))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	status, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "wal", status.JournalMode)
	assert.Equal(t, 4, status.MaxOpenConns)
}
