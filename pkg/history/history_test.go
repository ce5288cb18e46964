package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/prism-subprocess/pkg/subprocess"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestOpen_PragmasOnEveryConnection tests that pooled connections all carry
// the lock timeout and sync mode
func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var conns []*sql.Conn
	for i := 0; i < 3; i++ {
		conn, err := s.db.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	for i, conn := range conns {
		var busy, syncMode int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&syncMode))
		assert.Equal(t, 5000, busy, "connection %d", i)
		assert.Equal(t, 1, syncMode, "connection %d should be NORMAL", i)

		var mode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode, "connection %d", i)
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	for i, name := range []string{"first", "second", "third"} {
		_, err := s.Record(ctx, Entry{
			Name:       name,
			Args:       []string{"echo", name},
			ReturnCode: i,
			Duration:   time.Duration(i+1) * time.Second,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "third", entries[0].Name)
	assert.Equal(t, "second", entries[1].Name)
	assert.Equal(t, []string{"echo", "third"}, entries[0].Args)
	assert.Equal(t, 2, entries[0].ReturnCode)
	assert.Equal(t, 3*time.Second, entries[0].Duration)
	assert.True(t, base.Add(2*time.Minute).Equal(entries[0].StartedAt))
	assert.NotEmpty(t, entries[0].ID, "missing ids are generated")

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_RecordKeepsID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.Record(ctx, Entry{ID: "run-1", Name: "x", Args: []string{"x"}, TimedOut: true, ErrorCode: "TIMEOUT_EXPIRED"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	_, err = s.Record(ctx, Entry{ID: "run-1", Name: "dup"})
	assert.Error(t, err, "ids are unique")

	entries, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].TimedOut)
	assert.Equal(t, "TIMEOUT_EXPIRED", entries[0].ErrorCode)
}

func TestStore_PruneAndStats(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	now := time.Now()
	_, err := s.Record(ctx, Entry{Name: "old", Args: []string{"a"}, ReturnCode: 1, StartedAt: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Name: "new", Args: []string{"b"}, StartedAt: now})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalRuns)
	assert.Equal(t, int64(1), stats.FailedRuns)
	assert.Equal(t, int64(0), stats.TimedOut)

	deleted, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Name)
}

func TestStore_EmptyStats(t *testing.T) {
	s := openStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalRuns)
	assert.True(t, stats.Oldest.IsZero())
}

func TestStore_Closed(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Record(context.Background(), Entry{Name: "x"})
	assert.Error(t, err)
	_, err = s.Recent(context.Background(), 1)
	assert.Error(t, err)
}

func TestFromResult(t *testing.T) {
	started := time.Now()

	e := FromResult("ok", []string{"true"}, started, &subprocess.CompletedProcess{
		ID:         "abc",
		ReturnCode: 0,
		Duration:   time.Second,
	}, nil)
	assert.Equal(t, "abc", e.ID)
	assert.Equal(t, 0, e.ReturnCode)
	assert.Equal(t, time.Second, e.Duration)
	assert.False(t, e.TimedOut)
	assert.Empty(t, e.ErrorCode)

	timeout := subprocess.ErrTimeoutExpired([]string{"sleep"}, time.Second, nil, nil)
	e = FromResult("slow", []string{"sleep"}, started, nil, timeout)
	assert.True(t, e.TimedOut)
	assert.Equal(t, subprocess.ReturnCodeUnknown, e.ReturnCode)
	assert.Equal(t, "TIMEOUT_EXPIRED", e.ErrorCode)

	e = FromResult("missing", []string{"nope"}, started, nil, subprocess.ErrCommandNotFound("nope"))
	assert.False(t, e.TimedOut)
	assert.Equal(t, "COMMAND_NOT_FOUND", e.ErrorCode)
}
