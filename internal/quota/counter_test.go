package quota

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advocatech/lexsync/internal/repositories/metadata"

	_ "modernc.org/sqlite"
)

func setupCounter(t *testing.T) *DailyCounter {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)

	return NewDailyCounter(metadata.NewSQLiteRepository(db), "api_calls")
}

func TestAdd_Accumulates(t *testing.T) {
	c := setupCounter(t)
	ctx := context.Background()

	v, err := c.Add(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = c.Add(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	v, err = c.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestAdd_ResetsOnNewDay(t *testing.T) {
	c := setupCounter(t)
	ctx := context.Background()

	day1 := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return day1 }

	_, err := c.Add(ctx, 10)
	require.NoError(t, err)

	// The clock rolls past midnight.
	c.now = func() time.Time { return day1.Add(2 * time.Hour) }

	v, err := c.Value(ctx)
	require.NoError(t, err)
	assert.Zero(t, v, "yesterday's tally reads as zero")

	v, err = c.Add(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestValue_EmptyStore(t *testing.T) {
	c := setupCounter(t)

	v, err := c.Value(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v)
}
