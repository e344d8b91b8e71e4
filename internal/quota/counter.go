// Package quota tracks daily usage counters as explicit stored state. The
// counter and its last-reset day live in the metadata table, so a restart
// mid-day keeps the tally and a new day starts from zero without ambient
// globals.
package quota

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/advocatech/lexsync/internal/repositories/metadata"
)

const dayFormat = "2006-01-02"

// DailyCounter counts events per calendar day under a metadata key pair
// (<name> and <name>_day).
type DailyCounter struct {
	meta metadata.Repository
	name string

	mu  sync.Mutex
	now func() time.Time
}

func NewDailyCounter(meta metadata.Repository, name string) *DailyCounter {
	return &DailyCounter{meta: meta, name: name, now: time.Now}
}

// Add increments the counter by n, resetting first if the stored day is not
// today, and returns the new value.
func (c *DailyCounter) Add(ctx context.Context, n int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	value += n

	if err := c.meta.Set(ctx, c.name, []byte(strconv.FormatInt(value, 10))); err != nil {
		return 0, err
	}
	if err := c.meta.Set(ctx, c.name+"_day", []byte(c.today())); err != nil {
		return 0, err
	}
	return value, nil
}

// Value returns today's count. A stored value from a previous day reads as
// zero; the reset itself happens on the next Add.
func (c *DailyCounter) Value(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *DailyCounter) load(ctx context.Context) (int64, error) {
	day, err := c.meta.Get(ctx, c.name+"_day")
	if err != nil {
		return 0, err
	}
	if day == nil || string(day) != c.today() {
		return 0, nil
	}

	raw, err := c.meta.Get(ctx, c.name)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	value, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return value, nil
}

func (c *DailyCounter) today() string {
	return c.now().Format(dayFormat)
}
