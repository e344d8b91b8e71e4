package connectivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/models"
)

// flakyClient answers Ping from a switchable flag.
type flakyClient struct {
	mu        sync.Mutex
	reachable bool
}

func (c *flakyClient) setReachable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reachable = v
}

func (c *flakyClient) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reachable {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (c *flakyClient) Fetch(context.Context, string, string) (*models.Record, error) {
	return nil, nil
}
func (c *flakyClient) Upsert(context.Context, string, *models.Record) error      { return nil }
func (c *flakyClient) ForceUpsert(context.Context, string, *models.Record) error { return nil }
func (c *flakyClient) Delete(context.Context, string, string) error              { return nil }
func (c *flakyClient) Close() error                                              { return nil }

func newMonitor(client *flakyClient) *Monitor {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewMonitor(client, 10*time.Millisecond, log)
}

func TestCheck_Transitions(t *testing.T) {
	client := &flakyClient{}
	m := newMonitor(client)
	ctx := context.Background()

	var transitions []bool
	m.Subscribe(func(online bool) { transitions = append(transitions, online) })

	assert.False(t, m.Online(), "pessimistic before the first probe")

	// Still offline: no transition fires.
	m.Check(ctx)
	assert.False(t, m.Online())
	assert.Empty(t, transitions)

	client.setReachable(true)
	m.Check(ctx)
	assert.True(t, m.Online())

	// Steady state: no duplicate notification.
	m.Check(ctx)

	client.setReachable(false)
	m.Check(ctx)
	assert.False(t, m.Online())

	assert.Equal(t, []bool{true, false}, transitions)
}

func TestRun_ProbesOnInterval(t *testing.T) {
	client := &flakyClient{reachable: true}
	m := newMonitor(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	online := make(chan bool, 1)
	m.Subscribe(func(v bool) {
		select {
		case online <- v:
		default:
		}
	})

	go m.Run(ctx)

	select {
	case v := <-online:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("monitor never reported online")
	}
}
