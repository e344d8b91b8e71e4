// Package connectivity watches backend reachability and notifies subscribers
// on online/offline transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/advocatech/lexsync/internal/backend"
	"github.com/advocatech/lexsync/internal/logging"
)

// probeTimeout bounds a single reachability probe so a hanging backend never
// stalls the watch loop.
const probeTimeout = 3 * time.Second

// Monitor probes the backend on a fixed interval and reports transitions to
// its subscribers. It starts pessimistic: offline until the first successful
// probe.
type Monitor struct {
	client   backend.Client
	interval time.Duration
	log      logging.Logger

	mu          sync.Mutex
	online      bool
	subscribers []func(online bool)
}

func NewMonitor(client backend.Client, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		client:   client,
		interval: interval,
		log:      log,
	}
}

// Subscribe registers fn for transition notifications. Subscribers are
// invoked synchronously from the watch loop and must not block.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is cancelled. The first probe happens immediately so
// startup does not wait a full interval for status.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one probe and fires subscribers if the state flipped.
func (m *Monitor) Check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := m.client.Ping(probeCtx)
	cancel()

	online := err == nil

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	subscribers := m.subscribers
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.log.Info(ctx, "backend reachable, now online")
	} else {
		m.log.Warn(ctx, "backend unreachable, now offline", "error", err)
	}
	for _, fn := range subscribers {
		fn(online)
	}
}
