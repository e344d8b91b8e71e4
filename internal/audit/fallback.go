package audit

import (
	"sync"

	"github.com/advocatech/lexsync/internal/models"
)

// FallbackBuffer is a bounded in-memory buffer that catches audit events when
// local persistence fails, so audit intent is not silently lost. When full,
// the oldest entries are dropped; this is explicitly best-effort.
type FallbackBuffer struct {
	mu       sync.Mutex
	capacity int
	events   []*models.AuditEvent
	dropped  int
}

func NewFallbackBuffer(capacity int) *FallbackBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &FallbackBuffer{capacity: capacity}
}

func (b *FallbackBuffer) Add(event *models.AuditEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == b.capacity {
		b.events = b.events[1:]
		b.dropped++
	}
	b.events = append(b.events, event)
}

// Drain returns every buffered event and empties the buffer. The caller is
// expected to retry persistence; events it fails again on should be re-added.
func (b *FallbackBuffer) Drain() []*models.AuditEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

func (b *FallbackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped reports how many events were lost to capacity pressure.
func (b *FallbackBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
