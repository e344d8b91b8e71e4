package models

import "time"

// Operation is the kind of local mutation captured by a queue entry.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntryStatus is the lifecycle state of a queue entry.
//
// pending -> completed  on confirmed remote application
// pending -> pending    with Attempts+1 on a transient failure
// pending -> failed     once Attempts reaches the retry ceiling; failed is
//
//	terminal and only cleared by explicit operator action.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

// QueueEntry is one pending local mutation awaiting remote application.
// Seq is assigned by the database and defines global drain order.
type QueueEntry struct {
	Seq        int64
	Collection string
	RecordID   string
	Op         Operation
	Payload    map[string]any
	Status     EntryStatus
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// QueueCounts is a per-status snapshot used by status indicators.
type QueueCounts struct {
	Pending   int
	Completed int
	Failed    int
}
