// Package models holds the persisted data structures shared by repositories
// and services: entity records, sync queue entries, audit events and Merkle
// tree records.
package models

import "time"

// DurabilityMode controls whether a local write also produces a sync queue
// entry. LocalOnly is used when mirroring server state back into the store,
// so sync never re-queues what it just pulled.
type DurabilityMode int

const (
	DurabilityLocalAndQueue DurabilityMode = iota
	DurabilityLocalOnly
)

// Record is one entity inside a collection. Data holds the arbitrary domain
// fields; ID and UpdatedAt are managed by the store (ID is immutable once
// assigned, UpdatedAt is refreshed on every write).
type Record struct {
	ID        string
	Data      map[string]any
	UpdatedAt time.Time
}
