/*
source.go - Event source interfaces for the stock audit trail

PURPOSE:
  Defines the boundary between the costing engine and wherever stock
  history is stored. The engine reads the trail once, up front, and then
  works purely in memory.

APPEND-ONLY CONTRACT:
  The audit trail is never updated or deleted in place. Corrections are
  new rows (usually MANUAL_UPDATE). Readers therefore never contend with
  writers from this subsystem, and a source must tolerate concurrent reads.

ORDERING:
  Events returns rows ordered by timestamp, ties by arrival sequence. The
  engine sorts again after classifying, so a source that cannot guarantee
  order is still correct, only slower.

IMPLEMENTATIONS:
  - costing/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go:  Durable SQLite audit trail
*/
package costing

import (
	"context"
	"time"
)

// EventSource returns the scope-filtered stock history strictly before
// until. Read-only.
type EventSource interface {
	Events(ctx context.Context, scope Scope, until time.Time) ([]RawEvent, error)
}

// EventLog is an EventSource that also accepts new rows.
type EventLog interface {
	EventSource

	// Append persists rows atomically, assigning IDs and sequence numbers
	// where missing. This is the ONLY write operation.
	Append(ctx context.Context, events []RawEvent) ([]RawEvent, error)
}
