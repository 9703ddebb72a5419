// Package store provides in-process EventLog implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/costing-engine/costing"
)

// =============================================================================
// MEMORY STORE - In-memory audit trail (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	events []costing.RawEvent // ordered by Timestamp, then Seq
	ids    map[string]bool
	seq    int64
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[string]bool)}
}

// Append adds rows atomically. Rows without an ID get a UUID; every row is
// given the next sequence number. A duplicate ID rejects the whole batch.
func (m *Memory) Append(_ context.Context, events []costing.RawEvent) ([]costing.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(events))
	out := make([]costing.RawEvent, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if m.ids[e.ID] || seen[e.ID] {
			return nil, &DuplicateEventError{ID: e.ID}
		}
		seen[e.ID] = true
		out[i] = e
	}

	for i := range out {
		m.seq++
		out[i].Seq = m.seq
		out[i].Timestamp = out[i].Timestamp.UTC()
		m.insertLocked(out[i])
		m.ids[out[i].ID] = true
	}
	return out, nil
}

func (m *Memory) insertLocked(e costing.RawEvent) {
	// Binary search for insertion point; equal timestamps keep arrival order.
	i := sort.Search(len(m.events), func(i int) bool {
		return m.events[i].Timestamp.After(e.Timestamp)
	})

	m.events = append(m.events, costing.RawEvent{})
	copy(m.events[i+1:], m.events[i:])
	m.events[i] = e
}

// Events returns a copy of the rows in scope strictly before until.
func (m *Memory) Events(_ context.Context, scope costing.Scope, until time.Time) ([]costing.RawEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []costing.RawEvent
	for _, e := range m.events {
		if !e.Timestamp.Before(until) {
			break
		}
		if scope.Matches(e.SupplierID, e.ItemID) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Recent returns the latest rows by arrival, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]costing.RawEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	result := make([]costing.RawEvent, len(m.events))
	copy(result, m.events)
	sort.Slice(result, func(i, j int) bool { return result[i].Seq > result[j].Seq })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Reset drops every row. Sequence numbers keep increasing.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.ids = make(map[string]bool)
	return nil
}

// DuplicateEventError is returned when an event ID already exists.
type DuplicateEventError struct {
	ID string
}

func (e *DuplicateEventError) Error() string {
	return "duplicate event id " + e.ID
}

func (e *DuplicateEventError) Unwrap() error { return costing.ErrDuplicateEvent }

var _ costing.EventLog = (*Memory)(nil)
