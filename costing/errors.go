/*
errors.go - Centralized error types for the costing engine

PURPOSE:
  All error kinds the engine can surface, in one place. Callers always get
  either a complete summary or one of these; never partial figures.

ERROR CATEGORIES:
  1. Validation errors - reporting window malformed (from after to)
  2. Classification errors - raw reason code outside the reason table,
     or a quantity beyond MaxQuantityDelta
  3. Source errors - the audit trail could not be read

NOT ERRORS:
  - Empty event stream: yields an all-zero summary
  - Division by zero quantity: average cost and turnover default to 0
  - Over-issue: clamped and reported through Buckets.UnfilledQty

USAGE:
  if errors.Is(err, costing.ErrInvalidWindow) { ... }

  var ue *costing.UnclassifiedReasonError
  if errors.As(err, &ue) {
      log.Printf("bad row %s: %q", ue.EventID, ue.Reason)
  }
*/
package costing

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidWindow is returned when from is after to.
	ErrInvalidWindow = errors.New("invalid window: from after to")

	// ErrUnclassifiedReason is returned when a raw reason code has no
	// mapping in the reason table. The whole computation is aborted.
	ErrUnclassifiedReason = errors.New("unclassified stock change reason")

	// ErrInvalidQuantity is returned when a row's quantity magnitude exceeds
	// MaxQuantityDelta.
	ErrInvalidQuantity = errors.New("stock change quantity out of range")

	// ErrUnknownMethod is returned for a costing method other than WAC/FIFO.
	ErrUnknownMethod = errors.New("unknown costing method")

	// ErrSourceUnavailable wraps failures reading the event source.
	ErrSourceUnavailable = errors.New("event source unavailable")

	// ErrDuplicateEvent is returned by event logs when an appended row
	// reuses an existing ID.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrLedgerDrift is returned by audited replays when a book's running
	// counters disagree with its contents.
	ErrLedgerDrift = errors.New("ledger drift detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidWindowError provides the offending bounds.
type InvalidWindowError struct {
	From time.Time
	To   time.Time
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window: from %s is after to %s",
		e.From.Format(DateLayout), e.To.Format(DateLayout))
}

func (e *InvalidWindowError) Unwrap() error {
	return ErrInvalidWindow
}

// UnclassifiedReasonError identifies the audit row that could not be classified.
type UnclassifiedReasonError struct {
	EventID string
	Seq     int64
	ItemID  string
	Reason  string
}

func (e *UnclassifiedReasonError) Error() string {
	return fmt.Sprintf("unclassified stock change reason %q (event %s, seq %d, item %s)",
		e.Reason, e.EventID, e.Seq, e.ItemID)
}

func (e *UnclassifiedReasonError) Unwrap() error {
	return ErrUnclassifiedReason
}

// InvalidQuantityError identifies the audit row with an out-of-range quantity.
type InvalidQuantityError struct {
	EventID       string
	ItemID        string
	QuantityDelta int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("stock change quantity %d outside [-%d, %d] (event %s, item %s)",
		e.QuantityDelta, MaxQuantityDelta, MaxQuantityDelta, e.EventID, e.ItemID)
}

func (e *InvalidQuantityError) Unwrap() error {
	return ErrInvalidQuantity
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrUnknownMethod)
}

// IsDataError returns true if the stored audit trail itself is unusable.
func IsDataError(err error) bool {
	return errors.Is(err, ErrUnclassifiedReason) ||
		errors.Is(err, ErrInvalidQuantity)
}
