package costing

import (
	"sort"
	"time"
)

// DateLayout is the wire format of window bounds.
const DateLayout = "2006-01-02"

// DefaultWindowDays is the lookback used when no bounds are given.
const DefaultWindowDays = 30

// =============================================================================
// WINDOW - Inclusive date range plus scope
// =============================================================================

// Window is the reporting window. From and To are calendar days (UTC) and
// both are inclusive: an event belongs to the window when
// From 00:00 <= timestamp < (To + 1 day) 00:00.
type Window struct {
	From  time.Time
	To    time.Time
	Scope Scope
}

// Day returns midnight UTC of the given calendar date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day, in UTC.
func Truncate(t time.Time) time.Time {
	u := t.UTC()
	return Day(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD bound.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// NewWindow validates and normalizes the bounds.
func NewWindow(from, to time.Time, scope Scope) (Window, error) {
	w := Window{From: Truncate(from), To: Truncate(to), Scope: scope.Normalize()}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate enforces from <= to. from == to is a valid single-day window.
func (w Window) Validate() error {
	if Truncate(w.From).After(Truncate(w.To)) {
		return &InvalidWindowError{From: w.From, To: w.To}
	}
	return nil
}

// Start is the first instant inside the window.
func (w Window) Start() time.Time { return Truncate(w.From) }

// End is the first instant after the window.
func (w Window) End() time.Time { return Truncate(w.To).AddDate(0, 0, 1) }

func (w Window) BeforeStart(t time.Time) bool { return t.Before(w.Start()) }
func (w Window) Contains(t time.Time) bool    { return !t.Before(w.Start()) && t.Before(w.End()) }

// Days counts calendar days, both bounds included.
func (w Window) Days() int {
	return int(w.End().Sub(w.Start()).Hours() / 24)
}

func (w Window) String() string {
	return "[" + w.Start().Format(DateLayout) + ", " + Truncate(w.To).Format(DateLayout) + "] " + w.Scope.String()
}

// =============================================================================
// RESOLVER - Defaults for omitted bounds
// =============================================================================

// ResolveWindow applies defaults to omitted bounds and validates the result:
//   - both omitted: [today - defaultDays, today]
//   - from omitted: [to - defaultDays, to]
//   - to omitted:   [from, today]
//
// A non-positive defaultDays falls back to DefaultWindowDays.
func ResolveWindow(from, to *time.Time, scope Scope, now time.Time, defaultDays int) (Window, error) {
	if defaultDays <= 0 {
		defaultDays = DefaultWindowDays
	}

	end := Truncate(now)
	if to != nil {
		end = Truncate(*to)
	}
	start := end.AddDate(0, 0, -defaultDays)
	if from != nil {
		start = Truncate(*from)
	}
	return NewWindow(start, end, scope)
}

// OrderEvents sorts by timestamp, ties broken by arrival sequence and then
// ID so repeated runs see the same order.
func OrderEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
}
