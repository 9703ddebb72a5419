/*
replay.go - Single-pass fold shared by both costing methods

PURPOSE:
  Walks the ordered event stream once. Events before the window build the
  opening books silently, events inside the window also feed the buckets,
  and the first event after the window ends the pass.

  The method-specific part is the book: one per item, holding either a
  moving average (WAC) or a queue of cost layers (FIFO). Everything else,
  bucket routing, clamping accounting, cancellation, is identical.

CANCELLATION:
  ctx is checked every CheckEvery events. The algorithm itself is
  uninterrupted; a cancelled replay returns ctx.Err() and no figures.

OVER-ISSUE:
  A book never goes negative. Outbound demand beyond what a book holds is
  dropped at zero cost and reported through Buckets.UnfilledQty.
*/
package costing

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultCheckEvery is how many events are folded between ctx checks.
const DefaultCheckEvery = 1024

// CostPrecision is the number of decimal places kept on division results
// (partial WAC issues, derived ratios). Sums and products stay exact.
const CostPrecision int32 = 16

// ReplayOptions tunes a replay without changing its result.
type ReplayOptions struct {
	CheckEvery int

	// Audit re-verifies every book after every event and fails with
	// ErrLedgerDrift on the first inconsistency.
	Audit bool
}

// book is one item's running inventory under a costing method.
type book interface {
	// receive books an inbound event and returns the value it added.
	receive(e Event) decimal.Decimal
	// issue removes up to qty units and returns how many it had and their cost.
	issue(qty int64) (issued int64, cost decimal.Decimal)
	position() Position
	audit() error
}

// ReplayWAC folds ordered events with the moving-average method.
func ReplayWAC(ctx context.Context, events []Event, w Window, opts ReplayOptions) (Replay, error) {
	return replay(ctx, MethodWAC, events, w, opts, func() book { return &runningState{} })
}

// ReplayFIFO folds ordered events with layered consumption.
func ReplayFIFO(ctx context.Context, events []Event, w Window, opts ReplayOptions) (Replay, error) {
	return replay(ctx, MethodFIFO, events, w, opts, func() book { return &layerBook{} })
}

func replay(ctx context.Context, method Method, events []Event, w Window, opts ReplayOptions, newBook func() book) (Replay, error) {
	if err := w.Validate(); err != nil {
		return Replay{}, err
	}
	checkEvery := opts.CheckEvery
	if checkEvery <= 0 {
		checkEvery = DefaultCheckEvery
	}

	books := make(map[string]book)
	out := Replay{Method: method}
	opened := false

	for i, e := range events {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Replay{}, err
			}
		}
		if !w.BeforeStart(e.Timestamp) {
			if !opened {
				out.Opening = totals(books)
				opened = true
			}
			if !w.Contains(e.Timestamp) {
				break
			}
		}

		b, ok := books[e.ItemID]
		if !ok {
			b = newBook()
			books[e.ItemID] = b
		}

		inWindow := opened
		switch {
		case e.Inbound():
			value := b.receive(e)
			if inWindow {
				out.Buckets.inbound(e.Category, e.Quantity(), value)
			}
		case e.Outbound():
			issued, cost := b.issue(e.Quantity())
			if inWindow {
				out.Buckets.outbound(e.Category, issued, cost)
				out.Buckets.UnfilledQty += e.Quantity() - issued
			}
		}
		out.Events++

		if opts.Audit {
			if err := b.audit(); err != nil {
				return Replay{}, fmt.Errorf("%w: item %s after event %s: %v", ErrLedgerDrift, e.ItemID, e.ID, err)
			}
		}
	}

	if !opened {
		out.Opening = totals(books)
	}
	out.Closing = totals(books)
	return out, nil
}

// totals sums books in item order so the result never depends on map order.
func totals(books map[string]book) Position {
	items := make([]string, 0, len(books))
	for item := range books {
		items = append(items, item)
	}
	sort.Strings(items)

	p := Position{Value: decimal.Zero}
	for _, item := range items {
		p = p.Add(books[item].position())
	}
	return p
}
