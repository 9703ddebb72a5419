/*
fifo.go - Layered First-In-First-Out books

PURPOSE:
  Every inbound event opens a cost layer at its own unit cost. Outbound
  events consume the oldest layers first, so the cost of an issue is the
  sum over the layers it touched and the closing value is whatever the
  remaining layers are worth.

LAYER QUEUE:
  Layers live in a slice with a moving front index rather than a linked
  list: push appends at the back, pop advances the front, and the slice
  is compacted once the dead prefix dominates. Both are O(1) amortized.

INVARIANT:
  The book keeps a running quantity next to the queue. After every event
  the sum of remaining layer quantities equals that counter (see audit).

EXAMPLE:
  Purchase 100 @ 10, Purchase 100 @ 20, Sale 150:
    consumes 100 @ 10 (1000) + 50 @ 20 (1000) = 2000
    remaining: one layer, 50 @ 20 = 1000
*/
package costing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COST LAYER
// =============================================================================

// CostLayer tracks what is left of one inbound batch.
type CostLayer struct {
	ReceivedAt time.Time
	Remaining  int64
	UnitCost   decimal.Decimal
}

func (l CostLayer) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.Remaining))
}

// compactAfter is the dead-prefix length below which the queue never
// bothers to compact.
const compactAfter = 64

// layerQueue is a slice-backed FIFO of cost layers, oldest at head.
type layerQueue struct {
	layers []CostLayer
	head   int
}

func (q *layerQueue) Len() int { return len(q.layers) - q.head }

func (q *layerQueue) push(l CostLayer) { q.layers = append(q.layers, l) }

// front must only be called on a non-empty queue.
func (q *layerQueue) front() *CostLayer { return &q.layers[q.head] }

func (q *layerQueue) pop() {
	q.layers[q.head] = CostLayer{}
	q.head++
	switch {
	case q.head == len(q.layers):
		q.layers = q.layers[:0]
		q.head = 0
	case q.head >= compactAfter && q.head*2 >= len(q.layers):
		n := copy(q.layers, q.layers[q.head:])
		q.layers = q.layers[:n]
		q.head = 0
	}
}

// Layers returns a copy of the live layers, oldest first.
func (q *layerQueue) Layers() []CostLayer {
	out := make([]CostLayer, q.Len())
	copy(out, q.layers[q.head:])
	return out
}

func (q *layerQueue) totals() Position {
	p := Position{Value: decimal.Zero}
	for _, l := range q.layers[q.head:] {
		p.Quantity += l.Remaining
		p.Value = p.Value.Add(l.Value())
	}
	return p
}

// =============================================================================
// LAYER BOOK - One item's FIFO state
// =============================================================================

type layerBook struct {
	queue    layerQueue
	quantity int64
}

// averageCost values unpriced inbound stock at what the layers are worth
// on average, 0 for an empty book.
func (b *layerBook) averageCost() decimal.Decimal {
	p := b.queue.totals()
	if p.Quantity == 0 {
		return decimal.Zero
	}
	return p.Value.DivRound(decimal.NewFromInt(p.Quantity), CostPrecision)
}

func (b *layerBook) receive(e Event) decimal.Decimal {
	var unit decimal.Decimal
	if e.UnitPrice.Valid {
		unit = e.UnitPrice.Decimal
	} else {
		unit = b.averageCost()
	}

	b.queue.push(CostLayer{ReceivedAt: e.Timestamp, Remaining: e.Quantity(), UnitCost: unit})
	b.quantity += e.Quantity()
	return unit.Mul(decimal.NewFromInt(e.Quantity()))
}

// issue consumes from the oldest layer forward. If the queue empties first
// the rest of the demand is dropped at zero cost.
func (b *layerBook) issue(qty int64) (int64, decimal.Decimal) {
	remaining := qty
	cost := decimal.Zero

	for remaining > 0 && b.queue.Len() > 0 {
		layer := b.queue.front()
		consumed := min(remaining, layer.Remaining)
		cost = cost.Add(layer.UnitCost.Mul(decimal.NewFromInt(consumed)))
		layer.Remaining -= consumed
		remaining -= consumed
		if layer.Remaining == 0 {
			b.queue.pop()
		}
	}

	issued := qty - remaining
	b.quantity -= issued
	return issued, cost
}

func (b *layerBook) position() Position { return b.queue.totals() }

func (b *layerBook) audit() error {
	p := b.queue.totals()
	if p.Quantity != b.quantity {
		return fmt.Errorf("layers hold %d units, counter says %d", p.Quantity, b.quantity)
	}
	for _, l := range b.queue.layers[b.queue.head:] {
		if l.Remaining <= 0 {
			return fmt.Errorf("dead layer left in queue (received %s)", l.ReceivedAt.Format(time.RFC3339))
		}
	}
	return nil
}
