package costing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WAC - Moving-average running state
// =============================================================================

// runningState is one item's WAC book. Only quantity and total value are
// stored; the average cost is always derived, so repeated inbound events
// cannot make it drift.
type runningState struct {
	quantity int64
	value    decimal.Decimal
}

// averageCost is value / quantity, 0 for an empty book.
func (s *runningState) averageCost() decimal.Decimal {
	if s.quantity == 0 {
		return decimal.Zero
	}
	return s.value.DivRound(decimal.NewFromInt(s.quantity), CostPrecision)
}

func (s *runningState) receive(e Event) decimal.Decimal {
	qty := decimal.NewFromInt(e.Quantity())
	unit := s.averageCost()
	if e.UnitPrice.Valid {
		unit = e.UnitPrice.Decimal
	}
	value := unit.Mul(qty)

	s.quantity += e.Quantity()
	s.value = s.value.Add(value)
	return value
}

// issue removes min(qty, on hand) units at the current average. Emptying the
// book removes exactly its total value, leaving no residue.
func (s *runningState) issue(qty int64) (int64, decimal.Decimal) {
	issued := min(qty, s.quantity)
	if issued <= 0 {
		return 0, decimal.Zero
	}

	cost := s.value
	if issued < s.quantity {
		cost = s.value.Mul(decimal.NewFromInt(issued)).DivRound(decimal.NewFromInt(s.quantity), CostPrecision)
		if cost.GreaterThan(s.value) {
			cost = s.value
		}
	}

	s.quantity -= issued
	s.value = s.value.Sub(cost)
	return issued, cost
}

func (s *runningState) position() Position {
	return Position{Quantity: s.quantity, Value: s.value}
}

func (s *runningState) audit() error {
	if s.quantity < 0 {
		return fmt.Errorf("negative quantity %d", s.quantity)
	}
	if s.value.IsNegative() {
		return fmt.Errorf("negative value %s", s.value)
	}
	if s.quantity == 0 && !s.value.IsZero() {
		return fmt.Errorf("empty book carries value %s", s.value)
	}
	return nil
}
