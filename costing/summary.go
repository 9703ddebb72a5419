/*
summary.go - Financial summary assembly

PURPOSE:
  Turns a replay (opening/closing positions plus bucket totals) into the
  figures a report shows. The same assembler serves both methods; only the
  replay differs.

DERIVED METRICS:
  CostOfGoodsSold       = sales value (+ write-off value if Policy says so)
  AverageUnitCost       = closing value / closing qty           (0 if qty 0)
  AverageInventoryValue = (opening value + closing value) / 2
  InventoryTurnover     = COGS / average inventory value        (0 if avg 0)
  InventoryHoldingCost  = holding rate * average inventory value * days / 365

LEDGER BALANCE:
  opening + purchases + returns in - sales - adjustment - returns out = closing

  Without supplier returns this is the familiar
  opening + purchases + returns in - sales - adjustment = closing.
  LedgerDifference returns the residual; it is zero up to LedgerEpsilon.

PRECISION:
  Summary values are exact. Rounding happens only when presenting them.
*/
package costing

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	half        = decimal.New(5, -1)
	daysPerYear = decimal.NewFromInt(365)

	// LedgerEpsilon bounds the balance residual left by rounded divisions.
	LedgerEpsilon = decimal.New(1, -6)
)

// =============================================================================
// POLICY - Reporting configuration
// =============================================================================

// Policy holds the reporting knobs that are not part of either algorithm.
type Policy struct {
	// HoldingRate is the annual carrying cost as a fraction of inventory value.
	HoldingRate decimal.Decimal

	// WriteOffsInCOGS counts write-offs as cost of goods sold.
	WriteOffsInCOGS bool
}

// DefaultPolicy is a 25% annual holding rate with write-offs kept out of COGS.
func DefaultPolicy() Policy {
	return Policy{HoldingRate: decimal.New(25, -2)}
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the result of one (method, window, scope) computation. It is a
// plain value: callers get their own copy and nothing else holds a reference.
type Summary struct {
	Method Method    `json:"method"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Scope  Scope     `json:"scope"`

	OpeningQty   int64           `json:"openingQty"`
	OpeningValue decimal.Decimal `json:"openingValue"`

	PurchasesQty    int64           `json:"purchasesQty"`
	PurchasesCost   decimal.Decimal `json:"purchasesCost"`
	ReturnsInQty    int64           `json:"returnsInQty"`
	ReturnsInValue  decimal.Decimal `json:"returnsInValue"`
	SalesQty        int64           `json:"salesQty"`
	SalesValue      decimal.Decimal `json:"salesValue"`
	AdjustmentQty   int64           `json:"adjustmentQty"`
	AdjustmentValue decimal.Decimal `json:"adjustmentValue"`
	WriteOffQty     int64           `json:"writeOffQty"`
	WriteOffValue   decimal.Decimal `json:"writeOffValue"`
	ReturnsOutQty   int64           `json:"returnsOutQty"`
	ReturnsOutValue decimal.Decimal `json:"returnsOutValue"`

	ClosingQty   int64           `json:"closingQty"`
	ClosingValue decimal.Decimal `json:"closingValue"`

	CostOfGoodsSold      decimal.Decimal `json:"costOfGoodsSold"`
	AverageUnitCost      decimal.Decimal `json:"averageUnitCost"`
	InventoryTurnover    decimal.Decimal `json:"inventoryTurnover"`
	InventoryHoldingCost decimal.Decimal `json:"inventoryHoldingCost"`

	UnfilledQty    int64 `json:"unfilledQty"`
	EventsReplayed int   `json:"eventsReplayed"`
}

// Assemble computes derived metrics from a replay.
func Assemble(r Replay, w Window, p Policy) Summary {
	b := r.Buckets
	s := Summary{
		Method: r.Method,
		From:   w.Start(),
		To:     Truncate(w.To),
		Scope:  w.Scope,

		OpeningQty:   r.Opening.Quantity,
		OpeningValue: r.Opening.Value,

		PurchasesQty:    b.PurchasesQty,
		PurchasesCost:   b.PurchasesCost,
		ReturnsInQty:    b.ReturnsInQty,
		ReturnsInValue:  b.ReturnsInValue,
		SalesQty:        b.SalesQty,
		SalesValue:      b.SalesValue,
		AdjustmentQty:   b.AdjustmentQty,
		AdjustmentValue: b.AdjustmentValue,
		WriteOffQty:     b.WriteOffQty,
		WriteOffValue:   b.WriteOffValue,
		ReturnsOutQty:   b.ReturnsOutQty,
		ReturnsOutValue: b.ReturnsOutValue,

		ClosingQty:   r.Closing.Quantity,
		ClosingValue: r.Closing.Value,

		UnfilledQty:    b.UnfilledQty,
		EventsReplayed: r.Events,
	}

	s.CostOfGoodsSold = b.SalesValue
	if p.WriteOffsInCOGS {
		s.CostOfGoodsSold = s.CostOfGoodsSold.Add(b.WriteOffValue)
	}

	s.AverageUnitCost = decimal.Zero
	if s.ClosingQty != 0 {
		s.AverageUnitCost = s.ClosingValue.DivRound(decimal.NewFromInt(s.ClosingQty), CostPrecision)
	}

	avg := s.AverageInventoryValue()
	s.InventoryTurnover = decimal.Zero
	if !avg.IsZero() {
		s.InventoryTurnover = s.CostOfGoodsSold.DivRound(avg, CostPrecision)
	}

	s.InventoryHoldingCost = p.HoldingRate.
		Mul(avg).
		Mul(decimal.NewFromInt(int64(w.Days()))).
		DivRound(daysPerYear, CostPrecision)

	return s
}

// AverageInventoryValue is the mean of opening and closing value.
func (s Summary) AverageInventoryValue() decimal.Decimal {
	return s.OpeningValue.Add(s.ClosingValue).Mul(half)
}

// LedgerDifference is the residual of the balance equation.
func (s Summary) LedgerDifference() decimal.Decimal {
	return s.OpeningValue.
		Add(s.PurchasesCost).
		Add(s.ReturnsInValue).
		Sub(s.SalesValue).
		Sub(s.AdjustmentValue).
		Sub(s.ReturnsOutValue).
		Sub(s.ClosingValue)
}

// Balanced reports whether the ledger equation holds within LedgerEpsilon,
// for value and, exactly, for quantity.
func (s Summary) Balanced() bool {
	qty := s.OpeningQty + s.PurchasesQty + s.ReturnsInQty - s.SalesQty - s.AdjustmentQty - s.ReturnsOutQty - s.ClosingQty
	return qty == 0 && s.LedgerDifference().Abs().LessThanOrEqual(LedgerEpsilon)
}
