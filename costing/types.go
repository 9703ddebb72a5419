/*
Package costing provides the inventory costing engine.

PURPOSE:
  Replays a chronological stream of stock changes into period financial
  summaries. Two costing methods are supported over the same stream:
  Weighted Average Cost (WAC) and First-In-First-Out (FIFO). Nothing in
  this package stores state between calls: every computation owns its
  books and folds the event stream from scratch.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: closed set of canonical reasons (purchase, sale, ...)
  - RawEvent: an audit-trail row as the event source returns it
  - Event: a classified stock change with a correctly signed quantity
  - Scope: supplier/item filter applied by the event source
  - Buckets: per-category totals accumulated inside the window
  - Position: quantity/value snapshot (opening or closing)

DESIGN PRINCIPLES:
  1. Precision: all values are decimal.Decimal, quantities are int64
  2. Determinism: same ordered input, same output, byte for byte
  3. Fail loudly: unknown reason codes abort, they are never defaulted

USAGE:
  engine := costing.NewEngine(source, costing.DefaultPolicy())
  w, _ := costing.NewWindow(from, to, costing.Scope{SupplierID: "sup-1"})
  summary, err := engine.Compute(ctx, costing.MethodFIFO, w)

SEE ALSO:
  - classify.go: Reason table and classifier
  - window.go: Reporting window resolution
  - wac.go, fifo.go: Replay engines
  - summary.go: Summary assembly and derived metrics
*/
package costing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// METHOD - Costing methodology
// =============================================================================

type Method string

const (
	MethodWAC  Method = "WAC"
	MethodFIFO Method = "FIFO"
)

// Methods lists every supported costing method in a stable order.
var Methods = []Method{MethodWAC, MethodFIFO}

// ParseMethod accepts "wac"/"fifo" in any case.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(s))) {
	case MethodWAC:
		return MethodWAC, nil
	case MethodFIFO:
		return MethodFIFO, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// =============================================================================
// CATEGORY - Canonical reason buckets
// =============================================================================

type Category string

const (
	CategoryPurchase   Category = "purchase"
	CategorySale       Category = "sale"
	CategoryReturnIn   Category = "return_in"  // from customer
	CategoryReturnOut  Category = "return_out" // to supplier
	CategoryWriteOff   Category = "write_off"
	CategoryAdjustment Category = "adjustment"
)

// Direction is the sign a category forces on its quantity delta.
type Direction int

const (
	DirectionEither Direction = iota
	DirectionIn
	DirectionOut
)

func (c Category) Direction() Direction {
	switch c {
	case CategoryPurchase, CategoryReturnIn:
		return DirectionIn
	case CategorySale, CategoryReturnOut, CategoryWriteOff:
		return DirectionOut
	default:
		return DirectionEither
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// RawEvent is one stock-change row from the audit trail, before classification.
type RawEvent struct {
	ID            string
	Seq           int64 // arrival order, breaks timestamp ties
	ItemID        string
	SupplierID    string
	Reason        string
	QuantityDelta int64
	UnitPrice     decimal.NullDecimal
	Timestamp     time.Time
	CreatedBy     string
}

// Event is a classified stock change. QuantityDelta is positive for inbound
// categories and negative for outbound ones.
type Event struct {
	ID            string
	Seq           int64
	ItemID        string
	SupplierID    string
	Reason        string
	Category      Category
	QuantityDelta int64
	UnitPrice     decimal.NullDecimal
	Timestamp     time.Time
}

func (e Event) Inbound() bool  { return e.QuantityDelta > 0 }
func (e Event) Outbound() bool { return e.QuantityDelta < 0 }

// Quantity returns the magnitude of the delta.
func (e Event) Quantity() int64 {
	if e.QuantityDelta < 0 {
		return -e.QuantityDelta
	}
	return e.QuantityDelta
}

// =============================================================================
// SCOPE - What the summary covers
// =============================================================================

// Scope narrows the event stream to a supplier and/or a single item.
// The zero Scope covers everything.
type Scope struct {
	SupplierID string `json:"supplierId,omitempty"`
	ItemID     string `json:"itemId,omitempty"`
}

// Normalize trims both keys and lowercases the supplier, which is matched
// case-insensitively.
func (s Scope) Normalize() Scope {
	return Scope{
		SupplierID: strings.ToLower(strings.TrimSpace(s.SupplierID)),
		ItemID:     strings.TrimSpace(s.ItemID),
	}
}

// Matches reports whether a row with the given keys belongs to the scope.
func (s Scope) Matches(supplierID, itemID string) bool {
	n := s.Normalize()
	if n.SupplierID != "" && strings.ToLower(strings.TrimSpace(supplierID)) != n.SupplierID {
		return false
	}
	if n.ItemID != "" && itemID != n.ItemID {
		return false
	}
	return true
}

func (s Scope) IsZero() bool { n := s.Normalize(); return n.SupplierID == "" && n.ItemID == "" }

// scopeEscaper percent-encodes the separators String uses, so distinct
// scopes never render the same text.
var scopeEscaper = strings.NewReplacer("%", "%25", ";", "%3B", "=", "%3D")

// String renders the scope as "supplier=X;item=Y". Cache keys are built
// from it.
func (s Scope) String() string {
	n := s.Normalize()
	if n.SupplierID == "" && n.ItemID == "" {
		return "all"
	}
	return "supplier=" + scopeEscaper.Replace(n.SupplierID) + ";item=" + scopeEscaper.Replace(n.ItemID)
}

// =============================================================================
// POSITION & BUCKETS - Replay output
// =============================================================================

// Position is an inventory snapshot.
type Position struct {
	Quantity int64
	Value    decimal.Decimal
}

func (p Position) Add(o Position) Position {
	return Position{Quantity: p.Quantity + o.Quantity, Value: p.Value.Add(o.Value)}
}

// Buckets holds in-window totals. AdjustmentQty/Value are net outbound:
// write-offs and downward corrections add, upward corrections subtract.
// WriteOffQty/Value is the write-off share of the adjustment bucket.
type Buckets struct {
	PurchasesQty    int64
	PurchasesCost   decimal.Decimal
	ReturnsInQty    int64
	ReturnsInValue  decimal.Decimal
	SalesQty        int64
	SalesValue      decimal.Decimal
	AdjustmentQty   int64
	AdjustmentValue decimal.Decimal
	WriteOffQty     int64
	WriteOffValue   decimal.Decimal
	ReturnsOutQty   int64
	ReturnsOutValue decimal.Decimal

	// Outbound demand dropped because the book ran empty.
	UnfilledQty int64
}

func (b *Buckets) inbound(c Category, qty int64, value decimal.Decimal) {
	switch c {
	case CategoryReturnIn:
		b.ReturnsInQty += qty
		b.ReturnsInValue = b.ReturnsInValue.Add(value)
	case CategoryAdjustment:
		b.AdjustmentQty -= qty
		b.AdjustmentValue = b.AdjustmentValue.Sub(value)
	default:
		b.PurchasesQty += qty
		b.PurchasesCost = b.PurchasesCost.Add(value)
	}
}

func (b *Buckets) outbound(c Category, qty int64, cost decimal.Decimal) {
	switch c {
	case CategorySale:
		b.SalesQty += qty
		b.SalesValue = b.SalesValue.Add(cost)
	case CategoryReturnOut:
		b.ReturnsOutQty += qty
		b.ReturnsOutValue = b.ReturnsOutValue.Add(cost)
	case CategoryWriteOff:
		b.WriteOffQty += qty
		b.WriteOffValue = b.WriteOffValue.Add(cost)
		b.AdjustmentQty += qty
		b.AdjustmentValue = b.AdjustmentValue.Add(cost)
	default:
		b.AdjustmentQty += qty
		b.AdjustmentValue = b.AdjustmentValue.Add(cost)
	}
}

// Replay is what either engine hands to the summary assembler.
type Replay struct {
	Method  Method
	Opening Position
	Closing Position
	Buckets Buckets
	Events  int // events folded, pre-window included
}
