/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. costing.Summary carries
  exact decimals; the DTOs here are where presentation rounding happens.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

ROUNDING:
  money        2 dp  (values, costs, COGS, holding cost)
  unit cost    4 dp
  turnover     4 dp

  Decimals are rendered as fixed-point strings so clients never see binary
  floating point.

VALIDATION:
  Request types carry go-playground/validator tags, checked in handlers.go
  before anything reaches the service.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/reporting"
)

const (
	moneyPlaces    = 2
	unitCostPlaces = 4
	turnoverPlaces = 4
)

func money(d decimal.Decimal) string { return d.StringFixed(moneyPlaces) }

// =============================================================================
// SUMMARY
// =============================================================================

// SummaryDTO is a costing summary as the API presents it.
type SummaryDTO struct {
	Method string        `json:"method"`
	From   string        `json:"from"`
	To     string        `json:"to"`
	Days   int           `json:"days"`
	Scope  costing.Scope `json:"scope"`

	OpeningQty   int64  `json:"openingQty"`
	OpeningValue string `json:"openingValue"`

	PurchasesQty    int64  `json:"purchasesQty"`
	PurchasesCost   string `json:"purchasesCost"`
	ReturnsInQty    int64  `json:"returnsInQty"`
	ReturnsInValue  string `json:"returnsInValue"`
	SalesQty        int64  `json:"salesQty"`
	SalesValue      string `json:"salesValue"`
	AdjustmentQty   int64  `json:"adjustmentQty"`
	AdjustmentValue string `json:"adjustmentValue"`
	WriteOffQty     int64  `json:"writeOffQty"`
	WriteOffValue   string `json:"writeOffValue"`
	ReturnsOutQty   int64  `json:"returnsOutQty"`
	ReturnsOutValue string `json:"returnsOutValue"`

	ClosingQty   int64  `json:"closingQty"`
	ClosingValue string `json:"closingValue"`

	CostOfGoodsSold       string `json:"costOfGoodsSold"`
	AverageUnitCost       string `json:"averageUnitCost"`
	AverageInventoryValue string `json:"averageInventoryValue"`
	InventoryTurnover     string `json:"inventoryTurnover"`
	InventoryHoldingCost  string `json:"inventoryHoldingCost"`

	UnfilledQty    int64 `json:"unfilledQty"`
	EventsReplayed int   `json:"eventsReplayed"`
	Balanced       bool  `json:"balanced"`
}

func toSummaryDTO(s costing.Summary) SummaryDTO {
	return SummaryDTO{
		Method: string(s.Method),
		From:   s.From.Format(costing.DateLayout),
		To:     s.To.Format(costing.DateLayout),
		Days:   int(s.To.Sub(s.From).Hours()/24) + 1,
		Scope:  s.Scope,

		OpeningQty:   s.OpeningQty,
		OpeningValue: money(s.OpeningValue),

		PurchasesQty:    s.PurchasesQty,
		PurchasesCost:   money(s.PurchasesCost),
		ReturnsInQty:    s.ReturnsInQty,
		ReturnsInValue:  money(s.ReturnsInValue),
		SalesQty:        s.SalesQty,
		SalesValue:      money(s.SalesValue),
		AdjustmentQty:   s.AdjustmentQty,
		AdjustmentValue: money(s.AdjustmentValue),
		WriteOffQty:     s.WriteOffQty,
		WriteOffValue:   money(s.WriteOffValue),
		ReturnsOutQty:   s.ReturnsOutQty,
		ReturnsOutValue: money(s.ReturnsOutValue),

		ClosingQty:   s.ClosingQty,
		ClosingValue: money(s.ClosingValue),

		CostOfGoodsSold:       money(s.CostOfGoodsSold),
		AverageUnitCost:       s.AverageUnitCost.StringFixed(unitCostPlaces),
		AverageInventoryValue: money(s.AverageInventoryValue()),
		InventoryTurnover:     s.InventoryTurnover.StringFixed(turnoverPlaces),
		InventoryHoldingCost:  money(s.InventoryHoldingCost),

		UnfilledQty:    s.UnfilledQty,
		EventsReplayed: s.EventsReplayed,
		Balanced:       s.Balanced(),
	}
}

// CompareDTO shows both methods over one window. The differences are
// FIFO minus WAC.
type CompareDTO struct {
	From                   string        `json:"from"`
	To                     string        `json:"to"`
	Scope                  costing.Scope `json:"scope"`
	WAC                    SummaryDTO    `json:"wac"`
	FIFO                   SummaryDTO    `json:"fifo"`
	COGSDifference         string        `json:"cogsDifference"`
	ClosingValueDifference string        `json:"closingValueDifference"`
}

func toCompareDTO(c reporting.Comparison) CompareDTO {
	return CompareDTO{
		From:                   c.Window.Start().Format(costing.DateLayout),
		To:                     costing.Truncate(c.Window.To).Format(costing.DateLayout),
		Scope:                  c.Window.Scope,
		WAC:                    toSummaryDTO(c.WAC),
		FIFO:                   toSummaryDTO(c.FIFO),
		COGSDifference:         money(c.FIFO.CostOfGoodsSold.Sub(c.WAC.CostOfGoodsSold)),
		ClosingValueDifference: money(c.FIFO.ClosingValue.Sub(c.WAC.ClosingValue)),
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventRequest is one stock change to append to the audit trail.
type EventRequest struct {
	ID            string           `json:"id,omitempty" validate:"omitempty,max=64"`
	ItemID        string           `json:"itemId" validate:"required,max=64"`
	SupplierID    string           `json:"supplierId" validate:"max=64"`
	Reason        string           `json:"reason" validate:"required"`
	QuantityDelta int64            `json:"quantityDelta" validate:"gte=-1000000000,lte=1000000000"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty"`
	Timestamp     time.Time        `json:"timestamp" validate:"required"`
	CreatedBy     string           `json:"createdBy,omitempty"`
}

func (r EventRequest) toRaw() costing.RawEvent {
	raw := costing.RawEvent{
		ID:            r.ID,
		ItemID:        r.ItemID,
		SupplierID:    r.SupplierID,
		Reason:        r.Reason,
		QuantityDelta: r.QuantityDelta,
		Timestamp:     r.Timestamp.UTC(),
		CreatedBy:     r.CreatedBy,
	}
	if r.UnitPrice != nil {
		raw.UnitPrice = decimal.NewNullDecimal(*r.UnitPrice)
	}
	return raw
}

// RecordEventsRequest is the body of POST /api/events.
type RecordEventsRequest struct {
	Events []EventRequest `json:"events" validate:"required,min=1,max=1000,dive"`
}

// EventDTO is an audit row in API responses. Category is empty when the
// stored reason is not in the reason table.
type EventDTO struct {
	ID            string  `json:"id"`
	Seq           int64   `json:"seq"`
	ItemID        string  `json:"itemId"`
	SupplierID    string  `json:"supplierId,omitempty"`
	Reason        string  `json:"reason"`
	Category      string  `json:"category,omitempty"`
	QuantityDelta int64   `json:"quantityDelta"`
	UnitPrice     *string `json:"unitPrice,omitempty"`
	Timestamp     string  `json:"timestamp"`
	CreatedBy     string  `json:"createdBy,omitempty"`
}

func toEventDTOs(rows []costing.RawEvent, reasons costing.ReasonTable) []EventDTO {
	dtos := make([]EventDTO, 0, len(rows))
	for _, r := range rows {
		dto := EventDTO{
			ID:            r.ID,
			Seq:           r.Seq,
			ItemID:        r.ItemID,
			SupplierID:    r.SupplierID,
			Reason:        r.Reason,
			QuantityDelta: r.QuantityDelta,
			Timestamp:     r.Timestamp.UTC().Format(time.RFC3339Nano),
			CreatedBy:     r.CreatedBy,
		}
		if c, ok := reasons.Lookup(r.Reason); ok {
			dto.Category = string(c)
		}
		if r.UnitPrice.Valid {
			p := r.UnitPrice.Decimal.String()
			dto.UnitPrice = &p
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

// ClassifiedEventDTO is one event of a replay stream.
type ClassifiedEventDTO struct {
	ID            string  `json:"id"`
	Seq           int64   `json:"seq"`
	ItemID        string  `json:"itemId"`
	SupplierID    string  `json:"supplierId,omitempty"`
	Reason        string  `json:"reason"`
	Category      string  `json:"category"`
	QuantityDelta int64   `json:"quantityDelta"`
	UnitPrice     *string `json:"unitPrice,omitempty"`
	Timestamp     string  `json:"timestamp"`
	InWindow      bool    `json:"inWindow"`
}

// StreamDTO is the classified, ordered stream a replay of the window reads.
type StreamDTO struct {
	From   string               `json:"from"`
	To     string               `json:"to"`
	Scope  costing.Scope        `json:"scope"`
	Events []ClassifiedEventDTO `json:"events"`
}

func toStreamDTO(w costing.Window, events []costing.Event) StreamDTO {
	out := StreamDTO{
		From:   w.Start().Format(costing.DateLayout),
		To:     costing.Truncate(w.To).Format(costing.DateLayout),
		Scope:  w.Scope,
		Events: make([]ClassifiedEventDTO, 0, len(events)),
	}
	for _, e := range events {
		dto := ClassifiedEventDTO{
			ID:            e.ID,
			Seq:           e.Seq,
			ItemID:        e.ItemID,
			SupplierID:    e.SupplierID,
			Reason:        e.Reason,
			Category:      string(e.Category),
			QuantityDelta: e.QuantityDelta,
			Timestamp:     e.Timestamp.Format(time.RFC3339Nano),
			InWindow:      w.Contains(e.Timestamp),
		}
		if e.UnitPrice.Valid {
			p := e.UnitPrice.Decimal.String()
			dto.UnitPrice = &p
		}
		out.Events = append(out.Events, dto)
	}
	return out
}

// RecordEventsResponse lists the rows as stored, with IDs and sequence numbers.
type RecordEventsResponse struct {
	Recorded int        `json:"recorded"`
	Events   []EventDTO `json:"events"`
}

// =============================================================================
// REASONS
// =============================================================================

// ReasonDTO is one entry of the reason table.
type ReasonDTO struct {
	Code      string `json:"code"`
	Category  string `json:"category"`
	Direction string `json:"direction"`
}

func toReasonDTOs(t costing.ReasonTable) []ReasonDTO {
	codes := t.Codes()
	dtos := make([]ReasonDTO, 0, len(codes))
	for _, code := range codes {
		c := t[code]
		dir := "either"
		switch c.Direction() {
		case costing.DirectionIn:
			dir = "in"
		case costing.DirectionOut:
			dir = "out"
		}
		dtos = append(dtos, ReasonDTO{Code: code, Category: string(c), Direction: dir})
	}
	return dtos
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse reports what a scenario load wrote.
type LoadScenarioResponse struct {
	Scenario ScenarioDTO `json:"scenario"`
	Events   int         `json:"events"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
