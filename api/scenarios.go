/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built stock histories that replace the audit trail with
	data demonstrating specific engine behavior. Every scenario sits in
	March 2025 so the suggested window is the same for all of them.

AVAILABLE SCENARIOS:

	single-purchase:  One purchase, one sale, average cost unchanged
	wac-vs-fifo:      Two purchases at different prices, methods diverge
	over-issue:       Sale larger than stock on hand, clamped and reported
	empty:            No events at all, every figure zero
	supplier-mix:     Two suppliers, three items, every category, history
	                  before the window

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "wac-vs-fifo"}

	GET /api/summary/compare?from=2025-03-01&to=2025-03-31

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with ID, name, description
 2. Give it an events func returning the rows in any order

NOTE:

	Loading a scenario drops the whole audit trail. Only use in
	development/demo environments.
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/costing-engine/costing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var (
	scenarioFrom = costing.Day(2025, time.March, 1)
	scenarioTo   = costing.Day(2025, time.March, 31)
)

type scenario struct {
	ScenarioDTO
	events func() []costing.RawEvent
}

var scenarios = []scenario{
	{
		ScenarioDTO: describe("single-purchase", "Single Purchase",
			"100 units bought at 10, 40 sold: closing 60 units worth 600 under both methods"),
		events: func() []costing.RawEvent {
			return []costing.RawEvent{
				row("sku-widget", "acme", "PURCHASE", 100, "10", at(3, 9)),
				row("sku-widget", "acme", "SOLD", -40, "", at(10, 14)),
			}
		},
	},
	{
		ScenarioDTO: describe("wac-vs-fifo", "WAC vs FIFO",
			"Purchases at 10 and 20, then 150 sold: WAC closes at 750, FIFO at 1000"),
		events: func() []costing.RawEvent {
			return []costing.RawEvent{
				row("sku-widget", "acme", "PURCHASE", 100, "10", at(2, 9)),
				row("sku-widget", "acme", "PURCHASE", 100, "20", at(9, 9)),
				row("sku-widget", "acme", "SOLD", -150, "", at(20, 16)),
			}
		},
	},
	{
		ScenarioDTO: describe("over-issue", "Over-Issue",
			"10 units on hand, 50 sold: the sale is clamped to 10 and 40 units are reported unfilled"),
		events: func() []costing.RawEvent {
			return []costing.RawEvent{
				row("sku-widget", "acme", "PURCHASE", 10, "5", at(4, 9)),
				row("sku-widget", "acme", "SOLD", -50, "", at(5, 11)),
			}
		},
	},
	{
		ScenarioDTO: describe("empty", "Empty Trail",
			"No stock history: all buckets zero, opening equals closing"),
		events: func() []costing.RawEvent { return nil },
	},
	{
		ScenarioDTO: describe("supplier-mix", "Supplier Mix",
			"Two suppliers and three items with opening stock from February, returns, write-offs and manual corrections"),
		events: supplierMix,
	},
}

func describe(id, name, description string) ScenarioDTO {
	return ScenarioDTO{
		ID:          id,
		Name:        name,
		Description: description,
		From:        scenarioFrom.Format(costing.DateLayout),
		To:          scenarioTo.Format(costing.DateLayout),
	}
}

func supplierMix() []costing.RawEvent {
	feb := func(day int) time.Time { return time.Date(2025, time.February, day, 9, 0, 0, 0, time.UTC) }
	return []costing.RawEvent{
		// opening stock
		row("sku-bolt", "acme", "INITIAL_STOCK", 500, "0.40", feb(1)),
		row("sku-nut", "acme", "INITIAL_STOCK", 800, "0.15", feb(1)),
		row("sku-gear", "globex", "INITIAL_STOCK", 20, "35", feb(3)),
		row("sku-bolt", "acme", "SOLD", -120, "", feb(18)),

		// window
		row("sku-bolt", "acme", "PURCHASE", 1000, "0.44", at(3, 8)),
		row("sku-nut", "acme", "PURCHASE", 400, "0.18", at(3, 8)),
		row("sku-gear", "globex", "PURCHASE", 30, "38.50", at(4, 10)),
		row("sku-bolt", "acme", "SOLD", -650, "", at(7, 15)),
		row("sku-nut", "acme", "SOLD", -900, "", at(8, 12)),
		row("sku-gear", "globex", "SOLD", -25, "", at(11, 13)),
		row("sku-gear", "globex", "RETURNED_BY_CUSTOMER", 2, "", at(14, 10)),
		row("sku-gear", "globex", "DAMAGED", -3, "", at(15, 16)),
		row("sku-bolt", "acme", "RETURNED_TO_SUPPLIER", -50, "", at(17, 9)),
		row("sku-nut", "acme", "MANUAL_UPDATE", 12, "", at(21, 17)),
		row("sku-bolt", "acme", "EXPIRED", -30, "", at(24, 8)),
		row("sku-gear", "globex", "PURCHASE", 10, "41", at(26, 10)),
		row("sku-gear", "globex", "SOLD", -18, "", at(28, 14)),
		row("sku-bolt", "acme", "MANUAL_UPDATE", -4, "", at(31, 18)),

		// after the window, ignored by a March report
		row("sku-bolt", "acme", "SOLD", -100, "", time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)),
	}
}

func at(day, hour int) time.Time {
	return time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
}

func row(item, supplier, reason string, delta int64, price string, ts time.Time) costing.RawEvent {
	r := costing.RawEvent{
		ItemID:        item,
		SupplierID:    supplier,
		Reason:        reason,
		QuantityDelta: delta,
		Timestamp:     ts,
		CreatedBy:     "scenario",
	}
	if price != "" {
		r.UnitPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	return r
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		dtos = append(dtos, s.ScenarioDTO)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario replaces the audit trail with a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !h.validRequest(w, req) {
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}

	written, err := h.Service.ReplaceEvents(r.Context(), s.events())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, LoadScenarioResponse{Scenario: s.ScenarioDTO, Events: len(written)})
}
