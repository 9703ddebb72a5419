/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Summary and comparison endpoints, including presentation rounding
- Query validation (window, method, dates)
- Event ingestion: validation, unknown reasons, duplicates
- Reason table, health and metrics endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/metrics"
	"github.com/warp/costing-engine/reporting"
	"github.com/warp/costing-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *sqlite.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := reporting.NewService(store, reporting.Options{
		Policy:  costing.DefaultPolicy(),
		Metrics: m,
		Now:     func() time.Time { return testNow },
		Audit:   true,
	})

	h := NewHandler(svc)
	h.AddHealthCheck("database", store)
	return &testServer{
		handler: h,
		router:  NewRouter(h, RouterOptions{Metrics: m, Gatherer: reg}),
		store:   store,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func event(item, reason string, delta int64, price string, day int) map[string]any {
	e := map[string]any{
		"itemId":        item,
		"supplierId":    "acme",
		"reason":        reason,
		"quantityDelta": delta,
		"timestamp":     time.Date(2025, time.March, day, 10, 0, 0, 0, time.UTC),
	}
	if price != "" {
		e["unitPrice"] = price
	}
	return e
}

func (ts *testServer) record(t *testing.T, events ...map[string]any) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/events", map[string]any{"events": events})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestGetSummary_SinglePurchase(t *testing.T) {
	// GIVEN: 100 bought at 10, 40 sold
	ts := newTestServer(t)
	ts.record(t,
		event("sku-1", "PURCHASE", 100, "10", 3),
		event("sku-1", "SOLD", -40, "", 10),
	)

	// WHEN: WAC summary for March
	rec := ts.do(t, http.MethodGet, "/api/summary?method=wac&from=2025-03-01&to=2025-03-31", nil)

	// THEN: figures are rounded for presentation and the ledger balances
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decode[SummaryDTO](t, rec)
	assert.Equal(t, "WAC", s.Method)
	assert.Equal(t, "2025-03-01", s.From)
	assert.Equal(t, "2025-03-31", s.To)
	assert.Equal(t, 31, s.Days)
	assert.Equal(t, int64(100), s.PurchasesQty)
	assert.Equal(t, "1000.00", s.PurchasesCost)
	assert.Equal(t, int64(40), s.SalesQty)
	assert.Equal(t, "400.00", s.SalesValue)
	assert.Equal(t, int64(60), s.ClosingQty)
	assert.Equal(t, "600.00", s.ClosingValue)
	assert.Equal(t, "10.0000", s.AverageUnitCost)
	assert.Equal(t, "300.00", s.AverageInventoryValue)
	assert.Equal(t, "1.3333", s.InventoryTurnover)
	assert.Equal(t, "6.37", s.InventoryHoldingCost) // 0.25 * 300 * 31 / 365
	assert.True(t, s.Balanced)
}

func TestGetSummary_DefaultWindowAndScope(t *testing.T) {
	ts := newTestServer(t)
	ts.record(t,
		event("sku-1", "PURCHASE", 10, "2", 5),
		map[string]any{
			"itemId": "sku-2", "supplierId": "globex", "reason": "PURCHASE",
			"quantityDelta": 7, "unitPrice": "3", "timestamp": time.Date(2025, time.March, 6, 0, 0, 0, 0, time.UTC),
		},
	)

	rec := ts.do(t, http.MethodGet, "/api/summary?method=FIFO&supplier=ACME", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decode[SummaryDTO](t, rec)
	assert.Equal(t, "2025-03-01", s.From, "30 days back from today")
	assert.Equal(t, "2025-03-31", s.To)
	assert.Equal(t, "acme", s.Scope.SupplierID)
	assert.Equal(t, int64(10), s.ClosingQty)
	assert.Equal(t, "20.00", s.ClosingValue)
}

func TestGetSummary_RejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"from after to", "method=wac&from=2025-02-01&to=2025-01-01"},
		{"unknown method", "method=lifo"},
		{"missing method", "from=2025-03-01"},
		{"malformed date", "method=wac&from=2025-13-01"},
		{"timestamp instead of date", "method=wac&to=2025-03-01T10:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/summary?"+tt.query, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestGetSummary_SingleDayWindow(t *testing.T) {
	ts := newTestServer(t)
	ts.record(t,
		event("sku-1", "PURCHASE", 5, "4", 9),
		event("sku-1", "PURCHASE", 5, "4", 10),
	)

	rec := ts.do(t, http.MethodGet, "/api/summary?method=wac&from=2025-03-10&to=2025-03-10", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[SummaryDTO](t, rec)
	assert.Equal(t, 1, s.Days)
	assert.Equal(t, int64(5), s.OpeningQty)
	assert.Equal(t, int64(5), s.PurchasesQty)
	assert.Equal(t, int64(10), s.ClosingQty)
}

func TestGetSummary_OverIssueReportsUnfilled(t *testing.T) {
	ts := newTestServer(t)
	ts.record(t,
		event("sku-1", "PURCHASE", 10, "5", 4),
		event("sku-1", "SOLD", -50, "", 5),
	)

	rec := ts.do(t, http.MethodGet, "/api/summary?method=fifo", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[SummaryDTO](t, rec)
	assert.Equal(t, int64(10), s.SalesQty)
	assert.Equal(t, "50.00", s.SalesValue)
	assert.Equal(t, int64(0), s.ClosingQty)
	assert.Equal(t, "0.00", s.ClosingValue)
	assert.Equal(t, int64(40), s.UnfilledQty)
}

func TestGetSummary_StoredUnknownReasonIs422(t *testing.T) {
	// GIVEN: a row written behind the service's back with an unmapped reason
	ts := newTestServer(t)
	_, err := ts.store.Append(context.Background(), []costing.RawEvent{{
		ID: "bad-row", ItemID: "sku-1", Reason: "BORROWED", QuantityDelta: -1,
		Timestamp: time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/summary?method=wac", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "bad-row")
	assert.Contains(t, resp.Details, "BORROWED")
}

// =============================================================================
// COMPARE
// =============================================================================

func TestCompareMethods(t *testing.T) {
	ts := newTestServer(t)
	ts.record(t,
		event("sku-1", "PURCHASE", 100, "10", 2),
		event("sku-1", "PURCHASE", 100, "20", 3),
		event("sku-1", "SOLD", -150, "", 4),
	)

	rec := ts.do(t, http.MethodGet, "/api/summary/compare?from=2025-03-01&to=2025-03-31", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decode[CompareDTO](t, rec)
	assert.Equal(t, "WAC", c.WAC.Method)
	assert.Equal(t, "FIFO", c.FIFO.Method)
	assert.Equal(t, "2250.00", c.WAC.SalesValue)
	assert.Equal(t, "750.00", c.WAC.ClosingValue)
	assert.Equal(t, "15.0000", c.WAC.AverageUnitCost)
	assert.Equal(t, "2000.00", c.FIFO.SalesValue)
	assert.Equal(t, "1000.00", c.FIFO.ClosingValue)
	assert.Equal(t, "20.0000", c.FIFO.AverageUnitCost)
	assert.Equal(t, "-250.00", c.COGSDifference)
	assert.Equal(t, "250.00", c.ClosingValueDifference)
}

func TestCompareMethods_InvalidWindow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/summary/compare?from=2025-03-02&to=2025-03-01", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// STREAM
// =============================================================================

func TestGetStream(t *testing.T) {
	ts := newTestServer(t)
	ts.record(t,
		event("sku-1", "SOLD", 3, "", 20), // recorded with the wrong sign
		event("sku-1", "PURCHASE", 10, "1", 1),
	)

	rec := ts.do(t, http.MethodGet, "/api/summary/events?from=2025-03-15&to=2025-03-31", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[StreamDTO](t, rec)
	require.Len(t, s.Events, 2)
	assert.Equal(t, "purchase", s.Events[0].Category)
	assert.False(t, s.Events[0].InWindow)
	assert.Equal(t, "sale", s.Events[1].Category)
	assert.Equal(t, int64(-3), s.Events[1].QuantityDelta)
	assert.True(t, s.Events[1].InWindow)
}

// =============================================================================
// EVENTS
// =============================================================================

func TestRecordEvents_AssignsIDsAndLists(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/events", map[string]any{"events": []map[string]any{
		event("sku-1", "purchase", 3, "2.5", 1),
		event("sku-2", "MANUAL_UPDATE", -1, "", 2),
	}})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[RecordEventsResponse](t, rec)
	assert.Equal(t, 2, resp.Recorded)
	require.Len(t, resp.Events, 2)
	assert.NotEmpty(t, resp.Events[0].ID)
	assert.Equal(t, "purchase", resp.Events[0].Category)
	require.NotNil(t, resp.Events[0].UnitPrice)
	assert.Equal(t, "2.5", *resp.Events[0].UnitPrice)
	assert.Nil(t, resp.Events[1].UnitPrice)

	rec = ts.do(t, http.MethodGet, "/api/events?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]EventDTO](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, "sku-2", listed[0].ItemID, "newest first")
	assert.Equal(t, "adjustment", listed[0].Category)
}

func TestRecordEvents_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"no events", map[string]any{"events": []any{}}, "Events"},
		{"missing item", map[string]any{"events": []any{
			map[string]any{"reason": "PURCHASE", "quantityDelta": 1, "timestamp": testNow},
		}}, "Events[0].ItemID"},
		{"missing timestamp", map[string]any{"events": []any{
			map[string]any{"itemId": "sku-1", "reason": "PURCHASE", "quantityDelta": 1},
		}}, "Events[0].Timestamp"},
		{"missing reason", map[string]any{"events": []any{
			map[string]any{"itemId": "sku-1", "quantityDelta": 1, "timestamp": testNow},
		}}, "Events[0].Reason"},
		{"quantity overflows sign flip", map[string]any{"events": []any{
			map[string]any{"itemId": "sku-1", "reason": "PURCHASE", "quantityDelta": int64(math.MinInt64), "timestamp": testNow},
		}}, "Events[0].QuantityDelta"},
		{"quantity above range", map[string]any{"events": []any{
			map[string]any{"itemId": "sku-1", "reason": "PURCHASE", "quantityDelta": costing.MaxQuantityDelta + 1, "timestamp": testNow},
		}}, "Events[0].QuantityDelta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/events", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}

	n, err := ts.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordEvents_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordEvents_NegativePrice(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/events", map[string]any{"events": []any{
		event("sku-1", "PURCHASE", 1, "-2", 1),
	}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordEvents_UnknownReasonWritesNothing(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/events", map[string]any{"events": []any{
		event("sku-1", "PURCHASE", 1, "1", 1),
		event("sku-1", "TELEPORTED", -1, "", 2),
	}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	n, err := ts.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordEvents_DuplicateIDConflicts(t *testing.T) {
	ts := newTestServer(t)
	e := event("sku-1", "PURCHASE", 1, "1", 1)
	e["id"] = "po-1001"
	ts.record(t, e)

	rec := ts.do(t, http.MethodPost, "/api/events", map[string]any{"events": []any{e}})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListEvents_Limit(t *testing.T) {
	ts := newTestServer(t)

	for _, limit := range []string{"0", "-3", "abc", "1001"} {
		rec := ts.do(t, http.MethodGet, "/api/events?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}

	rec := ts.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]EventDTO](t, rec))
}

// =============================================================================
// REASONS, HEALTH, METRICS
// =============================================================================

func TestListReasons(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/reasons", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	reasons := decode[[]ReasonDTO](t, rec)
	require.Len(t, reasons, len(costing.DefaultReasons))
	assert.Equal(t, ReasonDTO{Code: "DAMAGED", Category: "write_off", Direction: "out"}, reasons[0])

	byCode := make(map[string]ReasonDTO)
	for _, r := range reasons {
		byCode[r.Code] = r
	}
	assert.Equal(t, "in", byCode["RETURNED_BY_CUSTOMER"].Direction)
	assert.Equal(t, "either", byCode["MANUAL_UPDATE"].Direction)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])

	ts.handler.AddHealthCheck("cache", failingPinger{})
	rec = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["cache"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/summary?method=wac", nil)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `costing_http_requests_total{method="GET",path="/api/summary`)
	assert.Contains(t, body, `costing_computations_total{method="WAC",outcome="ok"} 1`)
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/nothing-here", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decode[ErrorResponse](t, rec).Error)
}
