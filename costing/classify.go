/*
classify.go - Raw reason codes to canonical categories

PURPOSE:
  The audit trail records free-form reason codes (SOLD, DAMAGED, ...).
  The replay engines only understand six categories. ReasonTable is the
  explicit, exhaustive mapping between the two.

POLICY:
  A code that is not in the table is a classification failure. It is never
  defaulted to Adjustment: that would corrupt bucket totals with no audit
  signal.

SIGN NORMALIZATION:
  Purchase and ReturnIn are always inbound (+), Sale, ReturnOut and WriteOff
  are always outbound (-). Adjustment keeps the sign it was recorded with.
  A magnitude above MaxQuantityDelta is rejected, which also keeps int64
  bucket sums far from overflow.

DEFAULT TABLE:
  INITIAL_STOCK, PURCHASE          -> purchase
  SOLD                             -> sale
  RETURNED_BY_CUSTOMER             -> return_in
  RETURNED_TO_SUPPLIER             -> return_out
  SCRAPPED, DESTROYED, DAMAGED,
  EXPIRED, LOST                    -> write_off
  MANUAL_UPDATE, PRICE_CHANGE      -> adjustment
*/
package costing

import (
	"sort"
	"strings"
)

// MaxQuantityDelta bounds the magnitude of a single row's quantity.
const MaxQuantityDelta int64 = 1_000_000_000

// ReasonTable maps upper-case raw reason codes to categories.
type ReasonTable map[string]Category

// DefaultReasons is the reason table of the stock history audit trail.
var DefaultReasons = ReasonTable{
	"INITIAL_STOCK":        CategoryPurchase,
	"PURCHASE":             CategoryPurchase,
	"SOLD":                 CategorySale,
	"RETURNED_BY_CUSTOMER": CategoryReturnIn,
	"RETURNED_TO_SUPPLIER": CategoryReturnOut,
	"SCRAPPED":             CategoryWriteOff,
	"DESTROYED":            CategoryWriteOff,
	"DAMAGED":              CategoryWriteOff,
	"EXPIRED":              CategoryWriteOff,
	"LOST":                 CategoryWriteOff,
	"MANUAL_UPDATE":        CategoryAdjustment,
	"PRICE_CHANGE":         CategoryAdjustment,
}

// Lookup resolves a raw code, ignoring case and surrounding whitespace.
func (t ReasonTable) Lookup(code string) (Category, bool) {
	c, ok := t[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// Codes returns the raw codes in sorted order.
func (t ReasonTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Classify turns a raw audit row into a canonical event.
func (t ReasonTable) Classify(raw RawEvent) (Event, error) {
	category, ok := t.Lookup(raw.Reason)
	if !ok {
		return Event{}, &UnclassifiedReasonError{
			EventID: raw.ID,
			Seq:     raw.Seq,
			ItemID:  raw.ItemID,
			Reason:  raw.Reason,
		}
	}

	delta := raw.QuantityDelta
	if delta > MaxQuantityDelta || delta < -MaxQuantityDelta {
		return Event{}, &InvalidQuantityError{
			EventID:       raw.ID,
			ItemID:        raw.ItemID,
			QuantityDelta: raw.QuantityDelta,
		}
	}
	if delta < 0 {
		delta = -delta
	}
	switch category.Direction() {
	case DirectionIn:
	case DirectionOut:
		delta = -delta
	default:
		delta = raw.QuantityDelta
	}

	return Event{
		ID:            raw.ID,
		Seq:           raw.Seq,
		ItemID:        raw.ItemID,
		SupplierID:    raw.SupplierID,
		Reason:        strings.ToUpper(strings.TrimSpace(raw.Reason)),
		Category:      category,
		QuantityDelta: delta,
		UnitPrice:     raw.UnitPrice,
		Timestamp:     raw.Timestamp.UTC(),
	}, nil
}

// ClassifyAll classifies every row, stopping at the first failure.
func (t ReasonTable) ClassifyAll(raws []RawEvent) ([]Event, error) {
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		e, err := t.Classify(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// Classify uses DefaultReasons.
func Classify(raw RawEvent) (Event, error) {
	return DefaultReasons.Classify(raw)
}
