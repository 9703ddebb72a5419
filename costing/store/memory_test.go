package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/costing/store"
)

func day(d int) time.Time {
	return time.Date(2025, time.April, d, 9, 0, 0, 0, time.UTC)
}

func TestMemory_AppendAssignsIDsAndSeq(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	out, err := m.Append(ctx, []costing.RawEvent{
		{ItemID: "sku-1", Reason: "PURCHASE", QuantityDelta: 5, Timestamp: day(1)},
		{ID: "fixed", ItemID: "sku-1", Reason: "SOLD", QuantityDelta: -1, Timestamp: day(2)},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.NotEmpty(t, out[0].ID)
	assert.Equal(t, "fixed", out[1].ID)
	assert.Equal(t, int64(1), out[0].Seq)
	assert.Equal(t, int64(2), out[1].Seq)
	assert.Equal(t, 2, m.Len())
}

func TestMemory_DuplicateIDRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.Append(ctx, []costing.RawEvent{{ID: "a", Timestamp: day(1)}})
	require.NoError(t, err)

	_, err = m.Append(ctx, []costing.RawEvent{
		{ID: "b", Timestamp: day(2)},
		{ID: "a", Timestamp: day(3)},
	})
	var dup *store.DuplicateEventError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.ID)
	assert.ErrorIs(t, err, costing.ErrDuplicateEvent)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_EventsOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.Append(ctx, []costing.RawEvent{
		{ID: "late", SupplierID: "acme", ItemID: "sku-1", Timestamp: day(5)},
		{ID: "early", SupplierID: "ACME", ItemID: "sku-1", Timestamp: day(1)},
		{ID: "tie-1", SupplierID: "acme", ItemID: "sku-2", Timestamp: day(3)},
		{ID: "tie-2", SupplierID: "globex", ItemID: "sku-3", Timestamp: day(3)},
	})
	require.NoError(t, err)

	all, err := m.Events(ctx, costing.Scope{}, day(10))
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "tie-1", "tie-2", "late"}, ids(all))

	acme, err := m.Events(ctx, costing.Scope{SupplierID: "acme"}, day(10))
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "tie-1", "late"}, ids(acme))

	item, err := m.Events(ctx, costing.Scope{ItemID: "sku-1"}, day(5))
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, ids(item), "until is exclusive")
}

func TestMemory_EventsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, err := m.Append(ctx, []costing.RawEvent{{ID: "a", ItemID: "sku-1", Timestamp: day(1)}})
	require.NoError(t, err)

	got, err := m.Events(ctx, costing.Scope{}, day(2))
	require.NoError(t, err)
	got[0].ItemID = "mutated"

	again, err := m.Events(ctx, costing.Scope{}, day(2))
	require.NoError(t, err)
	assert.Equal(t, "sku-1", again[0].ItemID)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, err := m.Append(ctx, []costing.RawEvent{{ID: "a", Timestamp: day(1)}})
	require.NoError(t, err)

	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, 0, m.Len())

	out, err := m.Append(ctx, []costing.RawEvent{{ID: "a", Timestamp: day(1)}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out[0].Seq)
}

func ids(events []costing.RawEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
