package costing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inbound(qty int64, unit string) Event {
	return Event{
		Category:      CategoryPurchase,
		QuantityDelta: qty,
		UnitPrice:     decimal.NewNullDecimal(decimal.RequireFromString(unit)),
		Timestamp:     time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLayerQueue_CompactsDeadPrefix(t *testing.T) {
	var q layerQueue
	for i := 1; i <= 200; i++ {
		q.push(CostLayer{Remaining: int64(i), UnitCost: decimal.NewFromInt(1)})
	}
	for i := 0; i < 150; i++ {
		q.pop()
	}

	assert.Equal(t, 50, q.Len())
	assert.Less(t, q.head, compactAfter)
	assert.Equal(t, int64(151), q.front().Remaining)

	layers := q.Layers()
	require.Len(t, layers, 50)
	assert.Equal(t, int64(200), layers[49].Remaining)
}

func TestLayerQueue_ResetsWhenDrained(t *testing.T) {
	var q layerQueue
	q.push(CostLayer{Remaining: 1})
	q.push(CostLayer{Remaining: 2})
	q.pop()
	q.pop()

	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.head)
	assert.Empty(t, q.layers)
}

func TestLayerBook_IssueSpansLayers(t *testing.T) {
	var b layerBook
	b.receive(inbound(100, "10"))
	b.receive(inbound(100, "20"))
	b.receive(inbound(10, "30"))

	issued, cost := b.issue(205)
	assert.Equal(t, int64(205), issued)
	assert.True(t, decimal.NewFromInt(3150).Equal(cost), cost.String())

	require.NoError(t, b.audit())
	layers := b.queue.Layers()
	require.Len(t, layers, 1)
	assert.Equal(t, int64(5), layers[0].Remaining)
	assert.True(t, decimal.NewFromInt(30).Equal(layers[0].UnitCost))
}

func TestLayerBook_AuditDetectsDrift(t *testing.T) {
	var b layerBook
	b.receive(inbound(10, "1"))
	b.quantity = 11

	assert.Error(t, b.audit())
}

func TestRunningState_FullIssueRemovesExactValue(t *testing.T) {
	var s runningState
	s.receive(inbound(3, "1"))
	s.receive(inbound(3, "2"))

	issued, cost := s.issue(1)
	assert.Equal(t, int64(1), issued)
	assert.True(t, decimal.RequireFromString("1.5").Equal(cost))

	issued, cost = s.issue(10)
	assert.Equal(t, int64(5), issued)
	assert.True(t, decimal.RequireFromString("7.5").Equal(cost))
	assert.True(t, s.value.IsZero())
	require.NoError(t, s.audit())
}

func TestRunningState_AuditDetectsResidue(t *testing.T) {
	s := runningState{quantity: 0, value: decimal.RequireFromString("0.01")}
	assert.Error(t, s.audit())

	s = runningState{quantity: -1}
	assert.Error(t, s.audit())
}
