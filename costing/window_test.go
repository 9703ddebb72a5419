package costing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costing-engine/costing"
)

func TestNewWindow_FromAfterTo_Invalid(t *testing.T) {
	from := costing.Day(2025, time.February, 1)
	to := costing.Day(2025, time.January, 1)

	_, err := costing.NewWindow(from, to, costing.Scope{})

	require.ErrorIs(t, err, costing.ErrInvalidWindow)
	var we *costing.InvalidWindowError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, from, we.From)
	assert.Contains(t, err.Error(), "2025-02-01")
	assert.True(t, costing.IsClientError(err))
}

func TestNewWindow_SingleDay(t *testing.T) {
	day := costing.Day(2025, time.March, 10)

	w, err := costing.NewWindow(day, day.Add(15*time.Hour), costing.Scope{})
	require.NoError(t, err)

	assert.Equal(t, 1, w.Days())
	assert.True(t, w.Contains(day))
	assert.True(t, w.Contains(day.Add(23*time.Hour+59*time.Minute)))
	assert.False(t, w.Contains(day.AddDate(0, 0, 1)))
	assert.True(t, w.BeforeStart(day.Add(-time.Nanosecond)))
}

func TestWindow_BoundsAreInclusiveDays(t *testing.T) {
	w, err := costing.NewWindow(costing.Day(2025, time.January, 1), costing.Day(2025, time.January, 31), costing.Scope{})
	require.NoError(t, err)

	assert.Equal(t, 31, w.Days())
	assert.Equal(t, costing.Day(2025, time.February, 1), w.End())
	assert.Equal(t, "[2025-01-01, 2025-01-31] all", w.String())
}

func TestResolveWindow_Defaults(t *testing.T) {
	now := time.Date(2025, time.June, 15, 13, 45, 0, 0, time.UTC)

	t.Run("both omitted", func(t *testing.T) {
		w, err := costing.ResolveWindow(nil, nil, costing.Scope{}, now, 0)
		require.NoError(t, err)
		assert.Equal(t, costing.Day(2025, time.May, 16), w.From)
		assert.Equal(t, costing.Day(2025, time.June, 15), w.To)
	})

	t.Run("from omitted", func(t *testing.T) {
		to := costing.Day(2025, time.March, 31)
		w, err := costing.ResolveWindow(nil, &to, costing.Scope{}, now, 7)
		require.NoError(t, err)
		assert.Equal(t, costing.Day(2025, time.March, 24), w.From)
		assert.Equal(t, to, w.To)
	})

	t.Run("to omitted", func(t *testing.T) {
		from := costing.Day(2025, time.June, 1)
		w, err := costing.ResolveWindow(&from, nil, costing.Scope{}, now, 30)
		require.NoError(t, err)
		assert.Equal(t, from, w.From)
		assert.Equal(t, costing.Day(2025, time.June, 15), w.To)
	})

	t.Run("from in the future", func(t *testing.T) {
		from := costing.Day(2025, time.July, 1)
		_, err := costing.ResolveWindow(&from, nil, costing.Scope{}, now, 30)
		assert.ErrorIs(t, err, costing.ErrInvalidWindow)
	})
}

func TestResolveWindow_NormalizesScope(t *testing.T) {
	now := costing.Day(2025, time.June, 15)
	w, err := costing.ResolveWindow(nil, nil, costing.Scope{SupplierID: " ACME ", ItemID: " sku-1 "}, now, 30)
	require.NoError(t, err)
	assert.Equal(t, costing.Scope{SupplierID: "acme", ItemID: "sku-1"}, w.Scope)
}

func TestParseDate(t *testing.T) {
	d, err := costing.ParseDate("2025-02-28")
	require.NoError(t, err)
	assert.Equal(t, costing.Day(2025, time.February, 28), d)

	_, err = costing.ParseDate("28/02/2025")
	assert.Error(t, err)
}

func TestOrderEvents_TimestampThenSeq(t *testing.T) {
	ts := costing.Day(2025, time.March, 1)
	events := []costing.Event{
		{ID: "c", Seq: 3, Timestamp: ts.Add(time.Hour)},
		{ID: "b", Seq: 2, Timestamp: ts},
		{ID: "a", Seq: 1, Timestamp: ts},
		{ID: "z", Seq: 0, Timestamp: ts.Add(-time.Hour)},
	}

	costing.OrderEvents(events)

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"z", "a", "b", "c"}, ids)
}
