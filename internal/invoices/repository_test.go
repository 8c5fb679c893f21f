package invoices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeAggregates(t *testing.T) {
	raw := []byte(`{
		"currentTotal": 10,
		"previousTotal": 8,
		"statusCounts": {"pending": 4, "processed": 3, "success": 3},
		"monthlyBuckets": [{
			"monthAnchor": "2024-06-01",
			"rangeStart": "2024-06-01",
			"rangeEnd": "2024-06-30",
			"currentCount": 10,
			"previousYearCount": 6
		}]
	}`)

	result, err := decodeAggregates(raw)
	require.NoError(t, err)
	require.Equal(t, 10, result.CurrentTotal)
	require.Equal(t, 8, result.PreviousTotal)
	require.Equal(t, 4, result.StatusCounts[StatusPending])
	require.Equal(t, 3, result.StatusCounts[StatusProcessed])
	require.Equal(t, 3, result.StatusCounts[StatusSuccess])
	require.Len(t, result.MonthlyBuckets, 1)
	require.Equal(t, day(2024, time.June, 1), result.MonthlyBuckets[0].MonthAnchor)
	require.Equal(t, 6, result.MonthlyBuckets[0].PreviousYearCount)
}

func TestDecodeAggregatesDefaultsMissingFields(t *testing.T) {
	result, err := decodeAggregates([]byte(`{}`))
	require.NoError(t, err)
	require.Zero(t, result.CurrentTotal)
	require.Zero(t, result.PreviousTotal)
	require.Empty(t, result.MonthlyBuckets)
	for _, cat := range Categories {
		require.Zero(t, result.StatusCounts[cat])
	}

	result, err = decodeAggregates(nil)
	require.NoError(t, err)
	require.NotNil(t, result.StatusCounts)
}

func TestDecodeAggregatesSkipsMalformedBuckets(t *testing.T) {
	raw := []byte(`{
		"monthlyBuckets": [
			{"monthAnchor": "nonsense", "currentCount": 5},
			{"monthAnchor": "2024-02-01", "currentCount": 2}
		]
	}`)
	result, err := decodeAggregates(raw)
	require.NoError(t, err)
	require.Len(t, result.MonthlyBuckets, 1)
	require.Equal(t, day(2024, time.February, 1), result.MonthlyBuckets[0].MonthAnchor)
}
