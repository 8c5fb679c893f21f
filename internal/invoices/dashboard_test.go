package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voltbill/voltbill/internal/dates"
)

type stubRepo struct {
	Repository

	aggregates   AggregateResult
	aggregateErr error
	listRows     []Invoice
	exportRows   []Invoice

	gotAggRange    dates.Range
	gotAggQuery    string
	gotListFilters ListFilters
	gotExportRange dates.Range
	gotExportField ExportField
}

func (s *stubRepo) Aggregates(_ context.Context, rng dates.Range, query string) (AggregateResult, error) {
	s.gotAggRange = rng
	s.gotAggQuery = query
	if s.aggregateErr != nil {
		return AggregateResult{}, s.aggregateErr
	}
	return s.aggregates, nil
}

func (s *stubRepo) List(_ context.Context, filters ListFilters) ([]Invoice, error) {
	s.gotListFilters = filters
	return s.listRows, nil
}

func (s *stubRepo) Get(_ context.Context, id string) (Invoice, error) {
	return Invoice{ID: id, CustomerID: "cust-1"}, nil
}

func (s *stubRepo) ExportRows(_ context.Context, rng dates.Range, field ExportField) ([]Invoice, error) {
	s.gotExportRange = rng
	s.gotExportField = field
	return s.exportRows, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedNow(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return day(y, m, d) }
}

func TestComputeDelta(t *testing.T) {
	if got := ComputeDelta(0, 0); got == nil || *got != 0 {
		t.Fatalf("ComputeDelta(0,0) = %v, want 0", got)
	}
	if got := ComputeDelta(5, 0); got != nil {
		t.Fatalf("ComputeDelta(5,0) = %v, want nil", *got)
	}
	if got := ComputeDelta(10, 5); got == nil || *got != 100 {
		t.Fatalf("ComputeDelta(10,5) = %v, want 100", got)
	}
	if got := ComputeDelta(10, 8); got == nil || *got != 25 {
		t.Fatalf("ComputeDelta(10,8) = %v, want 25", got)
	}
	if got := ComputeDelta(5, 10); got == nil || *got != -50 {
		t.Fatalf("ComputeDelta(5,10) = %v, want -50", got)
	}
}

func TestDeltaDirection(t *testing.T) {
	up, down, zero := 25.0, -3.0, 0.0
	if got := DeltaDirection(&up); got != "up" {
		t.Fatalf("direction(25) = %q", got)
	}
	if got := DeltaDirection(&down); got != "down" {
		t.Fatalf("direction(-3) = %q", got)
	}
	if got := DeltaDirection(&zero); got != "flat" {
		t.Fatalf("direction(0) = %q", got)
	}
	if got := DeltaDirection(nil); got != "flat" {
		t.Fatalf("direction(nil) = %q", got)
	}
}

func TestStatusBreakdownSumsToHundred(t *testing.T) {
	slices := StatusBreakdown(map[StatusCategory]int{
		StatusPending:   1,
		StatusProcessed: 1,
		StatusSuccess:   1,
	})
	sum := 0
	for _, s := range slices {
		sum += s.Percentage
	}
	if sum < 99 || sum > 101 {
		t.Fatalf("percentages sum to %d, want ~100", sum)
	}
}

func TestStatusBreakdownEmptyIsAllZero(t *testing.T) {
	slices := StatusBreakdown(map[StatusCategory]int{})
	require.Len(t, slices, len(Categories))
	for _, s := range slices {
		require.Zero(t, s.Value)
		require.Zero(t, s.Percentage)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]StatusCategory{
		"pending":   StatusPending,
		"queued":    StatusPending,
		"reprocess": StatusPending,
		"error":     StatusPending,
		"processed": StatusProcessed,
		"done":      StatusSuccess,
		"success":   StatusSuccess,
		"whatever":  StatusPending,
	}
	for raw, want := range cases {
		raw := raw
		if got := MapStatus(&raw); got != want {
			t.Fatalf("MapStatus(%q) = %q, want %q", raw, got, want)
		}
	}
	if got := MapStatus(nil); got != StatusPending {
		t.Fatalf("MapStatus(nil) = %q, want pending", got)
	}
}

func TestNormalizeFiltersDefaults(t *testing.T) {
	svc := NewDashboardService(&stubRepo{}, WithNow(fixedNow(2024, time.June, 15)))

	rng, query := svc.NormalizeFilters(DashboardFilters{Query: "  acme  "})
	require.Equal(t, day(2024, time.June, 1), rng.From)
	require.Equal(t, day(2024, time.June, 15), rng.To)
	require.Equal(t, "acme", query)

	rng, _ = svc.NormalizeFilters(DashboardFilters{From: "not-a-date", To: "also-bad"})
	require.Equal(t, day(2024, time.June, 1), rng.From)
	require.Equal(t, day(2024, time.June, 15), rng.To)
}

func TestNormalizeFiltersCollapsesInvertedRange(t *testing.T) {
	svc := NewDashboardService(&stubRepo{}, WithNow(fixedNow(2024, time.June, 15)))

	rng, _ := svc.NormalizeFilters(DashboardFilters{From: "2024-06-10", To: "2024-06-01"})
	require.Equal(t, day(2024, time.June, 1), rng.From)
	require.Equal(t, day(2024, time.June, 1), rng.To)
}

func TestDashboardMonthOverMonthScenario(t *testing.T) {
	repo := &stubRepo{
		aggregates: AggregateResult{
			CurrentTotal:  10,
			PreviousTotal: 8,
			StatusCounts: map[StatusCategory]int{
				StatusPending:   4,
				StatusProcessed: 3,
				StatusSuccess:   3,
			},
			MonthlyBuckets: []MonthlyBucket{{
				MonthAnchor:       day(2024, time.June, 1),
				RangeStart:        day(2024, time.June, 1),
				RangeEnd:          day(2024, time.June, 30),
				CurrentCount:      10,
				PreviousYearCount: 6,
			}},
		},
		listRows: []Invoice{{
			ID:         "inv-1",
			CustomerID: "cust-1",
			Customer:   &CustomerRef{ID: "cust-1", Email: strPtr("jane@example.com")},
			CreatedAt:  day(2024, time.June, 12),
		}},
	}
	svc := NewDashboardService(repo, WithNow(fixedNow(2024, time.June, 30)))

	data, err := svc.Dashboard(context.Background(), DashboardFilters{From: "2024-06-01", To: "2024-06-30"})
	require.NoError(t, err)

	require.Equal(t, 10, data.CurrentTotal)
	require.Equal(t, 8, data.PreviousTotal)
	require.NotNil(t, data.DeltaVsPrevious)
	require.InDelta(t, 25, *data.DeltaVsPrevious, 0.001)
	require.Equal(t, "up", data.DeltaDirection)

	require.Equal(t, "2024-05-01", data.PreviousFrom)
	require.Equal(t, "2024-05-30", data.PreviousTo)
	require.Equal(t, "1/5/2024 — 30/5/2024", data.PreviousRangeLabel)

	require.Len(t, data.MonthlySeries, 12)
	require.Equal(t, "2024-06-01", data.MonthlySeries[5].Anchor)
	require.Equal(t, 10, data.MonthlySeries[5].Current)
	require.Equal(t, 6, data.MonthlySeries[5].PreviousYear)

	require.Len(t, data.MonthlyComparisons, 1)
	require.Equal(t, "2024-06-01", data.MonthlyComparisons[0].RangeStart)
	require.Equal(t, "2024-06-30", data.MonthlyComparisons[0].RangeEnd)
	require.Equal(t, "2023-06-01", data.MonthlyComparisons[0].PreviousYearStart)
	require.Equal(t, "2023-06-30", data.MonthlyComparisons[0].PreviousYearEnd)
	require.Equal(t, 10, data.MonthlyComparisons[0].Current)
	require.Equal(t, 6, data.MonthlyComparisons[0].PreviousYear)

	require.Len(t, data.Rows, 1)
	require.Equal(t, "jane@example.com", data.Rows[0].Customer)
	require.Equal(t, StatusPending, data.Rows[0].Status)

	require.Equal(t, day(2024, time.June, 1), repo.gotAggRange.From)
	require.Equal(t, day(2024, time.June, 30), repo.gotAggRange.To)
	require.Equal(t, tableRowLimit, repo.gotListFilters.Limit)
}

func TestDashboardFillsMissingMonths(t *testing.T) {
	repo := &stubRepo{
		aggregates: AggregateResult{
			MonthlyBuckets: []MonthlyBucket{{
				MonthAnchor:  day(2024, time.February, 1),
				CurrentCount: 3,
			}},
		},
	}
	svc := NewDashboardService(repo, WithNow(fixedNow(2024, time.March, 31)))

	data, err := svc.Dashboard(context.Background(), DashboardFilters{From: "2024-01-15", To: "2024-03-20"})
	require.NoError(t, err)

	require.Len(t, data.MonthlyComparisons, 3)
	require.Equal(t, []string{"Ene", "Feb", "Mar"}, []string{
		data.MonthlyComparisons[0].Label, data.MonthlyComparisons[1].Label, data.MonthlyComparisons[2].Label,
	})
	require.Equal(t, 0, data.MonthlyComparisons[0].Current)
	require.Equal(t, 3, data.MonthlyComparisons[1].Current)
	require.Equal(t, 0, data.MonthlyComparisons[2].Current)
}

func TestDashboardSeriesSpansWholeYear(t *testing.T) {
	repo := &stubRepo{
		aggregates: AggregateResult{
			MonthlyBuckets: []MonthlyBucket{
				{MonthAnchor: day(2024, time.February, 1), CurrentCount: 7},
				{MonthAnchor: day(2023, time.November, 1), CurrentCount: 4},
			},
		},
	}
	svc := NewDashboardService(repo, WithNow(fixedNow(2024, time.June, 15)))

	data, err := svc.Dashboard(context.Background(), DashboardFilters{})
	require.NoError(t, err)

	require.Len(t, data.MonthlySeries, 12)
	require.Equal(t, "2024-01-01", data.MonthlySeries[0].Anchor)
	require.Equal(t, "2024-12-01", data.MonthlySeries[11].Anchor)
	require.Equal(t, 7, data.MonthlySeries[1].Current)
	for i, p := range data.MonthlySeries {
		if i != 1 {
			require.Zero(t, p.Current, "month %s", p.Anchor)
		}
	}

	// The default range covers a single month; the comparisons follow it.
	require.Len(t, data.MonthlyComparisons, 1)
	require.Equal(t, "2024-06-01", data.MonthlyComparisons[0].Anchor)
}

func TestDashboardPropagatesStoreErrors(t *testing.T) {
	repo := &stubRepo{aggregateErr: context.DeadlineExceeded}
	svc := NewDashboardService(repo, WithNow(fixedNow(2024, time.June, 15)))

	_, err := svc.Dashboard(context.Background(), DashboardFilters{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func strPtr(s string) *string { return &s }
