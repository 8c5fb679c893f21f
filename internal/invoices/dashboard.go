package invoices

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/voltbill/voltbill/internal/dates"
)

const tableRowLimit = 20

// AggregateResult holds the raw counts for a dashboard range. It is
// computed fresh per request and never cached.
type AggregateResult struct {
	CurrentTotal   int
	PreviousTotal  int
	StatusCounts   map[StatusCategory]int
	MonthlyBuckets []MonthlyBucket
}

// MonthlyBucket compares one month slice of the range against the same
// calendar slice one year earlier.
type MonthlyBucket struct {
	MonthAnchor       time.Time
	RangeStart        time.Time
	RangeEnd          time.Time
	CurrentCount      int
	PreviousYearCount int
}

// DashboardFilters are the raw query parameters of a dashboard request.
// Invalid dates silently fall back to defaults.
type DashboardFilters struct {
	From  string
	To    string
	Query string
}

// StatusSlice is one category's share of the breakdown.
type StatusSlice struct {
	Category   StatusCategory `json:"category"`
	Value      int            `json:"value"`
	Percentage int            `json:"percentage"`
}

// MonthPoint is one bar of the year-over-year chart. The series always
// spans the twelve months of the range's year.
type MonthPoint struct {
	Anchor       string `json:"anchor"`
	Label        string `json:"label"`
	Current      int    `json:"current"`
	PreviousYear int    `json:"previousYear"`
}

// MonthComparison compares one month slice of the filtered range with
// the same calendar slice one year earlier.
type MonthComparison struct {
	Anchor            string `json:"anchor"`
	Label             string `json:"label"`
	RangeStart        string `json:"rangeStart"`
	RangeEnd          string `json:"rangeEnd"`
	PreviousYearStart string `json:"previousYearStart"`
	PreviousYearEnd   string `json:"previousYearEnd"`
	Current           int    `json:"current"`
	PreviousYear      int    `json:"previousYear"`
}

// TableRow is a display-ready recent invoice.
type TableRow struct {
	ID             string         `json:"id"`
	Customer       string         `json:"customer"`
	Status         StatusCategory `json:"status"`
	Total          *float64       `json:"total"`
	TotalFormatted string         `json:"totalFormatted"`
	IssueDate      string         `json:"issueDate"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// DashboardData is the full caller-facing dashboard payload.
type DashboardData struct {
	From               string            `json:"from"`
	To                 string            `json:"to"`
	RangeLabel         string            `json:"rangeLabel"`
	RangeSummary       string            `json:"rangeSummary"`
	PreviousFrom       string            `json:"previousFrom"`
	PreviousTo         string            `json:"previousTo"`
	PreviousRangeLabel string            `json:"previousRangeLabel"`
	Query              string            `json:"query,omitempty"`
	CurrentTotal       int               `json:"currentTotal"`
	PreviousTotal      int               `json:"previousTotal"`
	DeltaVsPrevious    *float64          `json:"deltaVsPrevious"`
	DeltaDirection     string            `json:"deltaDirection"`
	StatusBreakdown    []StatusSlice     `json:"statusBreakdown"`
	MonthlySeries      []MonthPoint      `json:"monthlySeries"`
	MonthlyComparisons []MonthComparison `json:"monthlyComparisons"`
	Rows               []TableRow        `json:"rows"`
}

// DashboardService computes the aggregate view over the repository.
type DashboardService struct {
	repo Repository
	now  func() time.Time
}

// DashboardOption customises a DashboardService.
type DashboardOption func(*DashboardService)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) DashboardOption {
	return func(s *DashboardService) {
		s.now = now
	}
}

// NewDashboardService wires the engine to its query layer.
func NewDashboardService(repo Repository, opts ...DashboardOption) *DashboardService {
	s := &DashboardService{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeFilters resolves raw filters into an effective range and
// query. Missing or unparseable dates default to the current month so
// far; from > to collapses to the single day to.
func (s *DashboardService) NormalizeFilters(f DashboardFilters) (dates.Range, string) {
	today := dates.DayUTC(s.now().UTC())

	from, ok := dates.ParseISODate(f.From)
	if !ok {
		from = dates.StartOfMonthUTC(today)
	}
	to, ok := dates.ParseISODate(f.To)
	if !ok {
		to = today
	}
	if from.After(to) {
		from = to
	}
	return dates.Range{From: from, To: to}, strings.TrimSpace(f.Query)
}

// Dashboard computes the aggregate payload for the given filters. The
// aggregate statistics and the recent-invoice table are independent
// reads, fetched concurrently.
func (s *DashboardService) Dashboard(ctx context.Context, filters DashboardFilters) (DashboardData, error) {
	rng, query := s.NormalizeFilters(filters)

	var (
		agg  AggregateResult
		rows []Invoice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agg, err = s.repo.Aggregates(gctx, rng, query)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.repo.List(gctx, ListFilters{Range: rng, Query: query, Limit: tableRowLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardData{}, err
	}

	delta := ComputeDelta(agg.CurrentTotal, agg.PreviousTotal)
	previous := dates.ShiftRangeByMonths(rng, -1)

	data := DashboardData{
		From:               dates.ISODateString(rng.From),
		To:                 dates.ISODateString(rng.To),
		RangeLabel:         dates.FormatDateRange(rng.From, rng.To),
		RangeSummary:       dates.FormatRangeSummary(rng.From, rng.To),
		PreviousFrom:       dates.ISODateString(previous.From),
		PreviousTo:         dates.ISODateString(previous.To),
		PreviousRangeLabel: dates.FormatDateRange(previous.From, previous.To),
		Query:              query,
		CurrentTotal:       agg.CurrentTotal,
		PreviousTotal:      agg.PreviousTotal,
		DeltaVsPrevious:    delta,
		DeltaDirection:     DeltaDirection(delta),
		StatusBreakdown:    StatusBreakdown(agg.StatusCounts),
		MonthlySeries:      yearSeries(rng.From.Year(), agg.MonthlyBuckets),
		MonthlyComparisons: monthlyComparisons(rng, agg.MonthlyBuckets),
		Rows:               tableRows(rows),
	}
	return data, nil
}

// ComputeDelta is the month-over-month change in percent. A zero
// baseline has no defined percentage: the delta is 0 only when both
// counts are zero, otherwise nil.
func ComputeDelta(current, previous int) *float64 {
	if previous == 0 {
		if current == 0 {
			zero := 0.0
			return &zero
		}
		return nil
	}
	delta := (float64(current-previous) / float64(previous)) * 100
	return &delta
}

// DeltaDirection tags a delta as up, down or flat. A nil delta is flat.
func DeltaDirection(delta *float64) string {
	switch {
	case delta == nil || *delta == 0:
		return "flat"
	case *delta > 0:
		return "up"
	default:
		return "down"
	}
}

// StatusBreakdown shapes per-category counts into display slices with
// whole-number percentages. All zero when the total is zero.
func StatusBreakdown(counts map[StatusCategory]int) []StatusSlice {
	total := 0
	for _, cat := range Categories {
		total += counts[cat]
	}
	slices := make([]StatusSlice, 0, len(Categories))
	for _, cat := range Categories {
		value := counts[cat]
		pct := 0
		if total > 0 {
			pct = int(math.Round(float64(value) / float64(total) * 100))
		}
		slices = append(slices, StatusSlice{Category: cat, Value: value, Percentage: pct})
	}
	return slices
}

// yearSeries spreads the store's buckets over all twelve months of the
// given year, so the chart always renders January through December and
// counts outside the filtered range are not dropped.
func yearSeries(year int, buckets []MonthlyBucket) []MonthPoint {
	byAnchor := bucketsByAnchor(buckets)
	points := make([]MonthPoint, 0, 12)
	for m := time.January; m <= time.December; m++ {
		anchor := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		key := dates.ISODateString(anchor)
		bucket := byAnchor[key]
		points = append(points, MonthPoint{
			Anchor:       key,
			Label:        dates.MonthLabel(m),
			Current:      bucket.CurrentCount,
			PreviousYear: bucket.PreviousYearCount,
		})
	}
	return points
}

// monthlyComparisons merges the store's buckets onto the engine's own
// month partition of the range, so every month in the range shows up
// even when the store returned no bucket for it. Each slice carries the
// year-earlier slice it is compared against.
func monthlyComparisons(rng dates.Range, buckets []MonthlyBucket) []MonthComparison {
	byAnchor := bucketsByAnchor(buckets)
	slices := dates.SliceRangeByMonths(rng)
	out := make([]MonthComparison, 0, len(slices))
	for _, sl := range slices {
		anchor := dates.StartOfMonthUTC(sl.From)
		key := dates.ISODateString(anchor)
		bucket := byAnchor[key]
		prior := dates.ShiftRangeByYears(sl, -1)
		out = append(out, MonthComparison{
			Anchor:            key,
			Label:             dates.MonthLabel(anchor.Month()),
			RangeStart:        dates.ISODateString(sl.From),
			RangeEnd:          dates.ISODateString(sl.To),
			PreviousYearStart: dates.ISODateString(prior.From),
			PreviousYearEnd:   dates.ISODateString(prior.To),
			Current:           bucket.CurrentCount,
			PreviousYear:      bucket.PreviousYearCount,
		})
	}
	return out
}

func bucketsByAnchor(buckets []MonthlyBucket) map[string]MonthlyBucket {
	byAnchor := make(map[string]MonthlyBucket, len(buckets))
	for _, b := range buckets {
		byAnchor[dates.ISODateString(b.MonthAnchor)] = b
	}
	return byAnchor
}

var eurPrinter = message.NewPrinter(language.EuropeanSpanish)

func formatEUR(total *float64) string {
	if total == nil {
		return dates.Placeholder
	}
	return eurPrinter.Sprintf("%.2f €", *total)
}

func tableRows(invoices []Invoice) []TableRow {
	rows := make([]TableRow, 0, len(invoices))
	for _, inv := range invoices {
		customer := inv.CustomerID
		if inv.Customer != nil {
			customer = inv.Customer.DisplayName()
		}
		issue := dates.Placeholder
		if inv.IssueDate != nil {
			issue = dates.FormatDate(*inv.IssueDate)
		}
		rows = append(rows, TableRow{
			ID:             inv.ID,
			Customer:       customer,
			Status:         inv.Category(),
			Total:          inv.Total,
			TotalFormatted: formatEUR(inv.Total),
			IssueDate:      issue,
			CreatedAt:      inv.CreatedAt,
		})
	}
	return rows
}
