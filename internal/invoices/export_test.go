package invoices

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMarshalCSVQuotesOnlyWhenNeeded(t *testing.T) {
	total := 123.45
	status := "processed"
	issue := day(2024, time.June, 1)
	rows := []Invoice{
		{
			ID:        "inv-1",
			Customer:  &CustomerRef{ID: "c1", Name: strPtr("Doe, Jane")},
			Status:    &status,
			IssueDate: &issue,
			Total:     &total,
			CreatedAt: day(2024, time.June, 2),
		},
		{
			ID:        "inv-2",
			Customer:  &CustomerRef{ID: "c2", Name: strPtr("Plain Name")},
			CreatedAt: day(2024, time.June, 3),
		},
	}

	out, err := MarshalCSV(rows)
	require.NoError(t, err)

	require.True(t, strings.HasSuffix(out, "\n"), "must end with a newline")
	require.False(t, strings.HasSuffix(out, "\n\n"), "must end with a single newline")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], `"Doe, Jane"`)
	require.NotContains(t, lines[2], `"`)

	// A nil total and nil dates serialize to empty fields.
	require.Contains(t, lines[2], ",,")

	parsed, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	for _, record := range parsed {
		require.Len(t, record, len(exportHeader))
	}
	require.Equal(t, "Doe, Jane", parsed[1][1])
	require.Equal(t, "", parsed[2][6])
}

func TestMarshalCSVEscapesEmbeddedQuotes(t *testing.T) {
	rows := []Invoice{{
		ID:        "inv-1",
		Customer:  &CustomerRef{ID: "c1", Name: strPtr(`Acme "Power" SL`)},
		CreatedAt: day(2024, time.June, 2),
	}}
	out, err := MarshalCSV(rows)
	require.NoError(t, err)
	require.Contains(t, out, `"Acme ""Power"" SL"`)

	parsed, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, `Acme "Power" SL`, parsed[1][1])
}

func TestExportDefaultsAndFieldFallback(t *testing.T) {
	repo := &stubRepo{exportRows: []Invoice{{ID: "inv-1", CreatedAt: day(2024, time.June, 2)}}}
	svc := NewExportService(repo, WithExportNow(fixedNow(2024, time.June, 15)))

	result, err := svc.Export(context.Background(), ExportParams{Field: "bogus"})
	require.NoError(t, err)
	require.Equal(t, ExportByCreatedAt, repo.gotExportField)
	require.Equal(t, day(2024, time.June, 1), repo.gotExportRange.From)
	require.Equal(t, day(2024, time.June, 15), repo.gotExportRange.To)
	require.Len(t, result.Rows, 1)
	require.True(t, strings.HasPrefix(result.CSV, strings.Join(exportHeader, ",")))
}

func TestExportBillingPeriodField(t *testing.T) {
	repo := &stubRepo{}
	svc := NewExportService(repo, WithExportNow(fixedNow(2024, time.June, 15)))

	_, err := svc.Export(context.Background(), ExportParams{
		From:  "2024-01-01",
		To:    "2024-03-31",
		Field: ExportByBillingPeriod,
	})
	require.NoError(t, err)
	require.Equal(t, ExportByBillingPeriod, repo.gotExportField)
	require.Equal(t, day(2024, time.January, 1), repo.gotExportRange.From)
	require.Equal(t, day(2024, time.March, 31), repo.gotExportRange.To)
}
