package dates

import (
	"fmt"
	"time"
)

// Placeholder is rendered when a date is missing.
const Placeholder = "—"

var monthShort = [12]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sep", "oct", "nov", "dic"}

var monthLabels = [12]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

var monthLong = [12]string{"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio", "Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre"}

// MonthLabel returns the abbreviated Spanish label for a month, suitable
// as a stable chart axis label.
func MonthLabel(m time.Month) string {
	return monthLabels[int(m)-1]
}

// MonthLabels returns the twelve abbreviated labels in calendar order.
func MonthLabels() []string {
	labels := make([]string, len(monthLabels))
	copy(labels, monthLabels[:])
	return labels
}

// MonthName returns the capitalised Spanish month name.
func MonthName(m time.Month) string {
	return monthLong[int(m)-1]
}

// FormatDate renders a date as d/m/yyyy (es-ES, UTC fields). A zero date
// renders as the placeholder.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	u := t.UTC()
	return fmt.Sprintf("%d/%d/%d", u.Day(), int(u.Month()), u.Year())
}

// FormatDateRange renders "from — to" using FormatDate for each endpoint.
func FormatDateRange(start, end time.Time) string {
	return FormatDate(start) + " — " + FormatDate(end)
}

// FormatRangeSummary renders a human-readable Spanish summary such as
// "Del 1 ene 2024 al 31 ene 2024". Either endpoint missing collapses to
// the placeholder.
func FormatRangeSummary(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return Placeholder
	}
	return fmt.Sprintf("Del %s al %s", summaryDate(start), summaryDate(end))
}

func summaryDate(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%d %s %d", u.Day(), monthShort[int(u.Month())-1], u.Year())
}
