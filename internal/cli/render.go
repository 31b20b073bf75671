package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"flusso/internal/forecast"
)

var (
	ColorBorder = lipgloss.Color("#282726")
	ColorText   = lipgloss.Color("#FFFCF0")
	ColorMuted  = lipgloss.Color("#6F6E69")
	ColorAccent = lipgloss.Color("#3AA99F")
	ColorGreen  = lipgloss.Color("#879A39")
	ColorRed    = lipgloss.Color("#D14D41")
	ColorOrange = lipgloss.Color("#DA702C")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorText)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	valueStyle    = lipgloss.NewStyle().Foreground(ColorText)
	mutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	positiveStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	negativeStyle = lipgloss.NewStyle().Foreground(ColorRed)
	warnStyle     = lipgloss.NewStyle().Foreground(ColorOrange)
	borderStyle   = lipgloss.NewStyle().Foreground(ColorBorder)
)

// Table is a bordered text table. The first column is left-aligned, the
// others right-aligned.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a title in a rounded box.
func RenderTitle(title string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)
	return box.Render(titleStyle.Render(title))
}

// RenderTable renders t. Cells may already carry styling; widths are
// measured on the visible text.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}
	if numCols == 0 {
		return ""
	}

	widths := make([]int, numCols)
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	rule := func(left, mid, right string) string {
		parts := make([]string, numCols)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return borderStyle.Render(left+strings.Join(parts, mid)+right) + "\n"
	}
	line := func(cells []string, style lipgloss.Style) string {
		var b strings.Builder
		b.WriteString(borderStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if i == 0 {
				cell = cell + pad
			} else {
				cell = pad + cell
			}
			b.WriteString(style.Render(" " + cell + " "))
			b.WriteString(borderStyle.Render("│"))
		}
		b.WriteString("\n")
		return b.String()
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  " + headerStyle.Render(t.Title) + "\n")
	}
	b.WriteString(rule("╭", "┬", "╮"))
	if len(t.Headers) > 0 {
		b.WriteString(line(t.Headers, headerStyle))
		b.WriteString(rule("├", "┼", "┤"))
	}
	for _, row := range t.Rows {
		b.WriteString(line(row, valueStyle))
	}
	b.WriteString(rule("╰", "┴", "╯"))
	return b.String()
}

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderSparkline draws values as unicode blocks scaled between their
// minimum and maximum. A flat series is drawn at mid height.
func RenderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		idx := len(sparkBlocks)/2 - 1
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		idx = max(0, min(idx, len(sparkBlocks)-1))
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

// SamplePoints returns the indices of every nth point, always including the
// first and the last.
func SamplePoints(n, every int) []int {
	if n <= 0 {
		return nil
	}
	if every < 1 {
		every = 1
	}
	var idx []int
	for i := 0; i < n; i += every {
		idx = append(idx, i)
	}
	if idx[len(idx)-1] != n-1 {
		idx = append(idx, n-1)
	}
	return idx
}

func styledMoney(d decimal.Decimal) string {
	s := FormatMoney(d)
	if d.IsNegative() {
		return negativeStyle.Render(s)
	}
	return s
}

func styledChange(d decimal.Decimal) string {
	s := FormatSignedMoney(d)
	switch {
	case d.IsNegative():
		return negativeStyle.Render(s)
	case d.IsPositive():
		return positiveStyle.Render(s)
	default:
		return mutedStyle.Render(s)
	}
}

// RenderForecast renders a forecast as a summary table, a balance table
// sampled every `every` days, a sparkline and the list of skipped entries.
func RenderForecast(f forecast.Forecast, every int) string {
	s := forecast.Summarize(f)

	var b strings.Builder
	b.WriteString(RenderTitle(fmt.Sprintf("Cash-flow forecast  %s → %s  (%s)", s.Today, s.End, FormatDays(f.HorizonDays))))
	b.WriteString("\n\n")

	firstNegative := positiveStyle.Render("never")
	if s.FirstNegativeOn != nil {
		firstNegative = negativeStyle.Render(s.FirstNegativeOn.String())
	}
	b.WriteString(RenderTable(Table{
		Title:   "Summary",
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Starting balance", styledMoney(s.StartingBalance)},
			{"Ending balance", styledMoney(s.EndingBalance)},
			{"Net change", styledChange(s.NetChange)},
			{"Lowest balance", styledMoney(s.LowestBalance) + mutedStyle.Render(" on "+s.LowestOn.String())},
			{"First negative day", firstNegative},
			{"Scheduled income", FormatMoney(s.ScheduledIncome)},
			{"Scheduled expense", FormatMoney(s.ScheduledExpense)},
			{"Occurrences", fmt.Sprintf("%d", s.Occurrences)},
			{"Drift per day", styledChange(s.DriftPerDay)},
		},
	}))
	b.WriteString("\n")

	rows := make([][]string, 0, len(f.Points))
	for _, i := range SamplePoints(len(f.Points), every) {
		p := f.Points[i]
		change := decimal.Zero
		if i > 0 {
			change = p.Balance.Sub(f.Points[0].Balance)
		}
		rows = append(rows, []string{p.Date.String(), styledMoney(p.Balance), styledChange(change)})
	}
	b.WriteString(RenderTable(Table{
		Title:   "Balance",
		Headers: []string{"Date", "Balance", "vs today"},
		Rows:    rows,
	}))

	if len(f.Points) > 1 {
		b.WriteString("\n  " + RenderSparkline(forecast.Balances(f.Points)) + "\n")
	}

	if len(f.Skipped) > 0 {
		b.WriteString("\n  " + warnStyle.Render(fmt.Sprintf("%d ledger entries skipped:", len(f.Skipped))) + "\n")
		for _, sk := range f.Skipped {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("    %s #%d: %s", sk.Entry, sk.Index, sk.Reason)) + "\n")
		}
	}
	return b.String()
}
