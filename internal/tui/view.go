package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-flexgraph/internal/config"
	"github.com/randomizedcoder/go-flexgraph/internal/series"
	"github.com/randomizedcoder/go-flexgraph/internal/stats"
)

// timestampLayout shows timestamps with milliseconds.
const timestampLayout = "2006-01-02 15:04:05.000"

// descriptionWidth is the wrap width of the description tooltip field.
const descriptionWidth = 60

// recentRejects is the number of rejects listed under the charts.
const recentRejects = 3

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderTabs(),
	}

	if m.ActiveSeries() == "" {
		sections = append(sections, boxStyle.Width(m.width-2).Render(
			mutedStyle.Render(fmt.Sprintf("Waiting for keys matching %s ...", m.pattern())),
		))
	} else {
		sections = append(sections, m.renderStatus())
		sections = append(sections, m.renderCharts())

		details := []string{m.renderLatest()}
		if s := m.renderSummaries(); s != "" {
			details = append(details, s)
		}
		sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, details...))
	}

	if r := m.renderRejects(); r != "" {
		sections = append(sections, r)
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	rejected := m.stats.Rejected
	seen := m.stats.Ingested + rejected
	rejectStyle := GetRejectStyle(GetRejectStatus(rejected, seen))

	header := fmt.Sprintf(
		" go-flexgraph │ %s │ Ingest: %s │ Rejects: %s │ Series: %d │ Elapsed: %s ",
		m.pattern(),
		stats.FormatRate(m.rateStats.Avg30s),
		rejectStyle.Render(strconv.FormatInt(rejected, 10)),
		len(m.tabs),
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func (m Model) pattern() string {
	if m.stats.Pattern != "" {
		return m.stats.Pattern
	}
	if m.engine != nil {
		return m.engine.Pattern()
	}
	return ""
}

// =============================================================================
// Tabs and status
// =============================================================================

func (m Model) renderTabs() string {
	if len(m.tabs) == 0 {
		return ""
	}
	parts := make([]string, len(m.tabs))
	for i, id := range m.tabs {
		label := id
		if v := m.views[id]; v != nil && v.Paused() {
			label += " ❚❚"
		}
		if i == m.active {
			parts[i] = activeTabStyle.Render(label)
		} else {
			parts[i] = tabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderStatus() string {
	v := m.activeView()

	state := statusOK.Render("● LIVE")
	if v.Paused() {
		state = statusWarning.Render("❚❚ PAUSED")
		if ref, ok := v.Reference(); ok {
			state += dimStyle.Render(" at " + ref.Format(timestampLayout))
		}
	}

	parts := []string{
		state,
		RenderKeyValue("Window", formatWindow(v.WindowMinutes)),
		RenderKeyValue("Points", strconv.Itoa(len(m.points))),
	}
	if m.status != "" {
		parts = append(parts, dimStyle.Render(m.status))
	}
	line := strings.Join(parts, "  ")

	return lipgloss.JoinVertical(lipgloss.Left, line, m.renderFieldToggles())
}

func (m Model) renderFieldToggles() string {
	if len(m.available) == 0 {
		return mutedStyle.Render("No numeric fields")
	}
	sel := m.selected[m.ActiveSeries()]
	parts := make([]string, 0, len(m.available))
	for i, f := range m.available {
		label := f
		if i < 9 {
			label = fmt.Sprintf("%d:%s", i+1, f)
		}
		if slices.Contains(sel, f) {
			parts = append(parts, boldStyle.Render("["+label+"]"))
		} else {
			parts = append(parts, dimStyle.Render(" "+label+" "))
		}
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Charts
// =============================================================================

func (m Model) renderCharts() string {
	sel := m.selected[m.ActiveSeries()]
	if len(m.points) == 0 || len(sel) == 0 {
		return boxStyle.Width(m.width - 2).Render(mutedStyle.Render("No data in window"))
	}

	disp := m.display()
	traces := buildTraces(m.points, sel, disp)

	width := max(m.width-16, 20)
	height := max((m.height-20)/2, 4)

	var panels []string
	if chart, ok := renderAxis(traces, config.AxisPrimary, width, height); ok {
		panels = append(panels, chart)
	}
	if chart, ok := renderAxis(traces, config.AxisSecondary, width, height); ok {
		panels = append(panels, sectionHeaderStyle.Render("y2"), chart)
	}
	if len(panels) == 0 {
		return boxStyle.Width(m.width - 2).Render(mutedStyle.Render("No data in window"))
	}

	panels = append(panels, m.renderTimeAxis(width), renderLegend(traces))
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, panels...))
}

func (m Model) renderTimeAxis(width int) string {
	first, last := m.points[0], m.points[len(m.points)-1]
	if !first.HasTimestamp || !last.HasTimestamp {
		return ""
	}
	left := first.Timestamp.Format("15:04:05.000")
	right := last.Timestamp.Format("15:04:05.000")
	pad := max(width-len(left)-len(right)+3, 1)
	return dimStyle.Render(left + strings.Repeat(" ", pad) + right)
}

// =============================================================================
// Latest point
// =============================================================================

func (m Model) renderLatest() string {
	rows := []string{sectionHeaderStyle.Render("Latest")}
	if len(m.points) == 0 {
		rows = append(rows, mutedStyle.Render("-"))
		return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}
	rows = append(rows, tooltipLines(m.points[len(m.points)-1], m.display().Tooltip())...)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// tooltipLines formats the tooltip fields of p. Empty fields are skipped.
func tooltipLines(p series.DataPoint, fields []string) []string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		var text string
		if f == series.TimestampField {
			switch {
			case p.HasTimestamp:
				text = p.Timestamp.Format(timestampLayout)
			case p.RawTimestamp != nil:
				text = fmt.Sprint(p.RawTimestamp)
			default:
				if v, ok := p.Get(f); ok && v != nil {
					text = fmt.Sprint(v)
				}
			}
		} else if v, ok := p.Get(f); ok && v != nil {
			text = formatField(v)
		}
		if text == "" {
			continue
		}

		if f == "description" {
			text = lipgloss.NewStyle().Width(descriptionWidth).Render(text)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(f+":"),
			valueStyle.Render(text),
		))
	}
	return lines
}

func formatField(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// Summaries
// =============================================================================

func (m Model) renderSummaries() string {
	sums := stats.SummarizeAll(m.points, m.selected[m.ActiveSeries()])
	if len(sums) == 0 {
		return ""
	}

	header := fmt.Sprintf("%-14s %10s %10s %10s %10s %10s %10s",
		"Field", "Last", "Min", "Max", "Mean", "P50", "P95")
	rows := []string{sectionHeaderStyle.Render("Window Summary"), tableHeaderStyle.Render(header)}
	for _, s := range sums {
		rows = append(rows, fmt.Sprintf("%-14s %10s %10s %10s %10s %10s %10s",
			truncate(s.Field, 14),
			stats.FormatValue(s.Last),
			stats.FormatValue(s.Min),
			stats.FormatValue(s.Max),
			stats.FormatValue(s.Mean),
			stats.FormatValue(s.P50),
			stats.FormatValue(s.P95),
		))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Rejects
// =============================================================================

func (m Model) renderRejects() string {
	if m.rejects == nil || m.rejects.Total() == 0 {
		return ""
	}
	rows := []string{statusWarning.Render(fmt.Sprintf("Rejected records: %d", m.rejects.Total()))}
	for _, r := range m.rejects.Recent(recentRejects) {
		rows = append(rows, dimStyle.Render(fmt.Sprintf("  %s  %-14s %s  %s",
			r.At.Format("15:04:05"), r.Reason, truncate(r.Key, 40), truncate(r.Error, 60))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	left := m.help.View(m.keys)
	if m.listenAddr == "" {
		return footerStyle.Render(left)
	}

	right := dimStyle.Render("API: http://" + m.listenAddr + "/api")
	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return footerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		strings.Repeat(" ", padding),
		right,
	))
}

// =============================================================================
// Helpers
// =============================================================================

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
