// Package tui provides the live terminal dashboard.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays, per series:
// - Charts of the selected fields, split by axis
// - The newest point's tooltip fields
// - Field summaries over the visible window
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// tracePalette colors fields that have no configured color.
var tracePalette = []lipgloss.Color{
	"#3B82F6", // Blue
	"#F59E0B", // Amber
	"#10B981", // Green
	"#EF4444", // Red
	"#A855F7", // Violet
	"#06B6D4", // Cyan
	"#EC4899", // Pink
	"#84CC16", // Lime
}

// namedColors maps the CSS color names common in line/marker styles.
var namedColors = map[string]lipgloss.Color{
	"black":   "#000000",
	"white":   "#FFFFFF",
	"gray":    "#808080",
	"grey":    "#808080",
	"red":     "#FF0000",
	"green":   "#008000",
	"blue":    "#0000FF",
	"yellow":  "#FFFF00",
	"orange":  "#FFA500",
	"purple":  "#800080",
	"magenta": "#FF00FF",
	"cyan":    "#00FFFF",
	"pink":    "#FFC0CB",
	"brown":   "#A52A2A",
	"navy":    "#000080",
	"teal":    "#008080",
	"lime":    "#00FF00",
	"gold":    "#FFD700",
}

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	boldStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	tabStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorBorder).
			Bold(true).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(14)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)
)

// =============================================================================
// Reject Status Indicator
// =============================================================================

// RejectStatus summarizes how many records have been rejected.
type RejectStatus int

const (
	RejectStatusNone RejectStatus = iota
	RejectStatusSome
	RejectStatusMany
)

// GetRejectStatus returns the status for a reject count relative to the
// number of records seen.
func GetRejectStatus(rejected, seen int64) RejectStatus {
	switch {
	case rejected == 0:
		return RejectStatusNone
	case seen > 0 && float64(rejected)/float64(seen) > 0.10: // >10% rejected
		return RejectStatusMany
	default:
		return RejectStatusSome
	}
}

// GetRejectStyle returns the style for a reject status.
func GetRejectStyle(status RejectStatus) lipgloss.Style {
	switch status {
	case RejectStatusMany:
		return statusError
	case RejectStatusSome:
		return statusWarning
	default:
		return statusOK
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// traceColor resolves a configured color: hex and ANSI codes pass through,
// CSS names are mapped, anything else falls back to the palette.
func traceColor(configured string, idx int) lipgloss.Color {
	c := strings.ToLower(strings.TrimSpace(configured))
	switch {
	case strings.HasPrefix(c, "#") && (len(c) == 4 || len(c) == 7):
		return lipgloss.Color(c)
	case c != "" && strings.Trim(c, "0123456789") == "":
		return lipgloss.Color(c)
	}
	if named, ok := namedColors[c]; ok {
		return named
	}
	return tracePalette[idx%len(tracePalette)]
}
