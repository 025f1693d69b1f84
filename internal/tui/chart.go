package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-flexgraph/internal/config"
	"github.com/randomizedcoder/go-flexgraph/internal/series"
	"github.com/randomizedcoder/go-flexgraph/internal/stats"
)

// Glyphs drawn on the chart canvas.
const (
	lineGlyph   = '·'
	markerGlyph = '●'
	textGlyph   = '▪'
	emptyGlyph  = ' '
)

// markerSymbols maps marker "symbol" styles onto glyphs.
var markerSymbols = map[string]rune{
	"circle":        '●',
	"circle-open":   '○',
	"square":        '■',
	"square-open":   '□',
	"diamond":       '◆',
	"diamond-open":  '◇',
	"triangle-up":   '▲',
	"triangle-down": '▼',
	"x":             '✕',
	"cross":         '+',
	"star":          '★',
}

// trace is one field prepared for drawing. xs are positions in [0,1].
type trace struct {
	field  string
	axis   string
	mode   string
	color  lipgloss.Color
	marker rune
	xs     []float64
	ys     []float64
}

func (t trace) drawsLines() bool   { return strings.Contains(t.mode, "lines") }
func (t trace) drawsMarkers() bool { return strings.Contains(t.mode, "markers") }
func (t trace) drawsText() bool    { return strings.Contains(t.mode, "text") }

// buildTraces turns the selected numeric fields into traces. Points are
// placed by timestamp when every point has one, otherwise by position.
func buildTraces(points []series.DataPoint, fields []string, disp config.Display) []trace {
	xs := xPositions(points)

	traces := make([]trace, 0, len(fields))
	for i, f := range fields {
		color, _ := disp.Color(f)
		t := trace{
			field:  f,
			axis:   disp.Axis(f),
			mode:   disp.Mode(f),
			color:  traceColor(color, i),
			marker: markerFor(disp, f),
		}
		for j, p := range points {
			if v, ok := p.Number(f); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				t.xs = append(t.xs, xs[j])
				t.ys = append(t.ys, v)
			}
		}
		traces = append(traces, t)
	}
	return traces
}

func xPositions(points []series.DataPoint) []float64 {
	xs := make([]float64, len(points))
	if len(points) == 0 {
		return xs
	}

	timed := true
	for _, p := range points {
		if !p.HasTimestamp {
			timed = false
			break
		}
	}

	if timed {
		t0, t1 := points[0].Timestamp, points[len(points)-1].Timestamp
		if span := t1.Sub(t0); span > 0 {
			for i, p := range points {
				xs[i] = float64(p.Timestamp.Sub(t0)) / float64(span)
			}
			return xs
		}
	}

	if len(points) == 1 {
		return xs
	}
	for i := range points {
		xs[i] = float64(i) / float64(len(points)-1)
	}
	return xs
}

func markerFor(disp config.Display, field string) rune {
	if sym, ok := disp.Markers[field]["symbol"].(string); ok {
		if r, ok := markerSymbols[sym]; ok {
			return r
		}
	}
	return markerGlyph
}

// axisRange returns the value range over the traces, widened when flat.
func axisRange(traces []trace) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, t := range traces {
		for _, y := range t.ys {
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0, false
	}
	if lo == hi {
		pad := math.Abs(lo) * 0.01
		if pad == 0 {
			pad = 1
		}
		lo, hi = lo-pad, hi+pad
	}
	return lo, hi, true
}

type cell struct {
	glyph rune
	color lipgloss.Color
}

// canvas is a width x height grid, row 0 at the top.
type canvas struct {
	width, height int
	lo, hi        float64
	cells         [][]cell
}

func newCanvas(width, height int, lo, hi float64) *canvas {
	c := &canvas{width: width, height: height, lo: lo, hi: hi, cells: make([][]cell, height)}
	for r := range c.cells {
		c.cells[r] = make([]cell, width)
		for col := range c.cells[r] {
			c.cells[r][col].glyph = emptyGlyph
		}
	}
	return c
}

func (c *canvas) col(x float64) int {
	return clamp(int(math.Round(x*float64(c.width-1))), 0, c.width-1)
}

func (c *canvas) row(y float64) int {
	frac := (y - c.lo) / (c.hi - c.lo)
	return clamp(c.height-1-int(math.Round(frac*float64(c.height-1))), 0, c.height-1)
}

func (c *canvas) set(col, row int, g rune, color lipgloss.Color) {
	c.cells[row][col] = cell{glyph: g, color: color}
}

// plot draws a trace. Line segments are drawn first so markers stay on top.
func (c *canvas) plot(t trace) {
	if t.drawsLines() {
		for i := 1; i < len(t.xs); i++ {
			c.segment(t.xs[i-1], t.ys[i-1], t.xs[i], t.ys[i], t.color)
		}
		if len(t.xs) == 1 {
			c.set(c.col(t.xs[0]), c.row(t.ys[0]), lineGlyph, t.color)
		}
	}

	var g rune
	switch {
	case t.drawsMarkers():
		g = t.marker
	case t.drawsText():
		g = textGlyph
	default:
		return
	}
	for i := range t.xs {
		c.set(c.col(t.xs[i]), c.row(t.ys[i]), g, t.color)
	}
}

func (c *canvas) segment(x0, y0, x1, y1 float64, color lipgloss.Color) {
	c0, c1 := c.col(x0), c.col(x1)
	r0, r1 := c.row(y0), c.row(y1)

	steps := max(abs(c1-c0), abs(r1-r0))
	if steps == 0 {
		c.set(c0, r0, lineGlyph, color)
		return
	}
	for s := 0; s <= steps; s++ {
		f := float64(s) / float64(steps)
		col := c0 + int(math.Round(f*float64(c1-c0)))
		row := r0 + int(math.Round(f*float64(r1-r0)))
		c.set(col, row, lineGlyph, color)
	}
}

// render returns the canvas with value labels on the left.
func (c *canvas) render() string {
	top, bottom := stats.FormatValue(c.hi), stats.FormatValue(c.lo)
	labelWidth := max(len(top), len(bottom))

	var b strings.Builder
	for r, row := range c.cells {
		label := ""
		switch r {
		case 0:
			label = top
		case c.height - 1:
			label = bottom
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("%*s ┤", labelWidth, label)))
		for _, cl := range row {
			if cl.glyph == emptyGlyph {
				b.WriteRune(emptyGlyph)
				continue
			}
			b.WriteString(lipgloss.NewStyle().Foreground(cl.color).Render(string(cl.glyph)))
		}
		if r < c.height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderAxis draws the traces on one axis. ok is false when no trace on the
// axis has a value.
func renderAxis(traces []trace, axis string, width, height int) (string, bool) {
	var onAxis []trace
	for _, t := range traces {
		if t.axis == axis {
			onAxis = append(onAxis, t)
		}
	}
	lo, hi, ok := axisRange(onAxis)
	if !ok || width < 1 || height < 2 {
		return "", false
	}

	c := newCanvas(width, height, lo, hi)
	for _, t := range onAxis {
		c.plot(t)
	}
	return c.render(), true
}

// renderLegend lists each trace with its glyph and color.
func renderLegend(traces []trace) string {
	parts := make([]string, 0, len(traces))
	for _, t := range traces {
		g := lineGlyph
		switch {
		case t.drawsMarkers():
			g = t.marker
		case t.drawsText():
			g = textGlyph
		}
		sample := lipgloss.NewStyle().Foreground(t.color).Render(strings.Repeat(string(g), 2))
		label := t.field
		if t.axis == config.AxisSecondary {
			label += " (y2)"
		}
		parts = append(parts, sample+" "+mutedStyle.Render(label))
	}
	return strings.Join(parts, "   ")
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
