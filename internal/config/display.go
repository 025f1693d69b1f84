package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Display config file names inside the config dir.
const (
	AxesFileName    = "axes.json"
	ModesFileName   = "modes.json"
	MarkersFileName = "markers.json"
	LinesFileName   = "lines.json"
	TooltipFileName = "tooltip.json"
)

// Axis names.
const (
	AxisPrimary   = "y"
	AxisSecondary = "y2"
)

// DefaultMode is used for fields without a configured mode.
const DefaultMode = "lines"

// FallbackMode replaces configured modes that are not allowed.
const FallbackMode = "lines+markers"

var allowedModes = map[string]bool{
	"lines": true, "markers": true, "lines+markers": true, "none": true, "text": true,
	"lines+text": true, "markers+text": true, "lines+markers+text": true,
}

// DefaultTooltipFields is used when tooltip.json lists no fields.
var DefaultTooltipFields = []string{"timestamp", "price"}

// Display holds per-field rendering hints. The engine never reads it; the
// dashboard and the HTTP API pass it through to renderers.
type Display struct {
	Axes          map[string]string         `json:"axes"`
	Modes         map[string]string         `json:"modes"`
	Markers       map[string]map[string]any `json:"markers"`
	Lines         map[string]map[string]any `json:"lines"`
	TooltipFields []string                  `json:"tooltip_fields"`
}

// EmptyDisplay returns a Display with empty maps.
func EmptyDisplay() Display {
	return Display{
		Axes:          map[string]string{},
		Modes:         map[string]string{},
		Markers:       map[string]map[string]any{},
		Lines:         map[string]map[string]any{},
		TooltipFields: []string{},
	}
}

// LoadDisplay reads the display files in dir. Missing or invalid files leave
// their section empty; the returned warnings say which files were skipped.
// Missing files are not warned about.
func LoadDisplay(dir string) (Display, []error) {
	d := EmptyDisplay()
	var warnings []error

	var axes map[string]any
	if err := readJSON(joinDir(dir, AxesFileName), &axes); err != nil {
		warnings = append(warnings, err)
	}
	for k, v := range axes {
		d.Axes[k] = fmt.Sprint(v)
	}

	var modes map[string]any
	if err := readJSON(joinDir(dir, ModesFileName), &modes); err != nil {
		warnings = append(warnings, err)
	}
	for k, v := range modes {
		m := fmt.Sprint(v)
		if !allowedModes[m] {
			m = FallbackMode
		}
		d.Modes[k] = m
	}

	for _, styled := range []struct {
		file string
		dst  map[string]map[string]any
	}{
		{MarkersFileName, d.Markers},
		{LinesFileName, d.Lines},
	} {
		var raw map[string]any
		if err := readJSON(joinDir(dir, styled.file), &raw); err != nil {
			warnings = append(warnings, err)
		}
		for k, v := range raw {
			// Non-object styles are dropped.
			if m, ok := v.(map[string]any); ok {
				styled.dst[k] = m
			}
		}
	}

	var tooltip struct {
		Fields []any `json:"fields"`
	}
	if err := readJSON(joinDir(dir, TooltipFileName), &tooltip); err != nil {
		warnings = append(warnings, err)
	}
	for _, f := range tooltip.Fields {
		d.TooltipFields = append(d.TooltipFields, fmt.Sprint(f))
	}

	return d, warnings
}

// Axis returns the axis a field is drawn on.
func (d Display) Axis(field string) string {
	if d.Axes[field] == AxisSecondary {
		return AxisSecondary
	}
	return AxisPrimary
}

// Mode returns the drawing mode of a field.
func (d Display) Mode(field string) string {
	if m, ok := d.Modes[field]; ok {
		return m
	}
	return DefaultMode
}

// Tooltip returns the configured tooltip fields or the default pair.
func (d Display) Tooltip() []string {
	if len(d.TooltipFields) > 0 {
		return d.TooltipFields
	}
	return DefaultTooltipFields
}

// Color returns the configured color of a field, preferring the line style.
func (d Display) Color(field string) (string, bool) {
	for _, style := range []map[string]any{d.Lines[field], d.Markers[field]} {
		if c, ok := style["color"].(string); ok && c != "" {
			return c, true
		}
	}
	return "", false
}

// readJSON decodes a file into v. A missing file is silently skipped.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
