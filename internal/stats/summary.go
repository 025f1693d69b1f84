package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds the figures printed at exit.
type SummaryConfig struct {
	// Duration is the total run duration
	Duration time.Duration

	Pattern string
	Store   string

	// Series counts: cached at exit and the peak during the run
	Series     int
	PeakSeries int

	Polls            int64
	PollErrors       int64
	Ingested         int64
	Trimmed          int64
	Expired          int64
	Reconfigurations int64

	// Rejected holds reject counts by reason
	Rejected map[string]int64

	// PollP50, PollP95, PollP99 are poll duration percentiles
	PollP50 time.Duration
	PollP95 time.Duration
	PollP99 time.Duration

	// ListenAddr is the API and metrics endpoint address
	ListenAddr string
}

// FormatExitSummary formats the run summary printed at program exit.
func FormatExitSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                          go-flexgraph Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Key Pattern:            %s\n", cfg.Pattern)
	fmt.Fprintf(&b, "Store:                  %s\n", cfg.Store)
	fmt.Fprintf(&b, "Series (exit / peak):   %d / %d\n\n", cfg.Series, cfg.PeakSeries)

	section(&b, "Ingestion")
	fmt.Fprintf(&b, "  Polls:                %s\n", FormatNumber(cfg.Polls))
	if cfg.PollErrors > 0 {
		fmt.Fprintf(&b, "  Poll Errors:          %s\n", FormatNumber(cfg.PollErrors))
	}
	fmt.Fprintf(&b, "  Points Ingested:      %s", FormatNumber(cfg.Ingested))
	if secs := cfg.Duration.Seconds(); secs > 0 {
		fmt.Fprintf(&b, "  (%s)", FormatRate(float64(cfg.Ingested)/secs))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Points Trimmed:       %s\n", FormatNumber(cfg.Trimmed))
	if cfg.Expired > 0 {
		fmt.Fprintf(&b, "  Expired Before Read:  %s\n", FormatNumber(cfg.Expired))
	}
	if cfg.Reconfigurations > 0 {
		fmt.Fprintf(&b, "  Reconfigurations:     %d\n", cfg.Reconfigurations)
	}
	b.WriteString("\n")

	if cfg.PollP50 > 0 || cfg.PollP95 > 0 {
		section(&b, "Poll Latency")
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(cfg.PollP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(cfg.PollP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(cfg.PollP99))
		b.WriteString("\n")
	}

	if len(cfg.Rejected) > 0 {
		section(&b, "Rejected Records")

		// Sort reasons for consistent output
		reasons := make([]string, 0, len(cfg.Rejected))
		for r := range cfg.Rejected {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)

		for _, r := range reasons {
			fmt.Fprintf(&b, "  %-21s %s\n", r+":", FormatNumber(cfg.Rejected[r]))
		}
		b.WriteString("\n")
	}

	if cfg.ListenAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.ListenAddr)
	}

	b.WriteString(ruleHeavy)

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	pad := (len([]rune(ruleLight)) - 1 - len(title)) / 2
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n")
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}

// FormatValue formats a field value compactly for tables and panels.
func FormatValue(v float64) string {
	switch {
	case v == float64(int64(v)) && v < 1e15 && v > -1e15:
		return fmt.Sprintf("%d", int64(v))
	case v >= 1000 || v <= -1000:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%.5g", v)
	}
}
