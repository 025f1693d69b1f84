package tui

import (
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-flexgraph/internal/config"
	"github.com/randomizedcoder/go-flexgraph/internal/engine"
	"github.com/randomizedcoder/go-flexgraph/internal/logging"
	"github.com/randomizedcoder/go-flexgraph/internal/series"
	"github.com/randomizedcoder/go-flexgraph/internal/stats"
	"github.com/randomizedcoder/go-flexgraph/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Sources
// =============================================================================

// Engine is the cache surface the dashboard reads and manages.
type Engine interface {
	series.ReferenceSource
	Pattern() string
	SeriesIDs() []string
	HasChangedSince(prior []string) bool
	Read(seriesID string, q series.Query) []series.DataPoint
	ClearSeries(seriesID string) bool
	ClearAll()
	Stats() engine.Stats
}

// RejectSource exposes recently rejected records.
type RejectSource interface {
	Total() int
	Recent(n int) []logging.Reject
}

// Config holds TUI configuration.
type Config struct {
	Engine Engine

	// Display returns the current display configuration. Optional.
	Display func() config.Display

	// Rates returns ingest rates. Optional.
	Rates func() timeseries.RateStats

	Rejects    RejectSource // optional
	ListenAddr string

	// WindowMinutes is the initial window of each series view.
	WindowMinutes float64

	// RefreshInterval is the redraw period (default: 500ms).
	RefreshInterval time.Duration
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	engine     Engine
	display    func() config.Display
	rates      func() timeseries.RateStats
	rejects    RejectSource
	listenAddr string
	window     float64
	refresh    time.Duration

	// Tabs are rebuilt only when the engine's series set changes.
	tabs   []string
	active int

	// Per-series view state and field selection.
	views    map[string]*series.View
	selected map[string][]string

	// Snapshot of the active series, refreshed on every tick.
	points    []series.DataPoint
	available []string
	rateStats timeseries.RateStats
	stats     engine.Stats

	status    string
	startTime time.Time

	width  int
	height int

	keys keyMap
	help help.Model

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	m := Model{
		engine:     cfg.Engine,
		display:    cfg.Display,
		rates:      cfg.Rates,
		rejects:    cfg.Rejects,
		listenAddr: cfg.ListenAddr,
		window:     cfg.WindowMinutes,
		refresh:    cfg.RefreshInterval,
		views:      make(map[string]*series.View),
		selected:   make(map[string][]string),
		startTime:  time.Now(),
		width:      100,
		height:     30,
		keys:       keys,
		help:       help.New(),
	}
	if m.display == nil {
		m.display = config.EmptyDisplay
	}
	if m.refresh <= 0 {
		m.refresh = 500 * time.Millisecond
	}
	m.sync()
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		m.sync()
		return m, m.tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.NextSeries):
		if len(m.tabs) > 0 {
			m.active = (m.active + 1) % len(m.tabs)
		}

	case key.Matches(msg, m.keys.PrevSeries):
		if len(m.tabs) > 0 {
			m.active = (m.active - 1 + len(m.tabs)) % len(m.tabs)
		}

	case key.Matches(msg, m.keys.Pause):
		if v := m.activeView(); v != nil {
			state := v.Toggle(m.engine)
			m.status = fmt.Sprintf("%s %s", v.SeriesID, state)
		}

	case key.Matches(msg, m.keys.WindowUp):
		if v := m.activeView(); v != nil {
			v.SetWindow(nextWindow(v.WindowMinutes))
			m.status = "window " + formatWindow(v.WindowMinutes)
		}

	case key.Matches(msg, m.keys.WindowDown):
		if v := m.activeView(); v != nil {
			v.SetWindow(prevWindow(v.WindowMinutes))
			m.status = "window " + formatWindow(v.WindowMinutes)
		}

	case key.Matches(msg, m.keys.WindowAll):
		if v := m.activeView(); v != nil {
			v.SetWindow(0)
			m.status = "window " + formatWindow(0)
		}

	case key.Matches(msg, m.keys.Field):
		m.toggleField(int(msg.Runes[0] - '1'))

	case key.Matches(msg, m.keys.Clear):
		if id := m.ActiveSeries(); id != "" {
			m.engine.ClearSeries(id)
			m.status = "cleared " + id
		}

	case key.Matches(msg, m.keys.ClearAll):
		if m.engine != nil {
			m.engine.ClearAll()
			m.status = "cleared all series"
		}

	default:
		return m, nil
	}

	m.sync()
	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// State
// =============================================================================

// sync rebuilds tabs when the series set changed and re-reads the active
// series through its view.
func (m *Model) sync() {
	if m.engine == nil {
		return
	}

	if m.engine.HasChangedSince(m.tabs) {
		current := m.ActiveSeries()
		m.tabs = m.engine.SeriesIDs()

		for id := range m.views {
			if !slices.Contains(m.tabs, id) {
				delete(m.views, id)
				delete(m.selected, id)
			}
		}
		for _, id := range m.tabs {
			if _, ok := m.views[id]; !ok {
				v := series.NewView(id)
				v.SetWindow(m.window)
				m.views[id] = v
			}
		}

		m.active = 0
		if i := slices.Index(m.tabs, current); i >= 0 {
			m.active = i
		}
	}

	m.stats = m.engine.Stats()
	if m.rates != nil {
		m.rateStats = m.rates()
	}

	v := m.activeView()
	if v == nil {
		m.points, m.available = nil, nil
		return
	}
	m.points = m.engine.Read(v.SeriesID, v.Query(m.selected[v.SeriesID]))
	m.available = stats.NumericFields(m.points)
	if len(m.available) > 0 {
		m.selected[v.SeriesID] = stats.SelectFields(m.selected[v.SeriesID], m.available)
	}
}

// toggleField flips the n-th available field of the active series.
func (m *Model) toggleField(n int) {
	id := m.ActiveSeries()
	if id == "" || n < 0 || n >= len(m.available) {
		return
	}
	field := m.available[n]
	sel := m.selected[id]
	if i := slices.Index(sel, field); i >= 0 {
		sel = slices.Delete(slices.Clone(sel), i, i+1)
		m.status = "hide " + field
	} else {
		sel = append(slices.Clone(sel), field)
		m.status = "show " + field
	}
	m.selected[id] = sel
}

func (m Model) activeView() *series.View {
	id := m.ActiveSeries()
	if id == "" {
		return nil
	}
	return m.views[id]
}

// =============================================================================
// Commands
// =============================================================================

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Tabs returns the series shown as tabs.
func (m Model) Tabs() []string {
	return slices.Clone(m.tabs)
}

// ActiveSeries returns the series on the active tab, or "".
func (m Model) ActiveSeries() string {
	if m.active < 0 || m.active >= len(m.tabs) {
		return ""
	}
	return m.tabs[m.active]
}

// Selected returns the fields charted for the active series.
func (m Model) Selected() []string {
	return slices.Clone(m.selected[m.ActiveSeries()])
}

// Points returns the visible points of the active series.
func (m Model) Points() []series.DataPoint {
	return m.points
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Window steps
// =============================================================================

// windowSteps are the window sizes in minutes; 0 shows every point.
var windowSteps = []float64{0, 0.5, 1, 2, 5, 10, 15, 30, 60}

func nextWindow(cur float64) float64 {
	for _, s := range windowSteps {
		if s > cur {
			return s
		}
	}
	return windowSteps[len(windowSteps)-1]
}

func prevWindow(cur float64) float64 {
	for i := len(windowSteps) - 1; i >= 0; i-- {
		if windowSteps[i] < cur {
			return windowSteps[i]
		}
	}
	return 0
}

func formatWindow(minutes float64) string {
	switch {
	case minutes <= 0:
		return "all"
	case minutes < 1:
		return fmt.Sprintf("%.0fs", minutes*60)
	case minutes >= 60 && int(minutes)%60 == 0:
		return fmt.Sprintf("%dh", int(minutes)/60)
	default:
		return fmt.Sprintf("%gm", minutes)
	}
}
