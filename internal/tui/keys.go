package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap lists the dashboard bindings. It implements help.KeyMap.
type keyMap struct {
	Pause      key.Binding
	WindowUp   key.Binding
	WindowDown key.Binding
	WindowAll  key.Binding
	Field      key.Binding
	NextSeries key.Binding
	PrevSeries key.Binding
	Clear      key.Binding
	ClearAll   key.Binding
	Help       key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Pause: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("space", "pause/resume"),
	),
	WindowUp: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "wider window"),
	),
	WindowDown: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "narrower window"),
	),
	WindowAll: key.NewBinding(
		key.WithKeys("0"),
		key.WithHelp("0", "all points"),
	),
	Field: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "toggle field"),
	),
	NextSeries: key.NewBinding(
		key.WithKeys("tab", "right", "l"),
		key.WithHelp("tab", "next series"),
	),
	PrevSeries: key.NewBinding(
		key.WithKeys("shift+tab", "left", "h"),
		key.WithHelp("shift+tab", "prev series"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear series"),
	),
	ClearAll: key.NewBinding(
		key.WithKeys("C"),
		key.WithHelp("C", "clear all"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.WindowUp, k.WindowDown, k.NextSeries, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.WindowUp, k.WindowDown, k.WindowAll},
		{k.Field, k.NextSeries, k.PrevSeries},
		{k.Clear, k.ClearAll, k.Help, k.Quit},
	}
}
