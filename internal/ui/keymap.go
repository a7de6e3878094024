package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines keyboard shortcuts for the observer
type KeyMap struct {
	Quit key.Binding
	Help key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	Tab      key.Binding
	ShiftTab key.Binding

	// Campaign management
	Stop   key.Binding
	Reset  key.Binding
	Delete key.Binding

	// Logs
	LogLevel key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next view"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev view"),
		),

		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop campaign"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset baseline"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete campaign"),
		),

		LogLevel: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "log level"),
		),
	}
}

// ShortHelp returns key help text for the current context
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Help, k.Quit}
}

// FullHelp returns extended help text
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Tab, k.ShiftTab},
		{k.Stop, k.Reset, k.Delete},
		{k.LogLevel, k.Help, k.Quit},
	}
}

// ContextualHelp returns the bindings that apply to a tab.
func (k KeyMap) ContextualHelp(tab Tab) []key.Binding {
	switch tab {
	case TabCampaigns:
		return []key.Binding{k.Up, k.Down, k.Stop, k.Reset, k.Delete, k.Tab, k.Quit}
	case TabAlerts, TabJournal:
		return []key.Binding{k.Up, k.Down, k.Tab, k.Quit}
	case TabLogs:
		return []key.Binding{k.Up, k.Down, k.LogLevel, k.Tab, k.Quit}
	default:
		return k.ShortHelp()
	}
}
