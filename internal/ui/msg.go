package ui

import (
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/events"
)

// EngineEventMsg carries one engine event into the program.
type EngineEventMsg struct {
	Event events.Event
}

// refreshMsg is the periodic redraw tick.
type refreshMsg time.Time

// actionResultMsg reports the outcome of a key triggered engine call.
type actionResultMsg struct {
	Text string
	Err  error
}

// Tab is one of the observer's views.
type Tab int

const (
	TabCampaigns Tab = iota
	TabAlerts
	TabJournal
	TabLogs
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TabCampaigns:
		return "Campaigns"
	case TabAlerts:
		return "Alerts"
	case TabJournal:
		return "Journal"
	case TabLogs:
		return "Logs"
	default:
		return "unknown"
	}
}
