// internal/events/types.go
package events

import (
	"context"
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
)

// EventType represents the type of event.
type EventType string

const (
	// All subscribes a handler to every event type.
	All EventType = "*"

	// Campaign events
	CampaignStarted       EventType = "campaign.started"
	CampaignUpdated       EventType = "campaign.updated"
	CampaignStopped       EventType = "campaign.stopped"
	CampaignBaselineReset EventType = "campaign.baseline_reset"
	CampaignDeleted       EventType = "campaign.deleted"

	// Alert events
	AlertCreated EventType = "alert.created"
	AlertUpdated EventType = "alert.updated"
	AlertDeleted EventType = "alert.deleted"
	AlertFired   EventType = "alert.fired"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Publisher is the publishing half of the bus. Publish may drop the event
// when the queue is full; PublishWait waits for room until ctx is done.
type Publisher interface {
	Publish(event Event) error
	PublishWait(ctx context.Context, event Event) error
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// NewBase stamps an event header.
func NewBase(t EventType, at time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: at}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// CampaignEvent carries a full campaign snapshot. It is used for
// started, stopped, baseline_reset and deleted.
type CampaignEvent struct {
	BaseEvent
	Campaign campaign.Campaign `json:"campaign"`
	Reason   string            `json:"reason,omitempty"`
}

// CampaignUpdatedEvent is emitted after ticks change a campaign's stats.
type CampaignUpdatedEvent struct {
	BaseEvent
	CampaignID string         `json:"campaign_id"`
	Stats      campaign.Stats `json:"stats"`
}

// AlertEvent is emitted when an alert is created, edited or deleted.
type AlertEvent struct {
	BaseEvent
	Alert alert.Alert `json:"alert"`
}

// AlertFiredEvent is emitted once per firing, after its record is journaled.
type AlertFiredEvent struct {
	BaseEvent
	AlertID           string             `json:"alert_id"`
	CampaignID        string             `json:"campaign_id"`
	RecordID          string             `json:"record_id"`
	TriggeredPrice    float64            `json:"triggered_price"`
	TriggeredPriceUSD float64            `json:"triggered_price_usd"`
	Outcomes          []dispatch.Outcome `json:"outcomes"`
}
