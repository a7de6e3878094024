// internal/monitor/errors.go
package monitor

import "errors"

var (
	// ErrInvalidInstrument is returned when an instrument cannot be parsed
	// or the feed has no market for it.
	ErrInvalidInstrument = errors.New("invalid instrument")
	// ErrCampaignNotActive is returned for mutations that need an active campaign.
	ErrCampaignNotActive = errors.New("campaign is not active")
	// ErrAlertAlreadyFired is returned when editing an alert that has fired.
	ErrAlertAlreadyFired = errors.New("alert already fired")
	// ErrEmptyActionList is returned for an alert without actions.
	ErrEmptyActionList = errors.New("alert needs at least one action")
	// ErrInvalidAlert wraps any other alert validation failure.
	ErrInvalidAlert = errors.New("invalid alert")
	// ErrCampaignNotFound is returned for unknown campaign ids.
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrAlertNotFound is returned for unknown alert ids.
	ErrAlertNotFound = errors.New("alert not found")
)

// ErrMonitorClosed is returned by StartCampaign after Shutdown.
var ErrMonitorClosed = errors.New("monitor is shut down")
