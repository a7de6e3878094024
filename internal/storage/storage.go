// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
)

// ErrNotFound is returned by lookups of unknown ids.
var ErrNotFound = errors.New("not found")

// Store persists campaigns, their alerts and the trigger history.
type Store interface {
	// Campaigns
	SaveCampaign(ctx context.Context, c campaign.Campaign) error
	// DeleteCampaign removes the campaign and its alerts. Records are kept.
	DeleteCampaign(ctx context.Context, id string) error
	LoadCampaigns(ctx context.Context) ([]campaign.Campaign, error)

	// Alerts
	SaveAlert(ctx context.Context, a alert.Alert) error
	DeleteAlert(ctx context.Context, id string) error
	LoadAlerts(ctx context.Context) ([]alert.Alert, error)

	// Trigger records
	SaveRecord(ctx context.Context, rec journal.Record) error
	// LoadRecords returns up to limit records, oldest first.
	LoadRecords(ctx context.Context, limit int) ([]journal.Record, error)

	Close() error
}

// RecordSink feeds journal appends into a Store.
type RecordSink struct {
	Store Store
}

// Write implements journal.Sink.
func (s RecordSink) Write(rec journal.Record) error {
	return s.Store.SaveRecord(context.Background(), rec)
}
