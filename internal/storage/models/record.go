// internal/storage/models/record.go
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
)

// TriggerRecord is one journal entry. Records outlive their campaign and
// alert, so there are no foreign keys.
type TriggerRecord struct {
	ID                  string    `gorm:"primaryKey;type:varchar(128)"`
	CampaignID          string    `gorm:"index;not null;type:varchar(64)"`
	AlertID             string    `gorm:"index;not null;type:varchar(64)"`
	PriceType           string    `gorm:"not null;type:varchar(20)"`
	Direction           string    `gorm:"not null;type:varchar(10)"`
	TargetValue         float64   `gorm:"type:double precision"`
	TargetPrice         float64   `gorm:"type:double precision"`
	TriggeredAtPrice    float64   `gorm:"type:double precision;not null"`
	TriggeredAtPriceUSD float64   `gorm:"type:double precision"`
	Timestamp           time.Time `gorm:"index;not null"`
	FailedActions       int       `gorm:"default:0"`
	Outcomes            []byte    `gorm:"type:jsonb;not null"`
	CreatedAt           time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// FromRecord maps a journal record to its row.
func FromRecord(r journal.Record) (TriggerRecord, error) {
	outcomes, err := json.Marshal(r.Outcomes)
	if err != nil {
		return TriggerRecord{}, fmt.Errorf("failed to encode outcomes of record %s: %w", r.ID, err)
	}
	return TriggerRecord{
		ID:                  r.ID,
		CampaignID:          r.CampaignID,
		AlertID:             r.AlertID,
		PriceType:           string(r.PriceType),
		Direction:           string(r.Direction),
		TargetValue:         r.TargetValue,
		TargetPrice:         r.TargetPrice,
		TriggeredAtPrice:    r.TriggeredAtPrice,
		TriggeredAtPriceUSD: r.TriggeredAtPriceUSD,
		Timestamp:           r.Timestamp,
		FailedActions:       r.Failed(),
		Outcomes:            outcomes,
	}, nil
}

// ToRecord maps a row back to the journal record.
func (m TriggerRecord) ToRecord() (journal.Record, error) {
	var outcomes []dispatch.Outcome
	if err := json.Unmarshal(m.Outcomes, &outcomes); err != nil {
		return journal.Record{}, fmt.Errorf("record %s: failed to decode outcomes: %w", m.ID, err)
	}
	return journal.Record{
		ID:                  m.ID,
		CampaignID:          m.CampaignID,
		AlertID:             m.AlertID,
		PriceType:           alert.PriceType(m.PriceType),
		Direction:           alert.Direction(m.Direction),
		TargetValue:         m.TargetValue,
		TargetPrice:         m.TargetPrice,
		TriggeredAtPrice:    m.TriggeredAtPrice,
		TriggeredAtPriceUSD: m.TriggeredAtPriceUSD,
		Timestamp:           m.Timestamp,
		Outcomes:            outcomes,
	}, nil
}
