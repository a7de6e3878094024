// internal/storage/models/alert.go
package models

import (
	"fmt"
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
)

type Alert struct {
	ID          string  `gorm:"primaryKey;type:varchar(64)"`
	CampaignID  string  `gorm:"index;not null;type:varchar(64)"`
	PriceType   string  `gorm:"not null;type:varchar(20)"`
	Direction   string  `gorm:"not null;type:varchar(10)"`
	TargetValue float64 `gorm:"type:double precision;not null"`
	TargetPrice float64 `gorm:"type:double precision;not null"`
	Hit         bool    `gorm:"index;default:false"`
	HitAt       *time.Time
	// Actions holds the JSON encoded action specs.
	Actions   []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"index;not null"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// FromAlert maps an alert to its row.
func FromAlert(a alert.Alert) (Alert, error) {
	actions, err := alert.EncodeActions(a.Actions)
	if err != nil {
		return Alert{}, fmt.Errorf("failed to encode actions of alert %s: %w", a.ID, err)
	}
	row := Alert{
		ID:          a.ID,
		CampaignID:  a.CampaignID,
		PriceType:   string(a.PriceType),
		Direction:   string(a.Direction),
		TargetValue: a.TargetValue,
		TargetPrice: a.TargetPrice,
		Hit:         a.Hit,
		Actions:     actions,
		CreatedAt:   a.CreatedAt,
	}
	if a.Hit {
		hitAt := a.HitAt
		row.HitAt = &hitAt
	}
	return row, nil
}

// ToAlert maps a row back to the domain type.
func (m Alert) ToAlert() (alert.Alert, error) {
	actions, err := alert.DecodeActions(m.Actions)
	if err != nil {
		return alert.Alert{}, fmt.Errorf("alert %s: %w", m.ID, err)
	}
	a := alert.Alert{
		ID:          m.ID,
		CampaignID:  m.CampaignID,
		PriceType:   alert.PriceType(m.PriceType),
		Direction:   alert.Direction(m.Direction),
		TargetValue: m.TargetValue,
		TargetPrice: m.TargetPrice,
		Hit:         m.Hit,
		Actions:     actions,
		CreatedAt:   m.CreatedAt,
	}
	if m.HitAt != nil {
		a.HitAt = *m.HitAt
	}
	return a, nil
}
