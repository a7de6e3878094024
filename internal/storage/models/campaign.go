// internal/storage/models/campaign.go
package models

import (
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
)

type Campaign struct {
	ID     string `gorm:"primaryKey;type:varchar(64)"`
	Mint   string `gorm:"index;not null;type:varchar(44)"`
	Pool   string `gorm:"type:varchar(44)"`
	Owner  string `gorm:"index;type:varchar(100)"`
	Label  string `gorm:"type:varchar(200)"`
	Status string `gorm:"index;not null;type:varchar(20)"`

	BaselinePrice      float64 `gorm:"type:double precision;not null"`
	BaselinePriceUSD   float64 `gorm:"type:double precision"`
	CurrentPrice       float64 `gorm:"type:double precision"`
	CurrentPriceUSD    float64 `gorm:"type:double precision"`
	High               float64 `gorm:"type:double precision"`
	HighUSD            float64 `gorm:"type:double precision"`
	Low                float64 `gorm:"type:double precision"`
	LowUSD             float64 `gorm:"type:double precision"`
	ChangePercent      float64 `gorm:"type:double precision"`
	HighestGainPercent float64 `gorm:"type:double precision"`
	LowestDropPercent  float64 `gorm:"type:double precision"`
	Ticks              int64   `gorm:"default:0"`

	StartedAt     time.Time `gorm:"index;not null"`
	LastUpdatedAt time.Time
	Timestamps
}

// FromCampaign maps a campaign snapshot to its row.
func FromCampaign(c campaign.Campaign) Campaign {
	return Campaign{
		ID:                 c.ID,
		Mint:               c.Instrument.Mint,
		Pool:               c.Instrument.Pool,
		Owner:              c.Owner,
		Label:              c.Label,
		Status:             string(c.Status),
		BaselinePrice:      c.BaselinePrice,
		BaselinePriceUSD:   c.BaselinePriceUSD,
		CurrentPrice:       c.CurrentPrice,
		CurrentPriceUSD:    c.CurrentPriceUSD,
		High:               c.High,
		HighUSD:            c.HighUSD,
		Low:                c.Low,
		LowUSD:             c.LowUSD,
		ChangePercent:      c.ChangePercent,
		HighestGainPercent: c.HighestGainPercent,
		LowestDropPercent:  c.LowestDropPercent,
		Ticks:              int64(c.Ticks),
		StartedAt:          c.StartedAt,
		LastUpdatedAt:      c.LastUpdatedAt,
	}
}

// ToCampaign maps a row back to the domain type.
func (m Campaign) ToCampaign() campaign.Campaign {
	return campaign.Campaign{
		ID:         m.ID,
		Instrument: campaign.InstrumentRef{Mint: m.Mint, Pool: m.Pool},
		Owner:      m.Owner,
		Label:      m.Label,
		Status:     campaign.Status(m.Status),
		Stats: campaign.Stats{
			BaselinePrice:      m.BaselinePrice,
			BaselinePriceUSD:   m.BaselinePriceUSD,
			CurrentPrice:       m.CurrentPrice,
			CurrentPriceUSD:    m.CurrentPriceUSD,
			High:               m.High,
			HighUSD:            m.HighUSD,
			Low:                m.Low,
			LowUSD:             m.LowUSD,
			ChangePercent:      m.ChangePercent,
			HighestGainPercent: m.HighestGainPercent,
			LowestDropPercent:  m.LowestDropPercent,
			Ticks:              uint64(m.Ticks),
			StartedAt:          m.StartedAt,
			LastUpdatedAt:      m.LastUpdatedAt,
		},
	}
}
