// internal/campaign/campaign.go
package campaign

import (
	"math"
	"time"
)

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
)

// Stats holds the running price statistics of a campaign relative to its baseline.
type Stats struct {
	BaselinePrice    float64 `json:"baseline_price"`
	BaselinePriceUSD float64 `json:"baseline_price_usd"`
	CurrentPrice     float64 `json:"current_price"`
	CurrentPriceUSD  float64 `json:"current_price_usd"`
	High             float64 `json:"high"`
	HighUSD          float64 `json:"high_usd"`
	Low              float64 `json:"low"`
	LowUSD           float64 `json:"low_usd"`

	ChangePercent      float64 `json:"change_percent"`
	HighestGainPercent float64 `json:"highest_gain_percent"`
	LowestDropPercent  float64 `json:"lowest_drop_percent"`

	Ticks         uint64    `json:"ticks"`
	StartedAt     time.Time `json:"started_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Campaign tracks one instrument. It is plain state and is not safe for
// concurrent use; the monitor serializes access per campaign.
type Campaign struct {
	ID         string        `json:"id"`
	Instrument InstrumentRef `json:"instrument"`
	Owner      string        `json:"owner,omitempty"`
	Label      string        `json:"label,omitempty"`
	Status     Status        `json:"status"`
	Stats
}

// New creates an active campaign whose baseline is the given quote.
func New(id string, ref InstrumentRef, price, priceUSD float64, at time.Time) *Campaign {
	return &Campaign{
		ID:         id,
		Instrument: ref,
		Status:     StatusActive,
		Stats: Stats{
			BaselinePrice:    price,
			BaselinePriceUSD: priceUSD,
			CurrentPrice:     price,
			CurrentPriceUSD:  priceUSD,
			High:             price,
			HighUSD:          priceUSD,
			Low:              price,
			LowUSD:           priceUSD,
			StartedAt:        at,
			LastUpdatedAt:    at,
		},
	}
}

// Active reports whether the campaign still accepts ticks.
func (c *Campaign) Active() bool {
	return c.Status == StatusActive
}

// Stop moves the campaign to its terminal state.
func (c *Campaign) Stop() {
	c.Status = StatusStopped
}

// ApplyTick folds a price observation into the statistics. Ticks older than
// the last applied one and non-positive prices leave the stats untouched and
// return false. A non-positive priceUSD means the USD quote is unknown and
// only the primary denomination is updated. The returned stats are the
// state after the call, whether or not the tick was applied.
func (c *Campaign) ApplyTick(price, priceUSD float64, ts time.Time) (Stats, bool) {
	if !validPrice(price) || ts.Before(c.LastUpdatedAt) {
		return c.Stats, false
	}

	c.CurrentPrice = price
	if price > c.High {
		c.High = price
	}
	if price < c.Low || c.Low <= 0 {
		c.Low = price
	}

	if validPrice(priceUSD) {
		c.CurrentPriceUSD = priceUSD
		if priceUSD > c.HighUSD {
			c.HighUSD = priceUSD
		}
		if priceUSD < c.LowUSD || c.LowUSD <= 0 {
			c.LowUSD = priceUSD
		}
		if c.BaselinePriceUSD <= 0 {
			c.BaselinePriceUSD = priceUSD
		}
	}

	c.ChangePercent = percentChange(c.BaselinePrice, price)
	if c.ChangePercent > c.HighestGainPercent {
		c.HighestGainPercent = c.ChangePercent
	}
	if c.ChangePercent < c.LowestDropPercent {
		c.LowestDropPercent = c.ChangePercent
	}

	c.Ticks++
	c.LastUpdatedAt = ts
	return c.Stats, true
}

// ResetBaseline makes the current price the new reference point. Alerts are
// not touched: a fired alert stays fired.
func (c *Campaign) ResetBaseline() {
	c.BaselinePrice = c.CurrentPrice
	c.BaselinePriceUSD = c.CurrentPriceUSD
	c.High = c.CurrentPrice
	c.Low = c.CurrentPrice
	c.HighUSD = c.CurrentPriceUSD
	c.LowUSD = c.CurrentPriceUSD
	c.ChangePercent = 0
	c.HighestGainPercent = 0
	c.LowestDropPercent = 0
}

// Snapshot returns a copy that can leave the owning goroutine.
func (c *Campaign) Snapshot() Campaign {
	return *c
}

func percentChange(baseline, current float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (current - baseline) / baseline * 100
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
