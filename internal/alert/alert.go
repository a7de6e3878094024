// internal/alert/alert.go
package alert

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// PriceType selects what TargetValue means.
type PriceType string

const (
	// PriceTypePercentage is a percent move from the campaign baseline.
	PriceTypePercentage PriceType = "percentage"
	// PriceTypeExactPrimary is a literal price in the primary (SOL) denomination.
	PriceTypeExactPrimary PriceType = "exact_primary"
	// PriceTypeExactUSD is a literal price in USD, compared against the USD quote.
	PriceTypeExactUSD PriceType = "exact_usd"
)

// Direction selects the comparison operator.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Alert is a one-shot threshold rule bound to a campaign.
type Alert struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	PriceType   PriceType `json:"price_type"`
	Direction   Direction `json:"direction"`
	TargetValue float64   `json:"target_value"`
	TargetPrice float64   `json:"target_price"`
	Hit         bool      `json:"hit"`
	HitAt       time.Time `json:"hit_at,omitempty"`
	Actions     []Action  `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Rule is the user input an alert is created from.
type Rule struct {
	PriceType PriceType
	Direction Direction
	Value     float64
	Actions   []Action
}

// Clone returns a deep enough copy to hand outside the owning lock.
func (a *Alert) Clone() *Alert {
	c := *a
	c.Actions = append([]Action(nil), a.Actions...)
	return &c
}

// Denomination reports which quote the alert compares against.
func (a *Alert) Denomination() string {
	if a.PriceType == PriceTypeExactUSD {
		return "USD"
	}
	return "SOL"
}

// ValidateTarget checks the price type, direction and target value.
func ValidateTarget(pt PriceType, dir Direction, value float64) error {
	switch dir {
	case DirectionAbove, DirectionBelow:
	default:
		return fmt.Errorf("invalid direction: %q", dir)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.New("target value must be a finite number")
	}
	switch pt {
	case PriceTypePercentage:
		if dir == DirectionBelow && math.Abs(value) >= 100 {
			return errors.New("a drop of 100% or more can never be reached")
		}
		if dir == DirectionAbove && value <= -100 {
			return errors.New("percentage above must be greater than -100")
		}
	case PriceTypeExactPrimary, PriceTypeExactUSD:
		if value <= 0 {
			return errors.New("exact target price must be greater than zero")
		}
	default:
		return fmt.Errorf("invalid price type: %q", pt)
	}
	return nil
}

// Validate checks the rule target and its actions.
func (r Rule) Validate() error {
	if err := ValidateTarget(r.PriceType, r.Direction, r.Value); err != nil {
		return err
	}
	return ValidateActions(r.Actions)
}
