// internal/alert/evaluator.go
package alert

import (
	"math"
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
)

// ResolveTarget turns a rule into the absolute price the alert compares
// against. It runs once, when the alert is created or its target edited.
func ResolveTarget(pt PriceType, dir Direction, value, baseline float64) float64 {
	if pt != PriceTypePercentage {
		return value
	}
	if dir == DirectionBelow {
		return baseline * (1 - math.Abs(value)/100)
	}
	return baseline * (1 + value/100)
}

// Crossed reports whether a pending alert's threshold is met by the stats.
// Fired alerts never cross again.
func Crossed(a *Alert, s campaign.Stats) bool {
	if a.Hit {
		return false
	}
	price := s.CurrentPrice
	if a.PriceType == PriceTypeExactUSD {
		price = s.CurrentPriceUSD
	}
	if price <= 0 {
		return false
	}
	switch a.Direction {
	case DirectionAbove:
		return price >= a.TargetPrice
	case DirectionBelow:
		return price <= a.TargetPrice
	default:
		return false
	}
}

// Evaluate marks every newly crossed alert as hit and returns them. The hit
// flag is set before the caller gets a chance to dispatch, so a second call
// with the same stats returns nothing.
func Evaluate(alerts []*Alert, s campaign.Stats, now time.Time) []*Alert {
	var fired []*Alert
	for _, a := range alerts {
		if !Crossed(a, s) {
			continue
		}
		a.Hit = true
		a.HitAt = now
		fired = append(fired, a)
	}
	return fired
}
