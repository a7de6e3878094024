// internal/feed/feed.go
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
)

// ErrUnknownInstrument is returned when the source has no market for the
// requested instrument.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Tick is one price observation. A non-positive PriceUSD means the source
// had no USD quote.
type Tick struct {
	Instrument campaign.InstrumentRef `json:"instrument"`
	Price      float64                `json:"price"`
	PriceUSD   float64                `json:"price_usd"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Quoter fetches a single price observation.
type Quoter interface {
	Quote(ctx context.Context, ref campaign.InstrumentRef) (Tick, error)
}

// Feed is a streaming price source. Subscribe must not block on delivery;
// ticks arrive on the returned channel until Unsubscribe closes it or the
// context passed to Subscribe is cancelled.
type Feed interface {
	Quoter
	Subscribe(ctx context.Context, ref campaign.InstrumentRef) (<-chan Tick, error)
	Unsubscribe(ref campaign.InstrumentRef)
}
