// internal/feed/polling.go
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/utils/metrics"
)

const pollFeedName = "poll"

type pollSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// PollingFeed turns a Quoter into a Feed by quoting every subscribed
// instrument on a fixed interval.
type PollingFeed struct {
	Quoter
	interval time.Duration
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu   sync.Mutex
	subs map[string]*pollSub
}

// NewPollingFeed creates a polling feed over q.
func NewPollingFeed(q Quoter, interval time.Duration, m *metrics.Collector, logger *zap.Logger) *PollingFeed {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingFeed{
		Quoter:   q,
		interval: interval,
		metrics:  m,
		logger:   logger.Named("poll_feed"),
		subs:     make(map[string]*pollSub),
	}
}

// Subscribe starts a polling loop for ref.
func (f *PollingFeed) Subscribe(ctx context.Context, ref campaign.InstrumentRef) (<-chan Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := ref.Key()
	if _, ok := f.subs[key]; ok {
		return nil, fmt.Errorf("already subscribed to %s", ref)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &pollSub{cancel: cancel, done: make(chan struct{})}
	ch := make(chan Tick, 16)
	f.subs[key] = sub
	f.metrics.SetFeedSubscriptions(pollFeedName, len(f.subs))

	go f.poll(subCtx, ref, ch, sub.done)

	f.logger.Debug("Subscribed", zap.String("instrument", ref.String()), zap.Duration("interval", f.interval))
	return ch, nil
}

// Unsubscribe stops the polling loop and closes its channel.
func (f *PollingFeed) Unsubscribe(ref campaign.InstrumentRef) {
	f.mu.Lock()
	sub, ok := f.subs[ref.Key()]
	if ok {
		delete(f.subs, ref.Key())
		f.metrics.SetFeedSubscriptions(pollFeedName, len(f.subs))
	}
	f.mu.Unlock()

	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
}

// Close stops every polling loop.
func (f *PollingFeed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[string]*pollSub)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	f.metrics.SetFeedSubscriptions(pollFeedName, 0)
}

func (f *PollingFeed) poll(ctx context.Context, ref campaign.InstrumentRef, ch chan<- Tick, done chan<- struct{}) {
	defer close(done)
	defer close(ch)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, err := f.Quote(ctx, ref)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.Warn("Quote failed",
					zap.String("instrument", ref.String()),
					zap.Error(err))
				continue
			}
			select {
			case ch <- tick:
			default:
				f.logger.Debug("Subscriber is behind, tick dropped",
					zap.String("instrument", ref.String()))
			}
		}
	}
}
