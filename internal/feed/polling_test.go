package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
)

type stubQuoter struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (q *stubQuoter) Quote(_ context.Context, ref campaign.InstrumentRef) (Tick, error) {
	n := q.calls.Add(1)
	if q.fail.Load() {
		return Tick{}, errors.New("upstream down")
	}
	return Tick{Instrument: ref, Price: float64(n), Timestamp: time.Now()}, nil
}

func TestPollingFeedDeliversTicks(t *testing.T) {
	q := &stubQuoter{}
	f := NewPollingFeed(q, 5*time.Millisecond, nil, zap.NewNop())
	ref := campaign.InstrumentRef{Mint: mint}

	ch, err := f.Subscribe(context.Background(), ref)
	require.NoError(t, err)

	_, err = f.Subscribe(context.Background(), ref)
	assert.Error(t, err)

	select {
	case tick := <-ch:
		assert.Equal(t, ref, tick.Instrument)
		assert.Greater(t, tick.Price, 0.0)
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}

	f.Unsubscribe(ref)
	for range ch {
	}

	// unsubscribing twice is harmless
	f.Unsubscribe(ref)
}

func TestPollingFeedSurvivesQuoteErrors(t *testing.T) {
	q := &stubQuoter{}
	q.fail.Store(true)
	f := NewPollingFeed(q, 5*time.Millisecond, nil, zap.NewNop())
	defer f.Close()

	ch, err := f.Subscribe(context.Background(), campaign.InstrumentRef{Mint: mint})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.calls.Load() >= 3 }, time.Second, time.Millisecond)
	q.fail.Store(false)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("feed did not recover")
	}
}

func TestPollingFeedStopsWithContext(t *testing.T) {
	f := NewPollingFeed(&stubQuoter{}, time.Millisecond, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := f.Subscribe(ctx, campaign.InstrumentRef{Mint: mint})
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	f.Close()
}
