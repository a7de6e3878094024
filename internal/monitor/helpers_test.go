package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
	"github.com/rovshanmuradov/solana-testlab/internal/feed"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
	"github.com/rovshanmuradov/solana-testlab/internal/storage"
)

const (
	testMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testMint2 = "So11111111111111111111111111111111111111112"
	testPool  = "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeFeed struct {
	mu          sync.Mutex
	quotes      map[string]feed.Tick
	quoteErr    error
	subs        map[string]chan feed.Tick
	subscribed  int
	unsubscribe int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		quotes: make(map[string]feed.Tick),
		subs:   make(map[string]chan feed.Tick),
	}
}

func (f *fakeFeed) setQuote(mint string, price, priceUSD float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[mint] = feed.Tick{Price: price, PriceUSD: priceUSD, Timestamp: base}
}

func (f *fakeFeed) Quote(_ context.Context, ref campaign.InstrumentRef) (feed.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return feed.Tick{}, f.quoteErr
	}
	t, ok := f.quotes[ref.Mint]
	if !ok {
		return feed.Tick{}, feed.ErrUnknownInstrument
	}
	t.Instrument = ref
	return t, nil
}

func (f *fakeFeed) Subscribe(_ context.Context, ref campaign.InstrumentRef) (<-chan feed.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan feed.Tick, 16)
	f.subs[ref.Key()] = ch
	f.subscribed++
	return ch, nil
}

func (f *fakeFeed) Unsubscribe(ref campaign.InstrumentRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[ref.Key()]; ok {
		close(ch)
		delete(f.subs, ref.Key())
		f.unsubscribe++
	}
}

func (f *fakeFeed) push(ref campaign.InstrumentRef, t feed.Tick) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.subs[ref.Key()]
	if !ok {
		return false
	}
	ch <- t
	return true
}

func (f *fakeFeed) counts() (subscribed, unsubscribed, open int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed, f.unsubscribe, len(f.subs)
}

type fakeOrders struct {
	mu           sync.Mutex
	buyErr       error
	balance      float64
	balanceCalls int
	buys         []dispatch.BuyRequest
	sells        []dispatch.SellRequest
}

func (o *fakeOrders) Buy(_ context.Context, req dispatch.BuyRequest) (dispatch.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buys = append(o.buys, req)
	if o.buyErr != nil {
		return dispatch.Receipt{}, o.buyErr
	}
	return dispatch.Receipt{Signature: "buy-sig"}, nil
}

func (o *fakeOrders) Sell(_ context.Context, req dispatch.SellRequest) (dispatch.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sells = append(o.sells, req)
	return dispatch.Receipt{Signature: "sell-sig"}, nil
}

func (o *fakeOrders) Balance(_ context.Context, _ string, _ campaign.InstrumentRef) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balanceCalls++
	if o.balance < 0 {
		return 0, errors.New("rpc unavailable")
	}
	return o.balance, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) PublishWait(_ context.Context, ev events.Event) error {
	return p.Publish(ev)
}

func (p *recordingPublisher) ofType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	m      *Monitor
	feed   *fakeFeed
	orders *fakeOrders
	events *recordingPublisher
	clock  *fakeClock
	sender *recordingSender
}

// recordingSender records messages. With a gate set, each Send signals
// entered and then waits for the gate to close.
type recordingSender struct {
	mu      sync.Mutex
	sent    []string
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (s *recordingSender) hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.entered = make(chan struct{}, 16)
}

func (s *recordingSender) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.gate)
}

func (s *recordingSender) Send(_ context.Context, destination, message string) error {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, destination+": "+message)
	return s.err
}

func newHarness(t *testing.T, store storage.Store) *harness {
	t.Helper()
	return newHarnessWithEvents(t, store, nil)
}

// newHarnessWithEvents routes monitor events to pub instead of the
// recording publisher.
func newHarnessWithEvents(t *testing.T, store storage.Store, pub events.Publisher) *harness {
	t.Helper()
	h := &harness{
		feed:   newFakeFeed(),
		orders: &fakeOrders{balance: 1000},
		events: &recordingPublisher{},
		clock:  &fakeClock{now: base},
		sender: &recordingSender{},
	}
	if pub == nil {
		pub = h.events
	}
	h.feed.setQuote(testMint, 1.0, 150)
	h.feed.setQuote(testMint2, 20, 3000)

	ids := 0
	var idMu sync.Mutex
	d := dispatch.New(dispatch.Config{
		Orders:  h.orders,
		Senders: map[alert.Channel]dispatch.Sender{alert.ChannelTelegram: h.sender},
		Logger:  zap.NewNop(),
	})
	h.m = New(Config{
		Feed:           h.feed,
		Executor:       d,
		Orders:         h.orders,
		Journal:        journal.New(10, zap.NewNop()),
		Events:         pub,
		Store:          store,
		Logger:         zap.NewNop(),
		UpdateInterval: -1,
		Clock:          h.clock.Now,
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			ids++
			return "id" + string(rune('0'+ids/10)) + string(rune('0'+ids%10))
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.m.Shutdown(ctx)
	})
	return h
}

func (h *harness) start(t *testing.T, mint string) campaign.Campaign {
	t.Helper()
	c, err := h.m.StartCampaign(context.Background(), StartRequest{Mint: mint, Label: "test"})
	require.NoError(t, err)
	return c
}

// tick advances the clock one second and routes a tick stamped with it.
func (h *harness) tick(c campaign.Campaign, price, priceUSD float64) {
	h.clock.Advance(time.Second)
	h.m.OnPriceTick(c.Instrument, price, priceUSD, h.clock.Now())
}
