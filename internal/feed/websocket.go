// internal/feed/websocket.go
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/utils/metrics"
)

const wsFeedName = "websocket"

// WSConfig configures a WSFeed.
type WSConfig struct {
	URL string
	// Quoter serves baseline quotes; the stream only carries updates.
	Quoter Quoter

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// DefaultWSConfig returns default timings for url.
func DefaultWSConfig(url string, q Quoter) WSConfig {
	return WSConfig{
		URL:               url,
		Quoter:            q,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// wsMessage is both the subscription request and the tick notification.
// Timestamp is in unix milliseconds.
type wsMessage struct {
	Type      string  `json:"type"`
	Mint      string  `json:"mint"`
	Pool      string  `json:"pool,omitempty"`
	Price     float64 `json:"price,omitempty"`
	PriceUSD  float64 `json:"price_usd,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
	Error     string  `json:"error,omitempty"`
}

const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgTick        = "tick"
	msgError       = "error"
)

type wsSub struct {
	ref  campaign.InstrumentRef
	ch   chan Tick
	stop chan struct{}
}

// WSFeed streams ticks over a websocket. A dropped connection is redialled
// with exponential backoff and every live subscription is sent again.
type WSFeed struct {
	Quoter
	cfg     WSConfig
	metrics *metrics.Collector
	logger  *zap.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	mu   sync.RWMutex
	subs map[string]*wsSub

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewWSFeed creates a feed. Call Connect before subscribing.
func NewWSFeed(cfg WSConfig) *WSFeed {
	def := DefaultWSConfig(cfg.URL, cfg.Quoter)
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WSFeed{
		Quoter:  cfg.Quoter,
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  logger.Named("ws_feed"),
		subs:    make(map[string]*wsSub),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect dials the stream and starts the read and ping loops.
func (f *WSFeed) Connect(ctx context.Context) error {
	if f.closed.Load() {
		return errors.New("feed closed")
	}
	if err := f.dial(ctx); err != nil {
		return err
	}
	f.wg.Add(2)
	go f.readLoop()
	go f.pingLoop()
	f.logger.Info("🔌 Price stream connected", zap.String("url", f.cfg.URL))
	return nil
}

func (f *WSFeed) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return nil
}

// Subscribe registers ref and asks the stream for its ticks. The channel is
// closed by Unsubscribe, by Close, or when ctx is cancelled.
func (f *WSFeed) Subscribe(ctx context.Context, ref campaign.InstrumentRef) (<-chan Tick, error) {
	if f.closed.Load() {
		return nil, errors.New("feed closed")
	}

	f.mu.Lock()
	key := ref.Key()
	if _, ok := f.subs[key]; ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", ref)
	}
	sub := &wsSub{ref: ref, ch: make(chan Tick, 64), stop: make(chan struct{})}
	f.subs[key] = sub
	f.metrics.SetFeedSubscriptions(wsFeedName, len(f.subs))
	f.mu.Unlock()

	// a failed write is repaired by the resubscribe after reconnect
	if err := f.write(wsMessage{Type: msgSubscribe, Mint: ref.Mint, Pool: ref.Pool}); err != nil {
		f.logger.Warn("Subscribe request not sent",
			zap.String("instrument", ref.String()),
			zap.Error(err))
	}

	go func() {
		select {
		case <-ctx.Done():
			f.Unsubscribe(ref)
		case <-sub.stop:
		}
	}()
	return sub.ch, nil
}

// Unsubscribe drops ref and closes its channel.
func (f *WSFeed) Unsubscribe(ref campaign.InstrumentRef) {
	f.mu.Lock()
	sub, ok := f.subs[ref.Key()]
	if ok {
		delete(f.subs, ref.Key())
		close(sub.stop)
		close(sub.ch)
		f.metrics.SetFeedSubscriptions(wsFeedName, len(f.subs))
	}
	f.mu.Unlock()

	if ok && !f.closed.Load() {
		_ = f.write(wsMessage{Type: msgUnsubscribe, Mint: ref.Mint, Pool: ref.Pool})
	}
}

// Close shuts the connection and closes every subscription channel.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.cancel()

	f.connMu.Lock()
	if f.conn != nil {
		_ = f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = f.conn.Close()
	}
	f.connMu.Unlock()

	f.mu.Lock()
	for key, sub := range f.subs {
		close(sub.stop)
		close(sub.ch)
		delete(f.subs, key)
	}
	f.mu.Unlock()
	f.metrics.SetFeedSubscriptions(wsFeedName, 0)

	f.wg.Wait()
	return nil
}

func (f *WSFeed) write(msg wsMessage) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return errors.New("not connected")
	}
	_ = f.conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
	return f.conn.WriteJSON(msg)
}

func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn != nil {
			_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
			_, data, err := conn.ReadMessage()
			if err == nil {
				f.handleMessage(data)
				continue
			}
			if f.closed.Load() {
				return
			}
			f.logger.Warn("Price stream read failed", zap.Error(err))
		}

		if err := f.reconnect(); err != nil {
			// only fails once the feed is closing
			return
		}
	}
}

// reconnect redials until it succeeds or the feed is closed, then replays
// every subscription.
func (f *WSFeed) reconnect() error {
	f.connMu.Lock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.cfg.ReconnectDelay
	policy.MaxInterval = f.cfg.MaxReconnectDelay

	notify := func(err error, d time.Duration) {
		f.logger.Warn("Reconnect failed, retrying",
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	_, err := backoff.Retry(f.ctx, func() (struct{}, error) {
		dialCtx, cancel := context.WithTimeout(f.ctx, 30*time.Second)
		defer cancel()
		return struct{}{}, f.dial(dialCtx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify))
	if err != nil {
		return err
	}

	f.metrics.RecordFeedReconnect(wsFeedName)
	f.resubscribeAll()
	f.logger.Info("🔌 Price stream reconnected", zap.String("url", f.cfg.URL))
	return nil
}

func (f *WSFeed) resubscribeAll() {
	f.mu.RLock()
	refs := make([]campaign.InstrumentRef, 0, len(f.subs))
	for _, sub := range f.subs {
		refs = append(refs, sub.ref)
	}
	f.mu.RUnlock()

	for _, ref := range refs {
		if err := f.write(wsMessage{Type: msgSubscribe, Mint: ref.Mint, Pool: ref.Pool}); err != nil {
			f.logger.Warn("Resubscribe failed",
				zap.String("instrument", ref.String()),
				zap.Error(err))
		}
	}
}

func (f *WSFeed) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("Ignoring malformed message", zap.Error(err))
		return
	}

	switch msg.Type {
	case msgTick:
		f.deliver(msg)
	case msgError:
		f.logger.Warn("Price stream error",
			zap.String("mint", msg.Mint),
			zap.String("error", msg.Error))
	}
}

func (f *WSFeed) deliver(msg wsMessage) {
	ref := campaign.InstrumentRef{Mint: msg.Mint, Pool: msg.Pool}
	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	sub, ok := f.subs[ref.Key()]
	if !ok && ref.Pool != "" {
		// a mint-only subscription accepts ticks from any pool
		sub, ok = f.subs[ref.Mint]
	}
	if !ok {
		return
	}

	tick := Tick{Instrument: sub.ref, Price: msg.Price, PriceUSD: msg.PriceUSD, Timestamp: ts}
	select {
	case sub.ch <- tick:
	default:
		f.logger.Debug("Subscriber is behind, tick dropped",
			zap.String("instrument", sub.ref.String()))
	}
}

func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				_ = f.conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
				_ = f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}
