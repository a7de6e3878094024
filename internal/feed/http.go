// internal/feed/http.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/utils/metrics"
)

const (
	DefaultQuoteURL = "https://api.dexscreener.com/latest/dex"
	solanaChain     = "solana"
)

// pairsResponse is the subset of the DexScreener pairs payload the quoter reads.
type pairsResponse struct {
	Pairs []pairInfo `json:"pairs"`
}

type pairInfo struct {
	ChainID     string    `json:"chainId"`
	DexID       string    `json:"dexId"`
	PairAddress string    `json:"pairAddress"`
	BaseToken   tokenInfo `json:"baseToken"`
	PriceNative string    `json:"priceNative"`
	PriceUSD    string    `json:"priceUsd"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

type tokenInfo struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

// HTTPQuoterConfig configures an HTTPQuoter.
type HTTPQuoterConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxTries   uint
	RetryDelay time.Duration
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// HTTPQuoter quotes instruments from a DexScreener compatible REST API.
// With a pool it reads that pair; otherwise it picks the most liquid Solana
// pair whose base token is the mint.
type HTTPQuoter struct {
	client     *http.Client
	baseURL    string
	maxTries   uint
	retryDelay time.Duration
	metrics    *metrics.Collector
	logger     *zap.Logger
	now        func() time.Time
}

// NewHTTPQuoter creates a quoter.
func NewHTTPQuoter(cfg HTTPQuoterConfig) *HTTPQuoter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultQuoteURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPQuoter{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxTries:   cfg.MaxTries,
		retryDelay: cfg.RetryDelay,
		metrics:    cfg.Metrics,
		logger:     logger.Named("quoter"),
		now:        time.Now,
	}
}

// Quote fetches the current price. Transient failures are retried with
// exponential backoff; an unknown instrument fails immediately with
// ErrUnknownInstrument.
func (q *HTTPQuoter) Quote(ctx context.Context, ref campaign.InstrumentRef) (Tick, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = q.retryDelay
	policy.MaxInterval = q.retryDelay * 10

	notify := func(err error, d time.Duration) {
		q.logger.Debug("Retrying quote",
			zap.String("instrument", ref.String()),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	start := q.now()
	tick, err := backoff.Retry(ctx, func() (Tick, error) {
		return q.fetch(ctx, ref)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(q.maxTries),
		backoff.WithNotify(notify))
	q.metrics.RecordQuoteLatency("http", q.now().Sub(start))
	if err != nil {
		return Tick{}, err
	}
	return tick, nil
}

func (q *HTTPQuoter) fetch(ctx context.Context, ref campaign.InstrumentRef) (Tick, error) {
	url := fmt.Sprintf("%s/tokens/%s", q.baseURL, ref.Mint)
	if ref.Pool != "" {
		url = fmt.Sprintf("%s/pairs/%s/%s", q.baseURL, solanaChain, ref.Pool)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Tick{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return Tick{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Tick{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrUnknownInstrument, ref))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Tick{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Tick{}, backoff.Permanent(fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body)))
	}

	var payload pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Tick{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}

	pair := selectPair(payload.Pairs, ref)
	if pair == nil {
		return Tick{}, backoff.Permanent(fmt.Errorf("%w: no pair for %s", ErrUnknownInstrument, ref))
	}

	price, err := strconv.ParseFloat(pair.PriceNative, 64)
	if err != nil || price <= 0 {
		return Tick{}, backoff.Permanent(fmt.Errorf("invalid native price %q for %s", pair.PriceNative, ref))
	}
	// priceUsd is missing for some fresh pairs
	priceUSD, _ := strconv.ParseFloat(pair.PriceUSD, 64)

	return Tick{
		Instrument: ref,
		Price:      price,
		PriceUSD:   priceUSD,
		Timestamp:  q.now(),
	}, nil
}

func selectPair(pairs []pairInfo, ref campaign.InstrumentRef) *pairInfo {
	var best *pairInfo
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != "" && p.ChainID != solanaChain {
			continue
		}
		if ref.Pool != "" {
			if p.PairAddress == ref.Pool {
				return p
			}
			continue
		}
		if p.BaseToken.Address != ref.Mint {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	return best
}
