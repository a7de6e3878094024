package app

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/config"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// priceServer serves a single DexScreener pair whose native price can be
// moved by the test.
type priceServer struct {
	*httptest.Server
	price atomic.Uint64
}

func newPriceServer(t *testing.T, price float64) *priceServer {
	t.Helper()
	ps := &priceServer{}
	ps.set(price)
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p := math.Float64frombits(ps.price.Load())
		fmt.Fprintf(w, `{"pairs":[{"chainId":"solana","pairAddress":"pool","baseToken":{"address":"%s"},"priceNative":"%g","priceUsd":"%g","liquidity":{"usd":1000}}]}`,
			usdcMint, p, p*150)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *priceServer) set(p float64) { ps.price.Store(math.Float64bits(p)) }

func testConfig(t *testing.T, quoteURL string) *config.Config {
	t.Helper()
	return &config.Config{
		JournalCapacity:   10,
		JournalCSVDir:     t.TempDir(),
		DispatchTimeoutMS: 2000,
		Feed: config.FeedConfig{
			Mode:           config.FeedModePoll,
			QuoteURL:       quoteURL,
			PollIntervalMS: 10,
		},
		PaperTrading: true,
		Paper:        config.PaperConfig{InitialSOL: 5, PlatformFeeBps: 100},
	}
}

const planYAML = `
campaigns:
  - mint: ` + usdcMint + `
    label: e2e
    alerts:
      - price_type: percentage
        direction: above
        value: 40
        actions:
          - type: notify
          - type: buy
            wallet: main
            amount_sol: 1
`

func TestRunFiresPlannedAlert(t *testing.T) {
	prices := newPriceServer(t, 1.0)
	cfg := testConfig(t, prices.URL)
	cfg.PlanFile = filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(cfg.PlanFile, []byte(planYAML), 0o600))

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.Monitor.Campaigns()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	c := a.Monitor.Campaigns()[0]
	assert.Equal(t, "e2e", c.Label)
	assert.Equal(t, 1.0, c.BaselinePrice)

	prices.set(1.5)
	require.Eventually(t, func() bool {
		return a.Journal.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := a.Journal.List(0, c.ID)[0]
	require.Len(t, rec.Outcomes, 2)
	assert.Equal(t, dispatch.StatusSuccess, rec.Outcomes[0].Status)
	assert.Equal(t, dispatch.StatusSuccess, rec.Outcomes[1].Status, rec.Outcomes[1].Error)
	assert.InDelta(t, 4.0, a.Trader.SOLBalance("main"), 1e-9)
	require.Eventually(t, func() bool {
		fired, _ := a.Fired()
		return fired == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, failed := a.Fired()
	assert.Zero(t, failed)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	files, err := filepath.Glob(filepath.Join(cfg.JournalCSVDir, "*.csv"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestNewRejectsBadWalletFile(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.WalletsFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestApplyPlanWithoutFile(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, "http://127.0.0.1:1"), zap.NewNop())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.NoError(t, a.ApplyPlan(context.Background()))
	assert.Empty(t, a.Monitor.Campaigns())
}
