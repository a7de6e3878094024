package execution

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/feed"
	"github.com/rovshanmuradov/solana-testlab/internal/wallet"
)

var ref = campaign.InstrumentRef{Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}

type fixedQuoter struct{ price float64 }

func (q *fixedQuoter) Quote(_ context.Context, r campaign.InstrumentRef) (feed.Tick, error) {
	return feed.Tick{Instrument: r, Price: q.price}, nil
}

func newTrader(t *testing.T, cfg Config) *PaperTrader {
	t.Helper()
	w, err := wallet.Generate("main")
	require.NoError(t, err)
	cfg.Wallets = wallet.NewRegistry(w)
	cfg.Quoter = &fixedQuoter{price: 0.5}
	cfg.Logger = zap.NewNop()
	return NewPaperTrader(cfg)
}

func TestBuyFillsAtQuote(t *testing.T) {
	p := newTrader(t, Config{InitialSOL: 10, PlatformFeeBps: 100})
	ctx := context.Background()

	r, err := p.Buy(ctx, dispatch.BuyRequest{Wallet: "main", Instrument: ref, AmountSOL: 2, PriorityFeeSOL: 0.01})
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.AmountIn)
	assert.InDelta(t, 3.96, r.AmountOut, 1e-9)
	assert.Equal(t, 0.5, r.Price)

	sig, err := solana.SignatureFromBase58(r.Signature)
	require.NoError(t, err)
	assert.False(t, sig.IsZero())

	bal, err := p.Balance(ctx, "main", ref)
	require.NoError(t, err)
	assert.InDelta(t, 3.96, bal, 1e-9)
	assert.InDelta(t, 7.99, p.SOLBalance("main"), 1e-9)
}

func TestBuyRejectsInsufficientFunds(t *testing.T) {
	p := newTrader(t, Config{InitialSOL: 1})

	_, err := p.Buy(context.Background(), dispatch.BuyRequest{Wallet: "main", Instrument: ref, AmountSOL: 2})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 1.0, p.SOLBalance("main"))
}

func TestUnknownWallet(t *testing.T) {
	p := newTrader(t, Config{InitialSOL: 10})
	ctx := context.Background()

	_, err := p.Buy(ctx, dispatch.BuyRequest{Wallet: "ghost", Instrument: ref, AmountSOL: 1})
	assert.ErrorIs(t, err, wallet.ErrUnknownWallet)
	_, err = p.Balance(ctx, "ghost", ref)
	assert.ErrorIs(t, err, wallet.ErrUnknownWallet)
}

func TestSellSizing(t *testing.T) {
	tests := []struct {
		name      string
		reference float64
		percent   float64
		wantSold  float64
		wantErr   error
	}{
		{name: "live balance", percent: 50, wantSold: 50},
		{name: "reference balance", reference: 80, percent: 50, wantSold: 40},
		{name: "reference above holding", reference: 500, percent: 50, wantErr: ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTrader(t, Config{})
			require.NoError(t, p.Deposit("main", ref.Mint, 100))

			r, err := p.Sell(context.Background(), dispatch.SellRequest{
				Wallet:           "main",
				Instrument:       ref,
				PercentOfHolding: tt.percent,
				ReferenceBalance: tt.reference,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSold, r.AmountIn)
			assert.InDelta(t, tt.wantSold*0.5, r.AmountOut, 1e-9)

			bal, _ := p.Balance(context.Background(), "main", ref)
			assert.InDelta(t, 100-tt.wantSold, bal, 1e-9)
		})
	}
}

func TestSellEmptyHolding(t *testing.T) {
	p := newTrader(t, Config{})
	_, err := p.Sell(context.Background(), dispatch.SellRequest{Wallet: "main", Instrument: ref, PercentOfHolding: 100})
	assert.ErrorIs(t, err, ErrNothingToSell)
}

func TestSlippageLimit(t *testing.T) {
	p := newTrader(t, Config{InitialSOL: 10, ImpactBps: 200})
	ctx := context.Background()

	_, err := p.Buy(ctx, dispatch.BuyRequest{Wallet: "main", Instrument: ref, AmountSOL: 1, SlippageBps: 100})
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	r, err := p.Buy(ctx, dispatch.BuyRequest{Wallet: "main", Instrument: ref, AmountSOL: 1, SlippageBps: 300})
	require.NoError(t, err)
	assert.InDelta(t, 0.51, r.Price, 1e-9)
}
