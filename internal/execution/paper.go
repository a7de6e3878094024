// internal/execution/paper.go
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/feed"
	"github.com/rovshanmuradov/solana-testlab/internal/wallet"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNothingToSell     = errors.New("nothing to sell")
	ErrSlippageExceeded  = errors.New("slippage exceeded")
)

const bpsDenominator = 10_000

// Config configures a PaperTrader.
type Config struct {
	Wallets *wallet.Registry
	Quoter  feed.Quoter
	// PlatformFeeBps is charged on the SOL side of every order unless the
	// request skips it.
	PlatformFeeBps uint32
	// ImpactBps is the simulated price impact. Orders whose slippage limit is
	// below it are rejected; a zero limit accepts any impact.
	ImpactBps uint32
	// InitialSOL funds every registered wallet on first use.
	InitialSOL float64
	Logger     *zap.Logger
}

// fill is what a receipt signature commits to.
type fill struct {
	Side      string  `json:"side"`
	Wallet    string  `json:"wallet"`
	Mint      string  `json:"mint"`
	AmountIn  float64 `json:"amount_in"`
	AmountOut float64 `json:"amount_out"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	Nonce     int64   `json:"nonce"`
}

type book struct {
	sol    float64
	tokens map[string]float64
}

// PaperTrader is an OrderService that fills orders at the quoted price
// against simulated per-wallet balances. Receipts are signed by the wallet
// key so they can be told apart from real transactions only by lookup.
type PaperTrader struct {
	wallets    *wallet.Registry
	quoter     feed.Quoter
	feeBps     uint32
	impactBps  uint32
	initialSOL float64
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	books map[string]*book
}

var _ dispatch.OrderService = (*PaperTrader)(nil)

// NewPaperTrader creates a paper trader.
func NewPaperTrader(cfg Config) *PaperTrader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperTrader{
		wallets:    cfg.Wallets,
		quoter:     cfg.Quoter,
		feeBps:     cfg.PlatformFeeBps,
		impactBps:  cfg.ImpactBps,
		initialSOL: cfg.InitialSOL,
		logger:     logger.Named("paper"),
		now:        time.Now,
		books:      make(map[string]*book),
	}
}

// Deposit credits a token holding. An empty mint credits SOL.
func (p *PaperTrader) Deposit(walletName, mint string, amount float64) error {
	if _, err := p.wallets.Get(walletName); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.bookLocked(walletName)
	if mint == "" {
		b.sol += amount
	} else {
		b.tokens[mint] += amount
	}
	return nil
}

// SOLBalance returns the simulated SOL balance of a wallet.
func (p *PaperTrader) SOLBalance(walletName string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bookLocked(walletName).sol
}

// Balance returns the token holding of a wallet.
func (p *PaperTrader) Balance(_ context.Context, walletName string, ref campaign.InstrumentRef) (float64, error) {
	if _, err := p.wallets.Get(walletName); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bookLocked(walletName).tokens[ref.Mint], nil
}

// Buy spends AmountSOL plus the priority fee on the instrument.
func (p *PaperTrader) Buy(ctx context.Context, req dispatch.BuyRequest) (dispatch.Receipt, error) {
	w, err := p.wallets.Get(req.Wallet)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	price, err := p.fillPrice(ctx, req.Instrument, req.SlippageBps, true)
	if err != nil {
		return dispatch.Receipt{}, err
	}

	fee := p.fee(req.AmountSOL, req.SkipPlatformFee)
	tokens := (req.AmountSOL - fee) / price

	p.mu.Lock()
	b := p.bookLocked(req.Wallet)
	cost := req.AmountSOL + req.PriorityFeeSOL
	if b.sol < cost {
		have := b.sol
		p.mu.Unlock()
		return dispatch.Receipt{}, fmt.Errorf("%w: need %.6f SOL, have %.6f", ErrInsufficientFunds, cost, have)
	}
	b.sol -= cost
	b.tokens[req.Instrument.Mint] += tokens
	p.mu.Unlock()

	return p.receipt(w, fill{
		Side:      "buy",
		Wallet:    req.Wallet,
		Mint:      req.Instrument.Mint,
		AmountIn:  req.AmountSOL,
		AmountOut: tokens,
		Price:     price,
		Fee:       fee,
	})
}

// Sell sells PercentOfHolding of the reference balance, or of the live
// balance when no reference was captured.
func (p *PaperTrader) Sell(ctx context.Context, req dispatch.SellRequest) (dispatch.Receipt, error) {
	w, err := p.wallets.Get(req.Wallet)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	price, err := p.fillPrice(ctx, req.Instrument, req.SlippageBps, false)
	if err != nil {
		return dispatch.Receipt{}, err
	}

	p.mu.Lock()
	b := p.bookLocked(req.Wallet)
	live := b.tokens[req.Instrument.Mint]
	basis := live
	if req.ReferenceBalance > 0 {
		basis = req.ReferenceBalance
	}
	amount := basis * req.PercentOfHolding / 100
	switch {
	case amount <= 0:
		p.mu.Unlock()
		return dispatch.Receipt{}, ErrNothingToSell
	case amount > live:
		p.mu.Unlock()
		return dispatch.Receipt{}, fmt.Errorf("%w: need %.6f tokens, have %.6f", ErrInsufficientFunds, amount, live)
	case b.sol < req.PriorityFeeSOL:
		p.mu.Unlock()
		return dispatch.Receipt{}, fmt.Errorf("%w: priority fee %.6f SOL", ErrInsufficientFunds, req.PriorityFeeSOL)
	}
	gross := amount * price
	fee := p.fee(gross, req.SkipPlatformFee)
	b.tokens[req.Instrument.Mint] = live - amount
	b.sol += gross - fee - req.PriorityFeeSOL
	p.mu.Unlock()

	return p.receipt(w, fill{
		Side:      "sell",
		Wallet:    req.Wallet,
		Mint:      req.Instrument.Mint,
		AmountIn:  amount,
		AmountOut: gross - fee,
		Price:     price,
		Fee:       fee,
	})
}

// fillPrice quotes the instrument and applies the simulated impact against
// the trader: buys fill higher, sells lower.
func (p *PaperTrader) fillPrice(ctx context.Context, ref campaign.InstrumentRef, slippageBps uint32, buy bool) (float64, error) {
	if slippageBps > 0 && p.impactBps > slippageBps {
		return 0, fmt.Errorf("%w: impact %d bps over limit %d bps", ErrSlippageExceeded, p.impactBps, slippageBps)
	}
	tick, err := p.quoter.Quote(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("failed to quote %s: %w", ref, err)
	}
	if tick.Price <= 0 {
		return 0, fmt.Errorf("no price for %s", ref)
	}
	impact := float64(p.impactBps) / bpsDenominator
	if buy {
		return tick.Price * (1 + impact), nil
	}
	return tick.Price * (1 - impact), nil
}

func (p *PaperTrader) fee(amountSOL float64, skip bool) float64 {
	if skip || p.feeBps == 0 {
		return 0
	}
	return amountSOL * float64(p.feeBps) / bpsDenominator
}

func (p *PaperTrader) bookLocked(walletName string) *book {
	b, ok := p.books[walletName]
	if !ok {
		b = &book{sol: p.initialSOL, tokens: make(map[string]float64)}
		p.books[walletName] = b
	}
	return b
}

func (p *PaperTrader) receipt(w *wallet.Wallet, f fill) (dispatch.Receipt, error) {
	f.Nonce = p.now().UnixNano()
	payload, err := json.Marshal(f)
	if err != nil {
		return dispatch.Receipt{}, fmt.Errorf("failed to encode fill: %w", err)
	}
	sig, err := w.Sign(payload)
	if err != nil {
		return dispatch.Receipt{}, fmt.Errorf("failed to sign fill: %w", err)
	}

	p.logger.Info("📝 Paper order filled",
		zap.String("side", f.Side),
		zap.String("wallet", f.Wallet),
		zap.String("mint", f.Mint),
		zap.Float64("amount_in", f.AmountIn),
		zap.Float64("amount_out", f.AmountOut),
		zap.Float64("price", f.Price),
		zap.Float64("fee", f.Fee),
		zap.String("signature", sig.String()))

	return dispatch.Receipt{
		Signature: sig.String(),
		AmountIn:  f.AmountIn,
		AmountOut: f.AmountOut,
		Price:     f.Price,
	}, nil
}
