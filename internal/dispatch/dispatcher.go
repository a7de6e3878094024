// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/utils/metrics"
)

var (
	errNoOrderService = errors.New("order service not configured")
	errNoSender       = errors.New("no sender registered for channel")
)

// Config wires the dispatcher collaborators. Every field is optional; an
// action whose collaborator is missing fails with an outcome.
type Config struct {
	Orders     OrderService
	Senders    map[alert.Channel]Sender
	Concurrent bool
	Logger     *zap.Logger
	Metrics    *metrics.Collector
}

// Dispatcher executes the action list of a fired alert.
type Dispatcher struct {
	orders     OrderService
	concurrent bool
	logger     *zap.Logger
	metrics    *metrics.Collector

	mu      sync.RWMutex
	senders map[alert.Channel]Sender
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	senders := make(map[alert.Channel]Sender, len(cfg.Senders))
	for ch, s := range cfg.Senders {
		senders[ch] = s
	}
	return &Dispatcher{
		orders:     cfg.Orders,
		concurrent: cfg.Concurrent,
		logger:     logger.Named("dispatcher"),
		metrics:    cfg.Metrics,
		senders:    senders,
	}
}

// RegisterSender installs or replaces the sender for a channel.
func (d *Dispatcher) RegisterSender(ch alert.Channel, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[ch] = s
}

func (d *Dispatcher) sender(ch alert.Channel) (Sender, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.senders[ch]
	return s, ok && s != nil
}

// Execute runs every action and returns one outcome per action, in action
// order. A failing action never stops the ones after it, and nothing is
// retried.
func (d *Dispatcher) Execute(ctx context.Context, fc FireContext, actions []alert.Action) []Outcome {
	outcomes := make([]Outcome, len(actions))

	if !d.concurrent || len(actions) < 2 {
		for i, a := range actions {
			outcomes[i] = d.run(ctx, fc, a)
		}
		return outcomes
	}

	var g errgroup.Group
	for i, a := range actions {
		g.Go(func() error {
			outcomes[i] = d.run(ctx, fc, a)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) run(ctx context.Context, fc FireContext, a alert.Action) (out Outcome) {
	if a == nil {
		return Outcome{Status: StatusFailed, Error: "nil action"}
	}
	start := time.Now()
	var execErr error

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("panic: %v", r)
			execErr = &ActionExecutionError{ActionType: a.Type(), Cause: cause}
			out = failed(a.Type(), cause)
		}
		d.metrics.RecordAction(string(out.ActionType), string(out.Status), time.Since(start))
		fields := []zap.Field{
			zap.String("campaign_id", fc.CampaignID),
			zap.String("alert_id", fc.AlertID),
			zap.String("action", string(out.ActionType)),
			zap.Duration("took", time.Since(start)),
		}
		if execErr != nil {
			d.logger.Warn("Action failed", append(fields, zap.Error(execErr))...)
			return
		}
		d.logger.Info("Action executed", append(fields, zap.String("detail", out.Detail))...)
	}()

	detail, err := d.execute(ctx, fc, a)
	if err != nil {
		execErr = &ActionExecutionError{ActionType: a.Type(), Cause: err}
		return failed(a.Type(), err)
	}
	return Outcome{ActionType: a.Type(), Status: StatusSuccess, Detail: detail}
}

func (d *Dispatcher) execute(ctx context.Context, fc FireContext, a alert.Action) (string, error) {
	switch act := a.(type) {
	case alert.Notify:
		return NotificationText(fc), nil

	case alert.ExecuteBuy:
		if d.orders == nil {
			return "", errNoOrderService
		}
		receipt, err := d.orders.Buy(ctx, BuyRequest{
			Wallet:          act.Wallet,
			Instrument:      fc.Instrument,
			AmountSOL:       act.AmountSOL,
			SlippageBps:     act.SlippageBps,
			PriorityFeeSOL:  act.PriorityFeeSOL,
			SkipPlatformFee: act.SkipPlatformFee,
		})
		if err != nil {
			return "", err
		}
		return receiptDetail(receipt), nil

	case alert.ExecuteSell:
		if d.orders == nil {
			return "", errNoOrderService
		}
		req := SellRequest{
			Wallet:           act.Wallet,
			Instrument:       fc.Instrument,
			PercentOfHolding: act.PercentOfHolding,
			SlippageBps:      act.SlippageBps,
			PriorityFeeSOL:   act.PriorityFeeSOL,
			SkipPlatformFee:  act.SkipPlatformFee,
		}
		if !act.UseLiveBalance {
			req.ReferenceBalance = act.ReferenceBalance
		}
		receipt, err := d.orders.Sell(ctx, req)
		if err != nil {
			return "", err
		}
		return receiptDetail(receipt), nil

	case alert.ForwardMessage:
		s, ok := d.sender(act.Channel)
		if !ok {
			return "", fmt.Errorf("%w: %s", errNoSender, act.Channel)
		}
		msg, err := RenderMessage(act.Template, fc)
		if err != nil {
			return "", err
		}
		if err := s.Send(ctx, act.Destination, msg); err != nil {
			return "", err
		}
		return fmt.Sprintf("sent to %s %s", act.Channel, act.Destination), nil

	default:
		return "", fmt.Errorf("unsupported action type %q", a.Type())
	}
}

// failed keeps the cause text verbatim so callers see the collaborator's own error.
func failed(t alert.ActionType, cause error) Outcome {
	return Outcome{ActionType: t, Status: StatusFailed, Error: cause.Error()}
}

func receiptDetail(r Receipt) string {
	if r.AmountIn == 0 && r.AmountOut == 0 {
		return "signature=" + r.Signature
	}
	return fmt.Sprintf("signature=%s in=%g out=%g", r.Signature, r.AmountIn, r.AmountOut)
}
