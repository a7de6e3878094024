// internal/dispatch/types.go
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
)

// Status is the result of one action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// Outcome records what happened to one action of a fired alert.
type Outcome struct {
	ActionType alert.ActionType `json:"action_type"`
	Status     Status           `json:"status"`
	Detail     string           `json:"detail,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Succeeded reports whether the action completed.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// ActionExecutionError wraps the failure of a single action. It never
// escapes the dispatcher; it is flattened into an Outcome.
type ActionExecutionError struct {
	ActionType alert.ActionType
	Cause      error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("%s action failed: %v", e.ActionType, e.Cause)
}

func (e *ActionExecutionError) Unwrap() error { return e.Cause }

// BuyRequest asks the order service to spend AmountSOL on an instrument.
type BuyRequest struct {
	Wallet          string
	Instrument      campaign.InstrumentRef
	AmountSOL       float64
	SlippageBps     uint32
	PriorityFeeSOL  float64
	SkipPlatformFee bool
}

// SellRequest asks the order service to sell a percentage of a holding.
// A zero ReferenceBalance sizes the sell against the live balance.
type SellRequest struct {
	Wallet           string
	Instrument       campaign.InstrumentRef
	PercentOfHolding float64
	SlippageBps      uint32
	PriorityFeeSOL   float64
	SkipPlatformFee  bool
	ReferenceBalance float64
}

// Receipt is returned by the order service for a submitted order.
type Receipt struct {
	Signature string
	AmountIn  float64
	AmountOut float64
	Price     float64
}

// OrderService places orders on behalf of a wallet.
type OrderService interface {
	Buy(ctx context.Context, req BuyRequest) (Receipt, error)
	Sell(ctx context.Context, req SellRequest) (Receipt, error)
	Balance(ctx context.Context, wallet string, ref campaign.InstrumentRef) (float64, error)
}

// Sender delivers a message to a destination on one channel.
type Sender interface {
	Send(ctx context.Context, destination, message string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, destination, message string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, destination, message string) error {
	return f(ctx, destination, message)
}

// FireContext describes the firing an action list runs for.
type FireContext struct {
	CampaignID    string
	AlertID       string
	Label         string
	Instrument    campaign.InstrumentRef
	Price         float64
	PriceUSD      float64
	ChangePercent float64
	Target        float64
	Direction     alert.Direction
	PriceType     alert.PriceType
	FiredAt       time.Time
}
