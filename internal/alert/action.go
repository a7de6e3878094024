// internal/alert/action.go
package alert

import (
	"errors"
	"fmt"
	"strings"
)

// ActionType names the side effect an action performs.
type ActionType string

const (
	ActionNotify  ActionType = "notify"
	ActionBuy     ActionType = "buy"
	ActionSell    ActionType = "sell"
	ActionForward ActionType = "forward"
)

// Channel is an external messaging destination kind.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelDiscord  Channel = "discord"
)

// MaxSlippageBps caps slippage tolerance at 100%.
const MaxSlippageBps = 10_000

// Action is one side effect executed when an alert fires. The set of
// implementations is closed: Notify, ExecuteBuy, ExecuteSell, ForwardMessage.
type Action interface {
	Type() ActionType
	Validate() error
	isAction()
}

// Notify emits a local notification. It has no external dependency.
type Notify struct{}

// ExecuteBuy spends a fixed SOL amount on the campaign instrument.
type ExecuteBuy struct {
	AmountSOL       float64 `json:"amount_sol"`
	SlippageBps     uint32  `json:"slippage_bps"`
	PriorityFeeSOL  float64 `json:"priority_fee_sol"`
	SkipPlatformFee bool    `json:"skip_platform_fee"`
	Wallet          string  `json:"wallet"`
}

// ExecuteSell sells a percentage of a holding. With UseLiveBalance the
// percentage applies to the wallet balance at execution time (stop-loss
// ladders); otherwise it applies to ReferenceBalance, captured when the
// action was attached to the alert (fixed take-profit sizing).
type ExecuteSell struct {
	PercentOfHolding float64 `json:"percent_of_holding"`
	SlippageBps      uint32  `json:"slippage_bps"`
	PriorityFeeSOL   float64 `json:"priority_fee_sol"`
	SkipPlatformFee  bool    `json:"skip_platform_fee"`
	Wallet           string  `json:"wallet"`
	UseLiveBalance   bool    `json:"use_live_balance"`
	ReferenceBalance float64 `json:"reference_balance,omitempty"`
}

// ForwardMessage sends a rendered template to a messaging channel.
type ForwardMessage struct {
	Channel     Channel `json:"channel"`
	Destination string  `json:"destination"`
	Template    string  `json:"template,omitempty"`
}

func (Notify) Type() ActionType         { return ActionNotify }
func (ExecuteBuy) Type() ActionType     { return ActionBuy }
func (ExecuteSell) Type() ActionType    { return ActionSell }
func (ForwardMessage) Type() ActionType { return ActionForward }

func (Notify) isAction()         {}
func (ExecuteBuy) isAction()     {}
func (ExecuteSell) isAction()    {}
func (ForwardMessage) isAction() {}

func (Notify) Validate() error { return nil }

func (a ExecuteBuy) Validate() error {
	if a.AmountSOL <= 0 {
		return errors.New("buy amount must be greater than zero")
	}
	if a.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("slippage must be at most %d bps", MaxSlippageBps)
	}
	if a.PriorityFeeSOL < 0 {
		return errors.New("priority fee cannot be negative")
	}
	if strings.TrimSpace(a.Wallet) == "" {
		return errors.New("wallet cannot be empty")
	}
	return nil
}

func (a ExecuteSell) Validate() error {
	if a.PercentOfHolding <= 0 || a.PercentOfHolding > 100 {
		return errors.New("sell percentage must be in (0, 100]")
	}
	if a.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("slippage must be at most %d bps", MaxSlippageBps)
	}
	if a.PriorityFeeSOL < 0 {
		return errors.New("priority fee cannot be negative")
	}
	if strings.TrimSpace(a.Wallet) == "" {
		return errors.New("wallet cannot be empty")
	}
	return nil
}

func (a ForwardMessage) Validate() error {
	switch a.Channel {
	case ChannelTelegram, ChannelDiscord:
	default:
		return fmt.Errorf("unsupported channel: %q", a.Channel)
	}
	if strings.TrimSpace(a.Destination) == "" {
		return errors.New("destination cannot be empty")
	}
	return nil
}

// ValidateActions rejects an empty list and reports the first invalid action.
func ValidateActions(actions []Action) error {
	if len(actions) == 0 {
		return ErrNoActions
	}
	for i, a := range actions {
		if a == nil {
			return fmt.Errorf("action %d is nil", i)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Type(), err)
		}
	}
	return nil
}

// ErrNoActions is returned for an alert without any action.
var ErrNoActions = errors.New("alert needs at least one action")
