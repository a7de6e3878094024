// internal/alert/codec.go
package alert

import (
	"encoding/json"
	"fmt"
)

// ActionSpec is the flat, serialisable form of an Action. It is what plan
// files, the database and the outbound event stream carry.
type ActionSpec struct {
	Type ActionType `json:"type" yaml:"type"`

	AmountSOL        float64 `json:"amount_sol,omitempty" yaml:"amount_sol,omitempty"`
	PercentOfHolding float64 `json:"percent_of_holding,omitempty" yaml:"percent_of_holding,omitempty"`
	SlippageBps      uint32  `json:"slippage_bps,omitempty" yaml:"slippage_bps,omitempty"`
	PriorityFeeSOL   float64 `json:"priority_fee_sol,omitempty" yaml:"priority_fee_sol,omitempty"`
	SkipPlatformFee  bool    `json:"skip_platform_fee,omitempty" yaml:"skip_platform_fee,omitempty"`
	Wallet           string  `json:"wallet,omitempty" yaml:"wallet,omitempty"`
	UseLiveBalance   bool    `json:"use_live_balance,omitempty" yaml:"use_live_balance,omitempty"`
	ReferenceBalance float64 `json:"reference_balance,omitempty" yaml:"reference_balance,omitempty"`

	Channel     Channel `json:"channel,omitempty" yaml:"channel,omitempty"`
	Destination string  `json:"destination,omitempty" yaml:"destination,omitempty"`
	Template    string  `json:"template,omitempty" yaml:"template,omitempty"`
}

// SpecOf flattens an action.
func SpecOf(a Action) ActionSpec {
	switch v := a.(type) {
	case Notify:
		return ActionSpec{Type: ActionNotify}
	case ExecuteBuy:
		return ActionSpec{
			Type:            ActionBuy,
			AmountSOL:       v.AmountSOL,
			SlippageBps:     v.SlippageBps,
			PriorityFeeSOL:  v.PriorityFeeSOL,
			SkipPlatformFee: v.SkipPlatformFee,
			Wallet:          v.Wallet,
		}
	case ExecuteSell:
		return ActionSpec{
			Type:             ActionSell,
			PercentOfHolding: v.PercentOfHolding,
			SlippageBps:      v.SlippageBps,
			PriorityFeeSOL:   v.PriorityFeeSOL,
			SkipPlatformFee:  v.SkipPlatformFee,
			Wallet:           v.Wallet,
			UseLiveBalance:   v.UseLiveBalance,
			ReferenceBalance: v.ReferenceBalance,
		}
	case ForwardMessage:
		return ActionSpec{
			Type:        ActionForward,
			Channel:     v.Channel,
			Destination: v.Destination,
			Template:    v.Template,
		}
	}
	return ActionSpec{}
}

// Action converts s back to its concrete variant. It does not
// validate field values; call Validate on the result for that.
func (s ActionSpec) Action() (Action, error) {
	switch s.Type {
	case ActionNotify:
		return Notify{}, nil
	case ActionBuy:
		return ExecuteBuy{
			AmountSOL:       s.AmountSOL,
			SlippageBps:     s.SlippageBps,
			PriorityFeeSOL:  s.PriorityFeeSOL,
			SkipPlatformFee: s.SkipPlatformFee,
			Wallet:          s.Wallet,
		}, nil
	case ActionSell:
		return ExecuteSell{
			PercentOfHolding: s.PercentOfHolding,
			SlippageBps:      s.SlippageBps,
			PriorityFeeSOL:   s.PriorityFeeSOL,
			SkipPlatformFee:  s.SkipPlatformFee,
			Wallet:           s.Wallet,
			UseLiveBalance:   s.UseLiveBalance,
			ReferenceBalance: s.ReferenceBalance,
		}, nil
	case ActionForward:
		return ForwardMessage{
			Channel:     s.Channel,
			Destination: s.Destination,
			Template:    s.Template,
		}, nil
	default:
		return nil, fmt.Errorf("unknown action type: %q", s.Type)
	}
}

// SpecsOf flattens an action list.
func SpecsOf(actions []Action) []ActionSpec {
	specs := make([]ActionSpec, 0, len(actions))
	for _, a := range actions {
		specs = append(specs, SpecOf(a))
	}
	return specs
}

// ActionsFrom converts specs back into actions.
func ActionsFrom(specs []ActionSpec) ([]Action, error) {
	actions := make([]Action, 0, len(specs))
	for i, s := range specs {
		a, err := s.Action()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// EncodeActions serialises an action list as a JSON array of specs.
func EncodeActions(actions []Action) ([]byte, error) {
	return json.Marshal(SpecsOf(actions))
}

// DecodeActions parses the output of EncodeActions.
func DecodeActions(data []byte) ([]Action, error) {
	var specs []ActionSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	return ActionsFrom(specs)
}

type alertJSON struct {
	*alertAlias
	Actions []ActionSpec `json:"actions"`
}

type alertAlias Alert

// MarshalJSON includes the action list in its flat form.
func (a Alert) MarshalJSON() ([]byte, error) {
	alias := alertAlias(a)
	return json.Marshal(alertJSON{alertAlias: &alias, Actions: SpecsOf(a.Actions)})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Alert) UnmarshalJSON(data []byte) error {
	aux := alertJSON{alertAlias: (*alertAlias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	actions, err := ActionsFrom(aux.Actions)
	if err != nil {
		return err
	}
	a.Actions = actions
	return nil
}
