package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/utils/metrics"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testFireContext() FireContext {
	return FireContext{
		CampaignID:    "c1",
		AlertID:       "a1",
		Label:         "USDC",
		Instrument:    campaign.InstrumentRef{Mint: testMint},
		Price:         1.5,
		PriceUSD:      225,
		ChangePercent: 50,
		Target:        1.4,
		Direction:     alert.DirectionAbove,
		PriceType:     alert.PriceTypePercentage,
		FiredAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExecutePartialFailureIsolation(t *testing.T) {
	orders := new(MockOrderService)
	orders.On("Buy", mock.Anything, mock.MatchedBy(func(r BuyRequest) bool {
		return r.AmountSOL == 0.5 && r.Wallet == "main" && r.Instrument.Mint == testMint
	})).Return(Receipt{}, errors.New("insufficient funds"))

	sender := new(MockSender)
	sender.On("Send", mock.Anything, "@alpha", testMint).Return(nil)

	d := New(Config{
		Orders:  orders,
		Senders: map[alert.Channel]Sender{alert.ChannelTelegram: sender},
		Logger:  zaptest.NewLogger(t),
		Metrics: metrics.NewCollector(),
	})

	outcomes := d.Execute(context.Background(), testFireContext(), []alert.Action{
		alert.Notify{},
		alert.ExecuteBuy{AmountSOL: 0.5, Wallet: "main"},
		alert.ForwardMessage{Channel: alert.ChannelTelegram, Destination: "@alpha"},
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, alert.ActionNotify, outcomes[0].ActionType)
	assert.Equal(t, StatusSuccess, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Detail, "USDC")

	assert.Equal(t, alert.ActionBuy, outcomes[1].ActionType)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Equal(t, "insufficient funds", outcomes[1].Error)

	assert.Equal(t, alert.ActionForward, outcomes[2].ActionType)
	assert.Equal(t, StatusSuccess, outcomes[2].Status)

	orders.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestExecuteSellSizing(t *testing.T) {
	orders := new(MockOrderService)
	orders.On("Sell", mock.Anything, mock.MatchedBy(func(r SellRequest) bool {
		return r.PercentOfHolding == 50 && r.ReferenceBalance == 1000
	})).Return(Receipt{Signature: "fixed"}, nil).Once()
	orders.On("Sell", mock.Anything, mock.MatchedBy(func(r SellRequest) bool {
		return r.PercentOfHolding == 25 && r.ReferenceBalance == 0
	})).Return(Receipt{Signature: "live", AmountIn: 10, AmountOut: 0.2}, nil).Once()

	d := New(Config{Orders: orders})
	outcomes := d.Execute(context.Background(), testFireContext(), []alert.Action{
		alert.ExecuteSell{PercentOfHolding: 50, Wallet: "main", ReferenceBalance: 1000},
		alert.ExecuteSell{PercentOfHolding: 25, Wallet: "main", UseLiveBalance: true, ReferenceBalance: 999},
	})

	require.Len(t, outcomes, 2)
	assert.Equal(t, "signature=fixed", outcomes[0].Detail)
	assert.Equal(t, "signature=live in=10 out=0.2", outcomes[1].Detail)
	orders.AssertExpectations(t)
}

func TestExecuteMissingCollaborators(t *testing.T) {
	d := New(Config{})
	outcomes := d.Execute(context.Background(), testFireContext(), []alert.Action{
		alert.ExecuteBuy{AmountSOL: 1, Wallet: "main"},
		alert.ExecuteSell{PercentOfHolding: 10, Wallet: "main"},
		alert.ForwardMessage{Channel: alert.ChannelDiscord, Destination: "https://discord.test/hook"},
		alert.Notify{},
	})

	require.Len(t, outcomes, 4)
	for _, o := range outcomes[:3] {
		assert.Equal(t, StatusFailed, o.Status)
		assert.NotEmpty(t, o.Error)
	}
	assert.Contains(t, outcomes[2].Error, "discord")
	assert.Equal(t, StatusSuccess, outcomes[3].Status)
}

func TestExecuteRecoversFromSenderPanic(t *testing.T) {
	d := New(Config{})
	d.RegisterSender(alert.ChannelDiscord, SenderFunc(func(context.Context, string, string) error {
		panic("boom")
	}))

	outcomes := d.Execute(context.Background(), testFireContext(), []alert.Action{
		alert.ForwardMessage{Channel: alert.ChannelDiscord, Destination: "hook"},
		alert.Notify{},
	})
	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "boom")
	assert.Equal(t, StatusSuccess, outcomes[1].Status)
}

func TestExecuteConcurrentPreservesOrder(t *testing.T) {
	var calls atomic.Int32
	slow := SenderFunc(func(ctx context.Context, destination, _ string) error {
		calls.Add(1)
		if destination == "first" {
			time.Sleep(30 * time.Millisecond)
			return errors.New("first failed")
		}
		return nil
	})

	d := New(Config{Concurrent: true, Senders: map[alert.Channel]Sender{alert.ChannelTelegram: slow}})
	actions := []alert.Action{
		alert.ForwardMessage{Channel: alert.ChannelTelegram, Destination: "first"},
		alert.ForwardMessage{Channel: alert.ChannelTelegram, Destination: "second"},
		alert.Notify{},
	}
	outcomes := d.Execute(context.Background(), testFireContext(), actions)

	require.Len(t, outcomes, 3)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, "first failed", outcomes[0].Error)
	assert.Equal(t, "sent to telegram second", outcomes[1].Detail)
	assert.Equal(t, alert.ActionNotify, outcomes[2].ActionType)
}

func TestActionExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("rpc down")
	err := error(&ActionExecutionError{ActionType: alert.ActionBuy, Cause: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "buy action failed: rpc down", err.Error())
}
