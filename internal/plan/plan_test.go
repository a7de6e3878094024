package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/monitor"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	wsolMint = "So11111111111111111111111111111111111111112"
)

const samplePlan = `
campaigns:
  - mint: ` + usdcMint + `
    label: usdc watch
    owner: desk
    alerts:
      - price_type: percentage
        direction: above
        value: 40
        actions:
          - type: notify
          - type: sell
            wallet: main
            percent_of_holding: 50
            slippage_bps: 300
      - price_type: exact_usd
        direction: below
        value: 0
        actions:
          - type: notify
      - price_type: exact_primary
        direction: below
        value: 0.8
        actions:
          - type: forward
            channel: telegram
            destination: "-100123"
            template: "{{.Mint}} dipped to {{.Price}}"
  - mint: not-a-key
    alerts: []
  - mint: ` + wsolMint + `
`

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) StartCampaign(ctx context.Context, req monitor.StartRequest) (campaign.Campaign, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(campaign.Campaign), args.Error(1)
}

func (m *mockEngine) AddAlert(ctx context.Context, campaignID string, rule alert.Rule) (alert.Alert, error) {
	args := m.Called(ctx, campaignID, rule)
	return args.Get(0).(alert.Alert), args.Error(1)
}

func TestParseSkipsInvalidEntries(t *testing.T) {
	p, err := NewLoader(zap.NewNop()).Parse([]byte(samplePlan))
	require.NoError(t, err)
	require.Len(t, p.Campaigns, 2)

	first := p.Campaigns[0]
	assert.Equal(t, usdcMint, first.Mint)
	assert.Equal(t, "usdc watch", first.Label)
	require.Len(t, first.Alerts, 2, "the zero exact target is dropped")

	rule, err := first.Alerts[0].Rule()
	require.NoError(t, err)
	require.Len(t, rule.Actions, 2)
	assert.Equal(t, alert.ExecuteSell{Wallet: "main", PercentOfHolding: 50, SlippageBps: 300}, rule.Actions[1])

	fwd, err := first.Alerts[1].Rule()
	require.NoError(t, err)
	assert.Equal(t, alert.ChannelTelegram, fwd.Actions[0].(alert.ForwardMessage).Channel)

	assert.Equal(t, wsolMint, p.Campaigns[1].Mint)
	assert.Empty(t, p.Campaigns[1].Alerts)
}

func TestParseErrors(t *testing.T) {
	l := NewLoader(nil)

	_, err := l.Parse([]byte("campaigns: ["))
	assert.Error(t, err)

	_, err = l.Parse([]byte("campaigns: []"))
	assert.Error(t, err)

	_, err = l.Parse([]byte("campaigns:\n  - mint: nope\n"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o600))

	p, err := NewLoader(zap.NewNop()).Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Campaigns, 2)

	_, err = NewLoader(zap.NewNop()).Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	l := NewLoader(zap.NewNop())
	p, err := l.Parse([]byte(samplePlan))
	require.NoError(t, err)

	ctx := context.Background()
	eng := new(mockEngine)
	eng.On("StartCampaign", ctx, monitor.StartRequest{Mint: usdcMint, Owner: "desk", Label: "usdc watch"}).
		Return(campaign.Campaign{ID: "c1"}, nil)
	eng.On("StartCampaign", ctx, monitor.StartRequest{Mint: wsolMint}).
		Return(campaign.Campaign{}, errors.New("quote failed"))
	eng.On("AddAlert", ctx, "c1", mock.AnythingOfType("alert.Rule")).
		Return(alert.Alert{}, nil).Twice()

	started, err := l.Apply(ctx, eng, p)
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, "c1", started[0].ID)
	eng.AssertExpectations(t)
}

func TestApplyNothingStarted(t *testing.T) {
	l := NewLoader(zap.NewNop())
	p, err := l.Parse([]byte("campaigns:\n  - mint: " + wsolMint + "\n"))
	require.NoError(t, err)

	eng := new(mockEngine)
	eng.On("StartCampaign", mock.Anything, mock.Anything).
		Return(campaign.Campaign{}, monitor.ErrInvalidInstrument)

	_, err = l.Apply(context.Background(), eng, p)
	assert.Error(t, err)
}
