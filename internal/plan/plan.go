// internal/plan/plan.go
package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/monitor"
)

// Plan is the campaign plan file: campaigns to start at boot together with
// their alert rules.
type Plan struct {
	Campaigns []CampaignPlan `yaml:"campaigns"`
}

type CampaignPlan struct {
	Mint   string     `yaml:"mint"`
	Pool   string     `yaml:"pool"`
	Owner  string     `yaml:"owner"`
	Label  string     `yaml:"label"`
	Alerts []RulePlan `yaml:"alerts"`
}

type RulePlan struct {
	PriceType alert.PriceType    `yaml:"price_type"`
	Direction alert.Direction    `yaml:"direction"`
	Value     float64            `yaml:"value"`
	Actions   []alert.ActionSpec `yaml:"actions"`
}

// Rule converts the plan entry into a validated alert rule.
func (r RulePlan) Rule() (alert.Rule, error) {
	actions, err := alert.ActionsFrom(r.Actions)
	if err != nil {
		return alert.Rule{}, err
	}
	rule := alert.Rule{
		PriceType: r.PriceType,
		Direction: r.Direction,
		Value:     r.Value,
		Actions:   actions,
	}
	if err := rule.Validate(); err != nil {
		return alert.Rule{}, err
	}
	return rule, nil
}

// Engine is the subset of the monitor a plan is applied to.
type Engine interface {
	StartCampaign(ctx context.Context, req monitor.StartRequest) (campaign.Campaign, error)
	AddAlert(ctx context.Context, campaignID string, rule alert.Rule) (alert.Alert, error)
}

// Loader reads plan files.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("plan")}
}

// Load reads a plan from YAML. Campaigns without a valid instrument and
// rules that fail validation are skipped with a warning; a plan with no
// usable campaign is an error.
func (l *Loader) Load(path string) (*Plan, error) {
	if filepath.IsAbs(path) {
		l.logger.Debug("Using absolute path for plan file", zap.String("path", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return l.Parse(data)
}

// Parse decodes and filters a plan document.
func (l *Loader) Parse(data []byte) (*Plan, error) {
	var raw Plan
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(raw.Campaigns) == 0 {
		return nil, fmt.Errorf("no campaigns found in plan")
	}

	out := &Plan{Campaigns: make([]CampaignPlan, 0, len(raw.Campaigns))}
	for i, cp := range raw.Campaigns {
		if _, err := campaign.ParseInstrument(cp.Mint, cp.Pool); err != nil {
			l.logger.Warn("Skipping campaign with invalid instrument",
				zap.Int("index", i),
				zap.String("mint", cp.Mint),
				zap.Error(err))
			continue
		}

		rules := make([]RulePlan, 0, len(cp.Alerts))
		for j, rp := range cp.Alerts {
			if _, err := rp.Rule(); err != nil {
				l.logger.Warn("Skipping invalid alert rule",
					zap.String("mint", cp.Mint),
					zap.Int("rule", j),
					zap.Error(err))
				continue
			}
			rules = append(rules, rp)
		}
		cp.Alerts = rules
		out.Campaigns = append(out.Campaigns, cp)
	}

	if len(out.Campaigns) == 0 {
		return nil, fmt.Errorf("no valid campaigns in plan")
	}

	l.logger.Info("Loaded campaign plan", zap.Int("campaigns", len(out.Campaigns)))
	return out, nil
}

// Apply starts every campaign of the plan and installs its rules. A campaign
// that fails to start is logged and skipped so one dead instrument does not
// block the rest. The started campaigns are returned.
func (l *Loader) Apply(ctx context.Context, eng Engine, p *Plan) ([]campaign.Campaign, error) {
	started := make([]campaign.Campaign, 0, len(p.Campaigns))
	for _, cp := range p.Campaigns {
		if err := ctx.Err(); err != nil {
			return started, err
		}

		c, err := eng.StartCampaign(ctx, monitor.StartRequest{
			Mint:  cp.Mint,
			Pool:  cp.Pool,
			Owner: cp.Owner,
			Label: cp.Label,
		})
		if err != nil {
			l.logger.Error("Failed to start planned campaign",
				zap.String("mint", cp.Mint),
				zap.Error(err))
			continue
		}

		for _, rp := range cp.Alerts {
			rule, err := rp.Rule()
			if err != nil {
				continue
			}
			if _, err := eng.AddAlert(ctx, c.ID, rule); err != nil {
				l.logger.Warn("Failed to add planned alert",
					zap.String("campaign_id", c.ID),
					zap.String("price_type", string(rp.PriceType)),
					zap.Error(err))
			}
		}
		started = append(started, c)
	}

	if len(started) == 0 {
		return nil, fmt.Errorf("no planned campaign could be started")
	}
	l.logger.Info("Applied campaign plan", zap.Int("started", len(started)))
	return started, nil
}
