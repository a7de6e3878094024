// internal/dispatch/template.go
package dispatch

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
)

type templateData struct {
	Mint          string
	Pool          string
	Price         string
	PriceUSD      string
	ChangePercent string
	Target        string
	Direction     string
	CampaignID    string
	AlertID       string
	Label         string
}

func newTemplateData(fc FireContext) templateData {
	return templateData{
		Mint:          fc.Instrument.Mint,
		Pool:          fc.Instrument.Pool,
		Price:         formatPrice(fc.Price),
		PriceUSD:      formatPrice(fc.PriceUSD),
		ChangePercent: fmt.Sprintf("%+.2f%%", fc.ChangePercent),
		Target:        formatPrice(fc.Target),
		Direction:     string(fc.Direction),
		CampaignID:    fc.CampaignID,
		AlertID:       fc.AlertID,
		Label:         fc.Label,
	}
}

// RenderMessage renders a forward template. An empty template yields the
// bare mint address.
func RenderMessage(tmpl string, fc FireContext) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return fc.Instrument.Mint, nil
	}
	t, err := template.New("forward").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, newTemplateData(fc)); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return sb.String(), nil
}

// NotificationText is the local notification line for a firing.
func NotificationText(fc FireContext) string {
	unit := "SOL"
	price := fc.Price
	if fc.PriceType == alert.PriceTypeExactUSD {
		unit = "USD"
		price = fc.PriceUSD
	}
	name := fc.Instrument.String()
	if fc.Label != "" {
		name = fc.Label + " (" + name + ")"
	}
	return fmt.Sprintf("%s crossed %s %s %s at %s (%+.2f%%)",
		name, fc.Direction, formatPrice(fc.Target), unit, formatPrice(price), fc.ChangePercent)
}

func formatPrice(p float64) string {
	switch {
	case p == 0:
		return "0"
	case p < 0.0001:
		return fmt.Sprintf("%.10f", p)
	case p < 1:
		return fmt.Sprintf("%.8f", p)
	default:
		return fmt.Sprintf("%.4f", p)
	}
}
