// internal/messaging/discord.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// discordLimit is the maximum content length of a webhook message.
const discordLimit = 2000

// Discord delivers messages to webhooks. The destination is the webhook URL.
// A webhook that answers with an error is not posted to again.
type Discord struct {
	client   *http.Client
	username string
	maxTries uint
	logger   *zap.Logger
}

type discordMessage struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// NewDiscord creates a webhook sender. username overrides the webhook's
// display name when set.
func NewDiscord(username string, timeout time.Duration, logger *zap.Logger) *Discord {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discord{
		client:   &http.Client{Timeout: timeout},
		username: username,
		maxTries: 3,
		logger:   logger.Named("discord"),
	}
}

// Send posts text to the webhook.
func (d *Discord) Send(ctx context.Context, destination, text string) error {
	u, err := url.Parse(destination)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("invalid discord webhook url %q", destination)
	}
	if r := []rune(text); len(r) > discordLimit {
		text = string(r[:discordLimit-1]) + "…"
	}
	body, err := json.Marshal(discordMessage{Content: text, Username: d.username})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return post(ctx, d.client, destination, body, d.maxTries, d.logger, func(resp *http.Response) error {
		if resp.StatusCode/100 == 2 {
			return nil
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(msg))
	})
}
