// internal/messaging/post.go
package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// post sends a JSON body and lets check judge the response. A request is
// sent at most once: only dial failures, where nothing reached the server,
// are retried. Any response, including 429 and 5xx, is final.
func post(ctx context.Context, client *http.Client, url string, body []byte, maxTries uint, logger *zap.Logger, check func(*http.Response) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("execute request: %w", err)
			if isDialError(err) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		defer resp.Body.Close()
		if err := check(resp); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debug("Retrying connection", zap.Duration("backoff", d), zap.Error(err))
		}))
	return err
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
