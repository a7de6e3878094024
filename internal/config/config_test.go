package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultJournalCapacity, cfg.JournalCapacity)
	assert.Equal(t, FeedModePoll, cfg.Feed.Mode)
	assert.Equal(t, DefaultQuoteURL, cfg.Feed.QuoteURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 15*time.Second, cfg.DispatchTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.UpdateInterval())
	assert.Equal(t, DefaultNATSSubject, cfg.NATSSubject)
	assert.True(t, cfg.PaperTrading)
	assert.Equal(t, uint32(100), cfg.Paper.PlatformFeeBps)
}

func TestFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
journal_capacity: 50
concurrent_actions: true
feed:
  mode: websocket
  websocket_url: wss://stream.example.com/ticks
telegram:
  app_id: 12345
  app_hash: from-file
nats_url: nats://127.0.0.1:4222
`)
	t.Setenv("TESTLAB_TELEGRAM_APP_HASH", "from-env")
	t.Setenv("TESTLAB_JOURNAL_CAPACITY", "75")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.JournalCapacity)
	assert.True(t, cfg.ConcurrentActions)
	assert.Equal(t, FeedModeWebSocket, cfg.Feed.Mode)
	assert.Equal(t, "wss://stream.example.com/ticks", cfg.Feed.WebSocketURL)
	assert.Equal(t, 12345, cfg.Telegram.AppID)
	assert.Equal(t, "from-env", cfg.Telegram.AppHash)
	assert.Equal(t, "telegram.session", cfg.Telegram.SessionFile)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"unknown feed mode":   "feed:\n  mode: carrier-pigeon\n",
		"websocket no url":    "feed:\n  mode: websocket\n",
		"websocket bad proto": "feed:\n  mode: websocket\n  websocket_url: https://x.example.com\n",
		"zero capacity":       "journal_capacity: 0\n",
		"negative interval":   "update_interval_ms: -1\n",
		"bad nats scheme":     "nats_url: http://127.0.0.1:4222\n",
		"live trading":        "paper_trading: false\n",
		"telegram no hash":    "telegram:\n  app_id: 1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
