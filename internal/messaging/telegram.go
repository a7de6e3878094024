// internal/messaging/telegram.go
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// channelIDOffset turns a channel id into its -100... chat id form.
const channelIDOffset = 1_000_000_000_000

var (
	ErrNotAuthorized = errors.New("telegram session is not authorized, run the login command first")
	ErrClientStopped = errors.New("telegram client stopped")
	ErrPeerNotFound  = errors.New("telegram peer not found")
)

// TelegramConfig configures a Telegram user account.
type TelegramConfig struct {
	AppID       int
	AppHash     string
	SessionFile string
	Logger      *zap.Logger
}

// accountAPI is the part of the MTProto API the sender uses.
type accountAPI interface {
	ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error)
	Dialogs(ctx context.Context) ([]tg.InputPeerClass, error)
	SendText(ctx context.Context, to tg.InputPeerClass, text string) error
}

// TelegramAccount sends messages as a logged-in Telegram user. The
// destination is an @username, a t.me link, "me", or a numeric chat id in
// the -100... form for channels and supergroups.
type TelegramAccount struct {
	client *telegram.Client
	logger *zap.Logger

	api     accountAPI
	ready   chan struct{}
	done    chan struct{}
	runErr  error
	cancel  context.CancelFunc
	started bool

	mu    sync.Mutex
	peers map[string]tg.InputPeerClass
}

// NewTelegramAccount creates the MTProto client. The session file must hold
// an authorized session; see Login.
func NewTelegramAccount(cfg TelegramConfig) (*TelegramAccount, error) {
	if cfg.AppID == 0 || strings.TrimSpace(cfg.AppHash) == "" {
		return nil, errors.New("telegram app_id and app_hash are required")
	}
	if cfg.SessionFile == "" {
		return nil, errors.New("telegram session_file is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		Logger:         logger.Named("mtproto"),
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
	})
	return &TelegramAccount{
		client: client,
		logger: logger.Named("telegram"),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		peers:  make(map[string]tg.InputPeerClass),
	}, nil
}

func newTelegramAccountWithAPI(api accountAPI, logger *zap.Logger) *TelegramAccount {
	t := &TelegramAccount{
		api:    api,
		logger: logger,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		peers:  make(map[string]tg.InputPeerClass),
	}
	close(t.ready)
	return t
}

// Start connects in the background. Send waits until the connection is
// ready or has failed.
func (t *TelegramAccount) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.started = true

	go func() {
		defer close(t.done)
		err := t.client.Run(ctx, func(ctx context.Context) error {
			status, err := t.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("auth status: %w", err)
			}
			if !status.Authorized {
				return ErrNotAuthorized
			}
			t.api = newGotdAPI(t.client.API())
			close(t.ready)

			t.logger.Info("✅ Telegram account connected",
				zap.String("username", status.User.Username))
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.runErr = err
			t.logger.Error("Telegram client stopped", zap.Error(err))
		}
	}()
}

// Login authorizes the session file interactively. code is asked for the
// login code Telegram sends to the account.
func (t *TelegramAccount) Login(ctx context.Context, phone, password string, code func(ctx context.Context) (string, error)) error {
	flow := auth.NewFlow(
		auth.Constant(phone, password, auth.CodeAuthenticatorFunc(
			func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
				return code(ctx)
			})),
		auth.SendCodeOptions{},
	)
	return t.client.Run(ctx, func(ctx context.Context) error {
		if err := t.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("telegram login: %w", err)
		}
		t.logger.Info("✅ Telegram session authorized")
		return nil
	})
}

// Send delivers text to destination. It makes one send request.
func (t *TelegramAccount) Send(ctx context.Context, destination, text string) error {
	api, err := t.waitReady(ctx)
	if err != nil {
		return err
	}
	peer, err := t.resolve(ctx, api, destination)
	if err != nil {
		return err
	}
	if err := api.SendText(ctx, peer, text); err != nil {
		return fmt.Errorf("send to %s: %w", destination, err)
	}
	return nil
}

// Close disconnects the client.
func (t *TelegramAccount) Close() error {
	if !t.started {
		return nil
	}
	t.cancel()
	<-t.done
	return nil
}

func (t *TelegramAccount) waitReady(ctx context.Context) (accountAPI, error) {
	select {
	case <-t.ready:
		return t.api, nil
	default:
	}
	select {
	case <-t.ready:
		return t.api, nil
	case <-t.done:
		if t.runErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrClientStopped, t.runErr)
		}
		return nil, ErrClientStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *TelegramAccount) resolve(ctx context.Context, api accountAPI, destination string) (tg.InputPeerClass, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.peers[destination]; ok {
		return p, nil
	}
	username, id, err := parseDestination(destination)
	if err != nil {
		return nil, err
	}

	var peer tg.InputPeerClass
	switch {
	case username == "me":
		peer = &tg.InputPeerSelf{}
	case username != "":
		peer, err = api.ResolveUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("resolve @%s: %w", username, err)
		}
	case id < 0 && id > -channelIDOffset:
		peer = &tg.InputPeerChat{ChatID: -id}
	default:
		dialogs, err := api.Dialogs(ctx)
		if err != nil {
			return nil, fmt.Errorf("load dialogs: %w", err)
		}
		for _, d := range dialogs {
			if peerID(d) == id {
				peer = d
				break
			}
		}
		if peer == nil {
			return nil, fmt.Errorf("%w: %d is not among the account's dialogs", ErrPeerNotFound, id)
		}
	}

	t.peers[destination] = peer
	t.logger.Debug("Telegram peer resolved", zap.String("destination", destination))
	return peer, nil
}

// parseDestination splits a destination into a username or a numeric id.
func parseDestination(destination string) (string, int64, error) {
	d := strings.TrimSpace(destination)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/", "@"} {
		d = strings.TrimPrefix(d, prefix)
	}
	if d == "" {
		return "", 0, errors.New("telegram destination cannot be empty")
	}
	if d == "me" || d == "self" {
		return "me", 0, nil
	}
	if id, err := strconv.ParseInt(d, 10, 64); err == nil {
		if id == 0 {
			return "", 0, fmt.Errorf("invalid telegram chat id %q", destination)
		}
		return "", id, nil
	}
	if strings.ContainsAny(d, "/ ") {
		return "", 0, fmt.Errorf("invalid telegram destination %q", destination)
	}
	return d, 0, nil
}

// peerID returns the chat id of a peer in the signed form chat ids are
// shared in: users positive, groups negative, channels -100....
func peerID(p tg.InputPeerClass) int64 {
	switch p := p.(type) {
	case *tg.InputPeerUser:
		return p.UserID
	case *tg.InputPeerChat:
		return -p.ChatID
	case *tg.InputPeerChannel:
		return -(channelIDOffset + p.ChannelID)
	}
	return 0
}

type gotdAPI struct {
	raw    *tg.Client
	sender *message.Sender
}

func newGotdAPI(raw *tg.Client) *gotdAPI {
	return &gotdAPI{raw: raw, sender: message.NewSender(raw)}
}

func (g *gotdAPI) ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	return g.sender.Resolve(username).AsInputPeer(ctx)
}

func (g *gotdAPI) Dialogs(ctx context.Context) ([]tg.InputPeerClass, error) {
	iter := query.GetDialogs(g.raw).BatchSize(100).Iter()
	var out []tg.InputPeerClass
	for iter.Next(ctx) {
		out = append(out, iter.Value().Peer)
	}
	return out, iter.Err()
}

func (g *gotdAPI) SendText(ctx context.Context, to tg.InputPeerClass, text string) error {
	_, err := g.sender.To(to).NoWebpage().Text(ctx, text)
	return err
}
