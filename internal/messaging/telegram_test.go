package messaging

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAccountAPI struct {
	mock.Mock
}

func (m *mockAccountAPI) ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	args := m.Called(ctx, username)
	p, _ := args.Get(0).(tg.InputPeerClass)
	return p, args.Error(1)
}

func (m *mockAccountAPI) Dialogs(ctx context.Context) ([]tg.InputPeerClass, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).([]tg.InputPeerClass)
	return p, args.Error(1)
}

func (m *mockAccountAPI) SendText(ctx context.Context, to tg.InputPeerClass, text string) error {
	return m.Called(ctx, to, text).Error(0)
}

func TestParseDestination(t *testing.T) {
	cases := []struct {
		in       string
		username string
		id       int64
	}{
		{"@desk", "desk", 0},
		{"desk", "desk", 0},
		{"https://t.me/desk", "desk", 0},
		{"t.me/desk", "desk", 0},
		{"me", "me", 0},
		{"self", "me", 0},
		{"448480473", "", 448480473},
		{"-4945112939", "", -4945112939},
		{"-1001234567890", "", -1001234567890},
	}
	for _, tc := range cases {
		username, id, err := parseDestination(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.username, username, tc.in)
		assert.Equal(t, tc.id, id, tc.in)
	}

	for _, bad := range []string{"", "  ", "@", "0", "t.me/a/b"} {
		_, _, err := parseDestination(bad)
		assert.Error(t, err, bad)
	}
}

func TestTelegramAccountResolvesAndCaches(t *testing.T) {
	api := new(mockAccountAPI)
	desk := &tg.InputPeerChannel{ChannelID: 777, AccessHash: 1}
	api.On("ResolveUsername", mock.Anything, "desk").Return(desk, nil).Once()
	api.On("SendText", mock.Anything, desk, "USDC crossed above 1.4").Return(nil).Twice()

	acc := newTelegramAccountWithAPI(api, zap.NewNop())
	require.NoError(t, acc.Send(context.Background(), "@desk", "USDC crossed above 1.4"))
	require.NoError(t, acc.Send(context.Background(), "@desk", "USDC crossed above 1.4"))

	api.AssertExpectations(t)
}

func TestTelegramAccountNumericDestinations(t *testing.T) {
	api := new(mockAccountAPI)
	user := &tg.InputPeerUser{UserID: 448480473, AccessHash: 9}
	channel := &tg.InputPeerChannel{ChannelID: 1234567890, AccessHash: 5}
	api.On("Dialogs", mock.Anything).Return([]tg.InputPeerClass{user, channel}, nil)
	api.On("SendText", mock.Anything, mock.Anything, "hi").Return(nil)

	acc := newTelegramAccountWithAPI(api, zap.NewNop())
	require.NoError(t, acc.Send(context.Background(), "448480473", "hi"))
	require.NoError(t, acc.Send(context.Background(), "-1001234567890", "hi"))
	require.NoError(t, acc.Send(context.Background(), "-4945112939", "hi"))

	api.AssertCalled(t, "SendText", mock.Anything, user, "hi")
	api.AssertCalled(t, "SendText", mock.Anything, channel, "hi")
	api.AssertCalled(t, "SendText", mock.Anything, &tg.InputPeerChat{ChatID: 4945112939}, "hi")

	err := acc.Send(context.Background(), "555", "hi")
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestTelegramAccountSendFailure(t *testing.T) {
	api := new(mockAccountAPI)
	api.On("SendText", mock.Anything, &tg.InputPeerSelf{}, "hi").Return(errors.New("FLOOD_WAIT")).Once()

	acc := newTelegramAccountWithAPI(api, zap.NewNop())
	err := acc.Send(context.Background(), "me", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOOD_WAIT")
	api.AssertNumberOfCalls(t, "SendText", 1)

	assert.Error(t, acc.Send(context.Background(), " ", "hi"))
}

func TestNewTelegramAccount(t *testing.T) {
	_, err := NewTelegramAccount(TelegramConfig{})
	assert.Error(t, err)
	_, err = NewTelegramAccount(TelegramConfig{AppID: 1, AppHash: "hash"})
	assert.Error(t, err)

	acc, err := NewTelegramAccount(TelegramConfig{
		AppID:       1,
		AppHash:     "hash",
		SessionFile: filepath.Join(t.TempDir(), "telegram.session"),
	})
	require.NoError(t, err)

	// never started, so Send waits for ctx
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, acc.Send(ctx, "@desk", "hi"), context.DeadlineExceeded)
	assert.NoError(t, acc.Close())
}
