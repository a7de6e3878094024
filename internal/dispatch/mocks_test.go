// internal/dispatch/mocks_test.go
package dispatch

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
)

// MockOrderService implements OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Buy(ctx context.Context, req BuyRequest) (Receipt, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Receipt), args.Error(1)
}

func (m *MockOrderService) Sell(ctx context.Context, req SellRequest) (Receipt, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Receipt), args.Error(1)
}

func (m *MockOrderService) Balance(ctx context.Context, wallet string, ref campaign.InstrumentRef) (float64, error) {
	args := m.Called(ctx, wallet, ref)
	return args.Get(0).(float64), args.Error(1)
}

// MockSender implements Sender.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, destination, message string) error {
	args := m.Called(ctx, destination, message)
	return args.Error(0)
}
