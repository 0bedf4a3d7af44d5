package mocks

import (
	"context"

	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockServiceInvoker is a mock implementation of protocol.ServiceInvoker interface.
type MockServiceInvoker struct {
	mock.Mock
}

var _ protocol.ServiceInvoker = (*MockServiceInvoker)(nil)

func (m *MockServiceInvoker) Invoke(
	ctx context.Context,
	endpoint, method string,
	headers map[string]string,
	body string,
) (any, error) {
	args := m.Called(ctx, endpoint, method, headers, body)

	return args.Get(0), args.Error(1)
}

// MockDispatcher is a mock implementation of protocol.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

var _ protocol.Dispatcher = (*MockDispatcher)(nil)

func (m *MockDispatcher) Send(ctx context.Context, channel, message string, recipients []string) error {
	args := m.Called(ctx, channel, message, recipients)

	return args.Error(0)
}
