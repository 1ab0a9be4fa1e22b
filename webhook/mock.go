package webhook

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCaller mocks the Caller interface
type MockCaller struct {
	mock.Mock
}

// Call mocks the Call method
func (m *MockCaller) Call(ctx context.Context, req Request) Result {
	args := m.Called(ctx, req)
	return args.Get(0).(Result)
}
