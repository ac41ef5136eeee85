// Package runmock provides a mock implementation of the run.Launcher
// interface for testing.
package runmock

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/feedstockops/fsops/internal/model"
)

// MockLauncher is a mock implementation of run.Launcher.
type MockLauncher struct {
	mock.Mock
}

// Run mocks run.Launcher.Run.
func (m *MockLauncher) Run(ctx context.Context, req model.OperationRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)

	var data json.RawMessage
	if args.Get(0) != nil {
		data = args.Get(0).(json.RawMessage)
	}
	return data, args.Error(1)
}
