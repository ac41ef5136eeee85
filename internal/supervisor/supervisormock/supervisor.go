// Package supervisormock provides a mock implementation of the
// supervisor.Supervisor interface for testing.
package supervisormock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/feedstockops/fsops/internal/supervisor"
)

// MockSupervisor is a mock implementation of supervisor.Supervisor.
type MockSupervisor struct {
	mock.Mock
}

// Run mocks supervisor.Supervisor.Run.
func (m *MockSupervisor) Run(ctx context.Context, spec supervisor.RunSpec) (*supervisor.RunResult, error) {
	args := m.Called(ctx, spec)

	var result *supervisor.RunResult
	if args.Get(0) != nil {
		result = args.Get(0).(*supervisor.RunResult)
	}
	return result, args.Error(1)
}
