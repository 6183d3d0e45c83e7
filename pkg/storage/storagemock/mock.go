package storagemock

import (
	"context"

	"github.com/pvrelay/pvrelay/pkg/storage"
	"github.com/pvrelay/pvrelay/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) LoadState(ctx context.Context) (*types.ReconciliationState, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		s, _ := args.Get(0).(*types.ReconciliationState)
		return s, args.Error(1)
	}
	return nil, nil
}

func (m *MockStore) SaveState(ctx context.Context, state types.ReconciliationState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
