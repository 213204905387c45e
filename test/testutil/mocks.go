package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/TheMichaelB/pinsync/internal/models"
)

// MockCluster mocks transport.Cluster with call expectations.
type MockCluster struct {
	mock.Mock
}

func NewMockCluster() *MockCluster {
	return &MockCluster{}
}

func (m *MockCluster) Pin(ctx context.Context, cid, name string, meta models.Metadata) error {
	args := m.Called(ctx, cid, name, meta)
	return args.Error(0)
}

func (m *MockCluster) GetPin(ctx context.Context, cid string) (models.Record, error) {
	args := m.Called(ctx, cid)
	if rec := args.Get(0); rec != nil {
		return rec.(models.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCluster) ListPins(ctx context.Context) ([]models.Record, error) {
	args := m.Called(ctx)
	if recs := args.Get(0); recs != nil {
		return recs.([]models.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCluster) Unpin(ctx context.Context, cid string) error {
	args := m.Called(ctx, cid)
	return args.Error(0)
}

func (m *MockCluster) Peers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockProvider mocks account.Provider. Account changes are pushed with
// EmitAccounts.
type MockProvider struct {
	mock.Mock

	mu      sync.Mutex
	changes chan []string
	closed  bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{changes: make(chan []string, 8)}
}

func (m *MockProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if accounts := args.Get(0); accounts != nil {
		return accounts.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) Accounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if accounts := args.Get(0); accounts != nil {
		return accounts.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) ChainID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) AccountChanges() <-chan []string {
	return m.changes
}

// EmitAccounts pushes an account-change event.
func (m *MockProvider) EmitAccounts(accounts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.changes <- accounts
	}
}

func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.changes)
	}
	return nil
}

// AssertMockExpectations asserts expectations on every mock.
func AssertMockExpectations(t mock.TestingT, mocks ...interface{}) {
	for _, m := range mocks {
		if mocked, ok := m.(interface{ AssertExpectations(mock.TestingT) bool }); ok {
			mocked.AssertExpectations(t)
		}
	}
}
