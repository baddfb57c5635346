package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

// MockRepository is a mock implementation of audit.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Append(ctx context.Context, entry *audit.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) Query(ctx context.Context, filter audit.QueryFilter) ([]*audit.AuditEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.AuditEntry), args.Error(1)
}
