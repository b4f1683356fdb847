package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docproc/internal/domain"
)

// MockResultRepository is a mock implementation of port.ResultRepository.
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) Create(ctx context.Context, res *domain.ProcessingResult) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockResultRepository) SaveResult(ctx context.Context, res *domain.ProcessingResult) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingResult), args.Error(1)
}

func (m *MockResultRepository) GetByContentHash(ctx context.Context, hash string) (*domain.ProcessingResult, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingResult), args.Error(1)
}

func (m *MockResultRepository) List(ctx context.Context, offset, limit int) ([]domain.ProcessingResult, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ProcessingResult), args.Int(1), args.Error(2)
}

func (m *MockResultRepository) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.ProcessingResult, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ProcessingResult), args.Int(1), args.Error(2)
}

func (m *MockResultRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

func (m *MockResultRepository) ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingResult, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProcessingResult), args.Error(1)
}

func (m *MockResultRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
