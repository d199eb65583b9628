package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

// MockRepository is a testify mock of guests.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetGuest(ctx context.Context, id int64) (*models.GuestRecord, error) {
	args := m.Called(ctx, id)
	var g *models.GuestRecord
	if v := args.Get(0); v != nil {
		g = v.(*models.GuestRecord)
	}
	return g, args.Error(1)
}

func (m *MockRepository) ListGuests(ctx context.Context, f pgledger.GuestFilter) ([]*models.GuestRecord, error) {
	args := m.Called(ctx, f)
	var out []*models.GuestRecord
	if v := args.Get(0); v != nil {
		out = v.([]*models.GuestRecord)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListTransactions(ctx context.Context, guestID int64) ([]*models.SubmissionTransaction, error) {
	args := m.Called(ctx, guestID)
	var out []*models.SubmissionTransaction
	if v := args.Get(0); v != nil {
		out = v.([]*models.SubmissionTransaction)
	}
	return out, args.Error(1)
}

func (m *MockRepository) CountByStatus(ctx context.Context) (map[models.GuestStatus]int, error) {
	args := m.Called(ctx)
	var out map[models.GuestStatus]int
	if v := args.Get(0); v != nil {
		out = v.(map[models.GuestStatus]int)
	}
	return out, args.Error(1)
}
