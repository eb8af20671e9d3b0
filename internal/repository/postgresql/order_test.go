package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_database "gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db/mocks"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository/postgresql"
)

func TestOrderRepo_CreateTx(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewOrderRepo(mock_database.NewMockDB(ctrl))

		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		order := &repository.Order{
			ID:           "order-123",
			CustomerName: "Tanaka",
			AssignedTo:   "Sato",
			CarriedBy:    "Ito",
			Status:       repository.OrderApproved,
			RequiredDate: now.Add(48 * time.Hour),
			Notes:        "ground floor",
			CreatedBy:    "Sato",
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		mockTx.EXPECT().Exec(
			gomock.Any(),
			gomock.Any(),
			gomock.Eq(order.ID),
			gomock.Eq(order.CustomerName),
			gomock.Eq(order.AssignedTo),
			gomock.Eq(order.CarriedBy),
			gomock.Eq(order.Status),
			gomock.Eq(order.RequiredDate),
			gomock.Eq(order.Notes),
			gomock.Eq(order.CreatedBy),
			gomock.Eq(order.CreatedAt),
			gomock.Eq(order.UpdatedAt),
		).Return(nil, nil)

		assert.NoError(t, repo.CreateTx(ctx, mockTx, order))
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewOrderRepo(mock_database.NewMockDB(ctrl))

		expectedErr := errors.New("database error")
		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, expectedErr)

		err := repo.CreateTx(ctx, mockTx, &repository.Order{ID: "order-123"})
		assert.Equal(t, expectedErr, err)
	})
}

func TestOrderRepo_UpdateTx(t *testing.T) {
	ctx := context.Background()

	t.Run("updated", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewOrderRepo(mock_database.NewMockDB(ctrl))

		order := &repository.Order{ID: "order-1", Status: repository.OrderReady}
		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Eq(repository.OrderReady), gomock.Any(), gomock.Any(), gomock.Eq("order-1")).
			Return(pgconn.CommandTag("UPDATE 1"), nil)

		assert.NoError(t, repo.UpdateTx(ctx, mockTx, order))
	})

	t.Run("missing row", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewOrderRepo(mock_database.NewMockDB(ctrl))

		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(pgconn.CommandTag("UPDATE 0"), nil)

		err := repo.UpdateTx(ctx, mockTx, &repository.Order{ID: "gone"})
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})
}

func TestOrderRepo_LockTx(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		getErr  error
		wantErr error
	}{
		{name: "locked"},
		{name: "missing row", getErr: pgx.ErrNoRows, wantErr: repository.ErrObjectNotFound},
		{name: "lock timeout", getErr: errors.New("canceling statement due to lock timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockTx := mock_database.NewMockTx(ctrl)
			repo := postgresql.NewOrderRepo(mock_database.NewMockDB(ctrl))

			mockTx.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("order-1")).
				DoAndReturn(func(_ context.Context, _ interface{}, query string, _ ...interface{}) error {
					assert.Contains(t, query, "FOR UPDATE")
					return tt.getErr
				})

			err := repo.LockTx(ctx, mockTx, "order-1")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.getErr != nil:
				assert.ErrorIs(t, err, tt.getErr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderRepo_ListUpdatedSince(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewOrderRepo(mockDB)

	since := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	stored := []*repository.Order{{ID: "order-1"}, {ID: "order-2"}}

	mockDB.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq(since)).
		SetArg(1, stored).
		Return(nil)

	orders, err := repo.ListUpdatedSince(ctx, since)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}
