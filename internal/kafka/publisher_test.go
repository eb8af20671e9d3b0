package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	mock_db "gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db/mocks"
	mock_kafka "gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/kafka/mocks"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	mock_storage "gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage/mocks"
)

type publisherMocks struct {
	db       *mock_db.MockDB
	tx       *mock_db.MockTx
	repo     *mock_storage.MockOutboxTaskRepository
	producer *mock_kafka.MockProducer
}

func newTestPublisher(t *testing.T) (*Publisher, publisherMocks) {
	ctrl := gomock.NewController(t)
	m := publisherMocks{
		db:       mock_db.NewMockDB(ctrl),
		tx:       mock_db.NewMockTx(ctrl),
		repo:     mock_storage.NewMockOutboxTaskRepository(ctrl),
		producer: mock_kafka.NewMockProducer(ctrl),
	}
	p := NewPublisher(m.db, m.repo, m.producer, PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    10,
		MaxAttempts:  3,
	}, zap.NewNop())
	return p, m
}

func TestPublisher_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	t.Run("publishes claimed tasks keyed by unit", func(t *testing.T) {
		p, m := newTestPublisher(t)
		p.timeNow = func() time.Time { return now }

		task := &repository.OutboxTask{
			ID:      uuid.New(),
			Topic:   "item_history",
			Key:     "WC-007",
			Payload: []byte(`{"unit_id":"WC-007"}`),
		}

		gomock.InOrder(
			m.db.EXPECT().BeginTx(ctx).Return(m.tx, nil),
			m.repo.EXPECT().GetProcessableTasksTx(ctx, m.tx, 10, 3).Return([]*repository.OutboxTask{task}, nil),
			m.repo.EXPECT().UpdateTaskStatusTx(ctx, m.tx, task.ID, repository.TaskStatusProcessing, 0, nil, nil).Return(nil),
			m.tx.EXPECT().Commit(ctx).Return(nil),
			m.producer.EXPECT().SendMessage(ctx, "item_history", []byte("WC-007"), []byte(task.Payload)).Return(nil),
			m.repo.EXPECT().UpdateTaskStatus(ctx, m.db, task.ID, repository.TaskStatusDone, 0, nil, &now).Return(nil),
		)

		require.NoError(t, p.processBatch(ctx))
	})

	t.Run("send failure counts an attempt", func(t *testing.T) {
		p, m := newTestPublisher(t)

		task := &repository.OutboxTask{ID: uuid.New(), Topic: "item_history", Attempts: 1}
		sendErr := errors.New("broker unavailable")

		gomock.InOrder(
			m.db.EXPECT().BeginTx(ctx).Return(m.tx, nil),
			m.repo.EXPECT().GetProcessableTasksTx(ctx, m.tx, 10, 3).Return([]*repository.OutboxTask{task}, nil),
			m.repo.EXPECT().UpdateTaskStatusTx(ctx, m.tx, task.ID, repository.TaskStatusProcessing, 1, nil, nil).Return(nil),
			m.tx.EXPECT().Commit(ctx).Return(nil),
			m.producer.EXPECT().SendMessage(ctx, "item_history", []byte(task.ID.String()), gomock.Any()).Return(sendErr),
			m.repo.EXPECT().UpdateTaskStatus(ctx, m.db, task.ID, repository.TaskStatusFailed, 2, gomock.Any(), nil).
				DoAndReturn(func(_ context.Context, _ any, _ uuid.UUID, _ repository.TaskStatus, _ int, lastError *string, _ *time.Time) error {
					require.NotNil(t, lastError)
					assert.Equal(t, "broker unavailable", *lastError)
					return nil
				}),
		)

		require.NoError(t, p.processBatch(ctx))
	})

	t.Run("empty batch", func(t *testing.T) {
		p, m := newTestPublisher(t)

		gomock.InOrder(
			m.db.EXPECT().BeginTx(ctx).Return(m.tx, nil),
			m.repo.EXPECT().GetProcessableTasksTx(ctx, m.tx, 10, 3).Return(nil, nil),
			m.tx.EXPECT().Commit(ctx).Return(nil),
		)

		require.NoError(t, p.processBatch(ctx))
	})

	t.Run("claim failure rolls back", func(t *testing.T) {
		p, m := newTestPublisher(t)
		dbErr := errors.New("deadlock detected")

		gomock.InOrder(
			m.db.EXPECT().BeginTx(ctx).Return(m.tx, nil),
			m.repo.EXPECT().GetProcessableTasksTx(ctx, m.tx, 10, 3).Return(nil, dbErr),
			m.tx.EXPECT().Rollback(ctx).Return(nil),
		)

		err := p.processBatch(ctx)
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestPublisher_Shutdown(t *testing.T) {
	p, m := newTestPublisher(t)
	m.producer.EXPECT().Close().Return(nil).Times(1)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	p.Shutdown()
	p.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}
