package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/storage"
)

type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Publisher drains the outbox into the audit topic. Tasks are claimed in a
// short transaction and sent outside of it, keyed by unit id so one unit's
// history stays ordered within a partition.
type Publisher struct {
	db             db.DB
	repo           storage.OutboxTaskRepository
	producer       Producer
	config         PublisherConfig
	log            *zap.Logger
	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
	timeNow        func() time.Time
}

func NewPublisher(db db.DB, repo storage.OutboxTaskRepository, producer Producer, config PublisherConfig, log *zap.Logger) *Publisher {
	return &Publisher{
		db:             db,
		repo:           repo,
		producer:       producer,
		config:         config,
		log:            log.With(zap.String("component", "outbox_publisher")),
		shutdownSignal: make(chan struct{}),
		timeNow:        time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	p.log.Info("starting outbox publisher", zap.Duration("poll_interval", p.config.PollInterval))
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.log.Error("failed to process outbox batch", zap.Error(err))
			}
		case <-p.shutdownSignal:
			p.log.Info("outbox publisher received shutdown signal")
			return
		case <-ctx.Done():
			p.log.Info("outbox publisher context cancelled")
			return
		}
	}
}

// Shutdown stops Run, waits for the batch in flight and closes the producer.
func (p *Publisher) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.shutdownSignal)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.log.Info("outbox publisher stopped")
		case <-shutdownCtx.Done():
			p.log.Warn("outbox publisher shutdown timed out")
		}

		if err := p.producer.Close(); err != nil {
			p.log.Error("failed to close producer", zap.Error(err))
		}
	})
}

func (p *Publisher) processBatch(ctx context.Context) error {
	tasks, err := p.claim(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}
	p.log.Debug("claimed outbox tasks", zap.Int("count", len(tasks)))

	for _, task := range tasks {
		select {
		case <-p.shutdownSignal:
			return errors.New("publisher shutdown during batch processing")
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.processSingleTask(ctx, task); err != nil {
			p.log.Warn("failed to publish task", zap.Stringer("task_id", task.ID), zap.Error(err))
		}
	}
	return nil
}

// claim locks a batch of tasks and marks them as processing.
func (p *Publisher) claim(ctx context.Context) (tasks []*repository.OutboxTask, err error) {
	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for fetching tasks: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tasks, err = p.repo.GetProcessableTasksTx(ctx, tx, p.config.BatchSize, p.config.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to get processable tasks: %w", err)
	}
	for _, task := range tasks {
		err = p.repo.UpdateTaskStatusTx(ctx, tx, task.ID, repository.TaskStatusProcessing, task.Attempts, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to mark task %s as PROCESSING: %w", task.ID, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claimed tasks: %w", err)
	}
	return tasks, nil
}

func (p *Publisher) processSingleTask(ctx context.Context, task *repository.OutboxTask) error {
	key := []byte(task.Key)
	if len(key) == 0 {
		key = []byte(task.ID.String())
	}

	if err := p.producer.SendMessage(ctx, task.Topic, key, task.Payload); err != nil {
		metrics.OutboxFailedTotal.Inc()
		attempts := task.Attempts + 1
		errMsg := err.Error()
		if attempts >= p.config.MaxAttempts {
			p.log.Error("task reached max attempts, giving up",
				zap.Stringer("task_id", task.ID),
				zap.Int("attempts", attempts),
			)
		}
		if updateErr := p.repo.UpdateTaskStatus(ctx, p.db, task.ID, repository.TaskStatusFailed, attempts, &errMsg, nil); updateErr != nil {
			return fmt.Errorf("failed to update task status after send failure: %w (send error: %w)", updateErr, err)
		}
		return err
	}

	metrics.OutboxPublishedTotal.Inc()
	now := p.timeNow().UTC()
	if err := p.repo.UpdateTaskStatus(ctx, p.db, task.ID, repository.TaskStatusDone, task.Attempts, nil, &now); err != nil {
		return fmt.Errorf("failed to update task status after successful send: %w", err)
	}
	return nil
}
