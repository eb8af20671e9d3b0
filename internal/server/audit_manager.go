package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuditManager batches request audit entries and writes them to the log
// from a small worker pool, off the request path.
type AuditManager struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	log         *zap.Logger

	inputChan  chan AuditLogEntry
	batchChan  chan []AuditLogEntry
	shutdownCh chan struct{}
	once       sync.Once

	wg sync.WaitGroup
}

func NewAuditManager(workerCount, batchSize int, timeout time.Duration, log *zap.Logger) *AuditManager {
	return &AuditManager{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		log:         log.With(zap.String("component", "http_audit")),
		inputChan:   make(chan AuditLogEntry, workerCount*batchSize*2),
		batchChan:   make(chan []AuditLogEntry, workerCount*2),
		shutdownCh:  make(chan struct{}),
	}
}

// Shutdown flushes queued entries and waits for the workers.
func (m *AuditManager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		m.log.Debug("initiating audit manager shutdown")
		close(m.shutdownCh)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.log.Debug("audit manager shutdown completed")
		case <-ctx.Done():
			m.log.Warn("audit manager shutdown interrupted")
		}
	})
}

func (m *AuditManager) monitorShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		m.Shutdown(context.Background())
	case <-m.shutdownCh:
	}
}

func (m *AuditManager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.runAggregator(ctx)

	for i := 0; i < m.workerCount; i++ {
		m.wg.Add(1)
		go m.runWorker(ctx, i)
	}

	go m.monitorShutdown(ctx)
}

// LogEntry queues entry. Once the manager is shut down entries are written
// directly.
func (m *AuditManager) LogEntry(ctx context.Context, entry AuditLogEntry) {
	select {
	case <-m.shutdownCh:
		m.writeBatch(-1, []AuditLogEntry{entry})
		return
	default:
	}

	select {
	case m.inputChan <- entry:
	case <-m.shutdownCh:
		m.writeBatch(-1, []AuditLogEntry{entry})
	case <-ctx.Done():
		m.writeBatch(-1, []AuditLogEntry{entry})
	}
}

func (m *AuditManager) runAggregator(ctx context.Context) {
	defer m.wg.Done()

	var (
		batch    []AuditLogEntry
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		if len(batch) > 0 {
			m.dispatchBatch(batch)
		}
		close(m.batchChan)
	}()

	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
			if len(batch) >= m.batchSize {
				m.dispatchBatch(batch)
				batch = nil
				timeoutC = nil
			} else if len(batch) == 1 {
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(m.timeout)
				timeoutC = timer.C
			}

		case <-timeoutC:
			m.dispatchBatch(batch)
			batch = nil
			timeoutC = nil

		case <-ctx.Done():
			batch = m.drain(batch)
			return

		case <-m.shutdownCh:
			batch = m.drain(batch)
			return
		}
	}
}

// drain appends whatever is still queued in the input channel.
func (m *AuditManager) drain(batch []AuditLogEntry) []AuditLogEntry {
	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
		default:
			return batch
		}
	}
}

func (m *AuditManager) dispatchBatch(batch []AuditLogEntry) {
	batchCopy := make([]AuditLogEntry, len(batch))
	copy(batchCopy, batch)

	select {
	case m.batchChan <- batchCopy:
	default:
		m.writeBatch(-1, batchCopy)
	}
}

func (m *AuditManager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()

	for {
		select {
		case batch, ok := <-m.batchChan:
			if !ok {
				return
			}
			m.writeBatch(id, batch)
		case <-ctx.Done():
			for batch := range m.batchChan {
				m.writeBatch(id, batch)
			}
			return
		}
	}
}

// writeBatch logs a batch. workerID is -1 when the caller writes directly.
func (m *AuditManager) writeBatch(workerID int, batch []AuditLogEntry) {
	for _, entry := range batch {
		m.log.Info("http request", append(entry.fields(), zap.Int("worker", workerID))...)
	}
}
