// Package changefeed turns the row notifications the database triggers emit
// into per-table events.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/metrics"
)

const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// Event is one changed row. Row is the row as JSON, keyed by column name.
type Event struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Row   json.RawMessage `json:"row"`
}

type Handler func(ctx context.Context, ev Event)

// Conn is a connection that has issued LISTEN.
type Conn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type Dialer func(ctx context.Context) (Conn, error)

// PoolDialer takes a connection out of the pool for good and listens on
// channel with it.
func PoolDialer(pool *pgxpool.Pool, channel string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		pc, err := pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire connection: %w", err)
		}
		conn := pc.Hijack()
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
		return conn, nil
	}
}

// Feed owns one listening connection and fans its events out to
// subscribers. It reconnects after connection loss. Every successful LISTEN,
// the first one included, is reported so callers can catch up on writes made
// while nobody was listening.
type Feed struct {
	dial           Dialer
	reconnectDelay time.Duration
	log            *zap.Logger

	mu          sync.RWMutex
	handlers    map[string]map[int]Handler
	nextID      int
	onListen    []func(ctx context.Context)
}

func New(dial Dialer, reconnectDelay time.Duration, log *zap.Logger) *Feed {
	return &Feed{
		dial:           dial,
		reconnectDelay: reconnectDelay,
		log:            log.With(zap.String("component", "changefeed")),
		handlers:       make(map[string]map[int]Handler),
	}
}

// Subscribe registers h for events on table. The returned func removes it.
func (f *Feed) Subscribe(table string, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	if f.handlers[table] == nil {
		f.handlers[table] = make(map[int]Handler)
	}
	f.handlers[table][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.handlers[table], id)
		})
	}
}

// OnListen registers fn to run each time a connection starts listening.
func (f *Feed) OnListen(fn func(ctx context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onListen = append(f.onListen, fn)
}

// Run listens until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	connected := false
	for {
		conn, err := f.dial(ctx)
		if err == nil {
			if connected {
				f.log.Info("change stream reconnected")
			} else {
				f.log.Info("change stream listening")
			}
			connected = true
			f.listening(ctx)
			err = f.consume(ctx, conn)
			_ = conn.Close(context.Background())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("change stream interrupted", zap.Error(err), zap.Duration("retry_in", f.reconnectDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *Feed) consume(ctx context.Context, conn Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := f.dispatch(ctx, n.Payload); err != nil {
			f.log.Warn("dropping malformed notification", zap.Error(err))
		}
	}
}

func (f *Feed) dispatch(ctx context.Context, payload string) error {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fmt.Errorf("failed to decode notification: %w", err)
	}
	if ev.Table == "" {
		return errors.New("notification without table")
	}
	metrics.ChangeEventsTotal.WithLabelValues(ev.Table, ev.Type).Inc()
	f.log.Debug("change event", zap.String("table", ev.Table), zap.String("type", ev.Type))

	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.handlers[ev.Table]))
	for _, h := range f.handlers[ev.Table] {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
	return nil
}

func (f *Feed) listening(ctx context.Context) {
	f.mu.RLock()
	fns := append([]func(context.Context){}, f.onListen...)
	f.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx)
	}
}
