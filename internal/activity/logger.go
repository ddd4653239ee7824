package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"modelgate/internal/core"
)

const flushBatchSize = 100

// Logger provides async buffered activity logging with batch writes.
// It collects entries in a channel and flushes them to storage either
// when the batch is full or at regular intervals.
type Logger struct {
	store         EntryStore
	buffer        chan *Entry
	done          chan struct{}
	wg            sync.WaitGroup
	flushInterval time.Duration
}

var _ core.ActivityLogger = (*Logger)(nil)

// NewLogger creates an async buffered Logger and starts its flush
// goroutine.
func NewLogger(store EntryStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:         store,
		buffer:        make(chan *Entry, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Log queues an activity event. Non-blocking; if the buffer is full the
// event is dropped and a warning is logged.
func (l *Logger) Log(owner, provider, credentialID string, action core.ActivityAction, description string) {
	entry := newEntry(owner, provider, credentialID, action, description)
	select {
	case l.buffer <- entry:
	default:
		slog.Warn("activity log buffer full, dropping event",
			"provider", provider,
			"action", string(action),
		)
	}
}

// Close stops the logger and flushes remaining entries.
// This should be called during graceful shutdown.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushBatchSize)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= flushBatchSize {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, flushBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, flushBatchSize)
			}

		case <-l.done:
			// Shutdown: drain whatever is still queued, then flush once.
			// The buffer is never closed so writers racing Close cannot
			// panic on a closed channel; their entries are simply dropped
			// once the drain returns.
			for {
				select {
				case entry := <-l.buffer:
					batch = append(batch, entry)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write activity log batch", "count", len(batch), "error", err)
	}
}
