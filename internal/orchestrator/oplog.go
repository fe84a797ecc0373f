package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/repodock/repodock/internal/api"
)

const oplogAppendTimeout = 5 * time.Second

// Sink is the append-only destination for operation outcomes.
type Sink interface {
	AppendOperation(ctx context.Context, outcome *api.OperationOutcome) error
}

// LogWriter decouples orchestration from the operation log sink: appends go
// through a bounded queue consumed by one writer goroutine, so a slow or
// failing sink never blocks a sync. Append failures are logged, not
// propagated.
type LogWriter struct {
	sink   Sink
	logger *slog.Logger
	done   chan struct{}

	// mu guards closed and the send side of queue, so Close never closes
	// the channel between an Enqueue's closed-check and its send.
	mu     sync.Mutex
	closed bool
	queue  chan *api.OperationOutcome
}

// NewLogWriter starts the writer goroutine.
func NewLogWriter(sink Sink, logger *slog.Logger, queueSize int) *LogWriter {
	if queueSize <= 0 {
		queueSize = 64
	}
	w := &LogWriter{
		sink:   sink,
		logger: logger,
		queue:  make(chan *api.OperationOutcome, queueSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue hands an outcome to the writer. Never blocks: under pathological
// sink backlog the entry is dropped with a logged warning.
func (w *LogWriter) Enqueue(outcome *api.OperationOutcome) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("Operation log writer closed, dropping entry", "repo", outcome.RepositoryName)
		return
	}
	select {
	case w.queue <- outcome:
		w.mu.Unlock()
	default:
		w.mu.Unlock()
		w.logger.Warn("Operation log queue full, dropping entry", "repo", outcome.RepositoryName)
	}
}

// Close drains the queue and stops the writer. Safe to call while
// producers are still racing in; their entries are dropped with a warning.
func (w *LogWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}

func (w *LogWriter) run() {
	defer close(w.done)
	for outcome := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), oplogAppendTimeout)
		if err := w.sink.AppendOperation(ctx, outcome); err != nil {
			w.logger.Warn("Failed to append operation log entry", "repo", outcome.RepositoryName, "error", err)
		}
		cancel()
	}
}
