package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// DefaultBufferSize is the writer queue length when none is configured.
const DefaultBufferSize = 256

// ErrBufferFull is returned by Record when the queue is full; the record is dropped.
var ErrBufferFull = errors.New("answer history buffer full")

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("answer history writer closed")

// Creator stores one outcome.
type Creator interface {
	Create(ctx context.Context, rec models.OutcomeRecord) (uuid.UUID, error)
}

// Writer persists outcomes on a background goroutine so callers never wait
// on the database.
type Writer struct {
	repo         Creator
	queue        chan models.OutcomeRecord
	writeTimeout time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter starts a writer. Call Close to flush and stop it.
func NewWriter(repo Creator, bufferSize int, logger *zap.Logger) *Writer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	w := &Writer{
		repo:         repo,
		queue:        make(chan models.OutcomeRecord, bufferSize),
		writeTimeout: 5 * time.Second,
		logger:       logger.Named("history"),
		done:         make(chan struct{}),
	}
	go w.run()
	return w
}

// Record enqueues rec without blocking.
func (w *Writer) Record(_ context.Context, rec models.OutcomeRecord) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- rec:
		return nil
	default:
		return ErrBufferFull
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for rec := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
		if _, err := w.repo.Create(ctx, rec); err != nil {
			w.logger.Warn("Failed to write answer history",
				zap.String("request_id", rec.RequestID),
				zap.String("error", logging.SanitizeError(err)))
		}
		cancel()
	}
}

// Close stops accepting records and waits until queued ones are written
// or ctx ends.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
