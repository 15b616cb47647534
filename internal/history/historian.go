// internal/history/historian.go
package history

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrEmpty means Pop timed out without a record.
	ErrEmpty = errors.New("history queue empty")
	// ErrMalformed means a queued payload could not be decoded.
	ErrMalformed = errors.New("malformed game record")
)

// Queue is the source side of the historian pipeline.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (GameRecord, error)
}

// BatchWriter is the sink side of the historian pipeline.
type BatchWriter interface {
	RecordBatch(ctx context.Context, recs []GameRecord) error
}

// Historian drains finished games from a Queue and writes them in batches.
type Historian struct {
	queue      Queue
	sink       BatchWriter
	batchSize  int
	flushDelay time.Duration
	popTimeout time.Duration
	retryDelay time.Duration
	maxPending int
	logger     *logrus.Logger

	batch []GameRecord
}

// NewHistorian builds a worker that flushes every batchSize records or every flushDelay.
func NewHistorian(q Queue, sink BatchWriter, batchSize int, flushDelay time.Duration, logger *logrus.Logger) *Historian {
	if batchSize <= 0 {
		batchSize = 20
	}
	if flushDelay <= 0 {
		flushDelay = 500 * time.Millisecond
	}
	return &Historian{
		queue:      q,
		sink:       sink,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		popTimeout: 3 * time.Second,
		retryDelay: time.Second,
		maxPending: batchSize * 10,
		logger:     logger,
		batch:      make([]GameRecord, 0, batchSize),
	}
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (h *Historian) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.flushDelay)
	defer ticker.Stop()

	h.logger.Info("historian started")
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			h.flush(shutdownCtx)
			cancel()
			h.logger.Info("historian stopped")
			return nil
		case <-ticker.C:
			h.flush(ctx)
			continue
		default:
		}

		rec, err := h.queue.Pop(ctx, h.popTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrEmpty), ctx.Err() != nil:
			continue
		case errors.Is(err, ErrMalformed):
			h.logger.WithError(err).Warn("skipping malformed game record")
			continue
		default:
			h.logger.WithError(err).Error("history queue pop failed")
			select {
			case <-ctx.Done():
			case <-time.After(h.retryDelay):
			}
			continue
		}

		h.batch = append(h.batch, rec)
		if len(h.batch) >= h.batchSize {
			h.flush(ctx)
		}
	}
}

// flush writes the pending batch. On failure records are kept for the next
// attempt, up to maxPending; beyond that the oldest are dropped.
func (h *Historian) flush(ctx context.Context) {
	if len(h.batch) == 0 {
		return
	}
	if err := h.sink.RecordBatch(ctx, h.batch); err != nil {
		h.logger.WithError(err).WithField("pending", len(h.batch)).Error("flush game records")
		if over := len(h.batch) - h.maxPending; over > 0 {
			h.logger.WithField("dropped", over).Warn("history backlog full, dropping oldest records")
			h.batch = append(h.batch[:0], h.batch[over:]...)
		}
		return
	}
	h.logger.WithField("count", len(h.batch)).Info("flushed game records")
	h.batch = h.batch[:0]
}
