// Package refetch keeps subscribed cache entries fresh after invalidation.
package refetch

import (
	"context"
	"errors"
	"time"

	"feedsync/internal/cache"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Source delivers invalidated keys and refetches them.
// *cache.Store satisfies it.
type Source interface {
	Invalidated() <-chan cache.Key
	Refetch(ctx context.Context, key cache.Key) error
}

type Worker struct {
	source  Source
	logger  *zap.Logger
	timeout time.Duration
}

// NewWorker creates a worker draining source.
func NewWorker(source Source, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		source:  source,
		logger:  logger,
		timeout: defaultTimeout,
	}
}

// Start runs the worker loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("refetch worker started")

	keys := w.source.Invalidated()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("refetch worker shutting down")
			return
		case key, ok := <-keys:
			if !ok {
				return
			}
			w.processKey(ctx, key)
		}
	}
}

func (w *Worker) processKey(ctx context.Context, key cache.Key) {
	logger := w.logger.With(zap.Stringer("key", key))

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := w.source.Refetch(ctx, key)
	switch {
	case errors.Is(err, cache.ErrNoFetcher):
		// Restored entries refetch on their next read.
		logger.Debug("refetch skipped", zap.Error(err))
	case err != nil:
		logger.Error("refetch failed", zap.Error(err))
	default:
		logger.Debug("refetch complete", zap.Duration("took", time.Since(start)))
	}
}
