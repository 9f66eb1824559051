package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// BatchProcessor feeds items to processor in fixed-size slices. A failing
// batch is logged and the rest still run.
type BatchProcessor[T any] struct {
	batchSize int
	pause     time.Duration
	processor func(ctx context.Context, batch []T) error
}

func NewBatchProcessor[T any](batchSize int, pause time.Duration, processor func(ctx context.Context, batch []T) error) *BatchProcessor[T] {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchProcessor[T]{
		batchSize: batchSize,
		pause:     pause,
		processor: processor,
	}
}

// ProcessInBatches returns one error per failed batch, numbered from 1. It
// stops early only when ctx is done.
func (bp *BatchProcessor[T]) ProcessInBatches(ctx context.Context, items []T) []error {
	var errs []error
	for i := 0; i < len(items); i += bp.batchSize {
		if err := ctx.Err(); err != nil {
			return append(errs, err)
		}
		end := min(i+bp.batchSize, len(items))
		batch := i/bp.batchSize + 1

		if err := bp.processor(ctx, items[i:end]); err != nil {
			logrus.WithFields(logrus.Fields{
				"batch": batch,
				"from":  i,
				"to":    end,
				"error": err,
			}).Error("Batch failed")
			errs = append(errs, fmt.Errorf("Batch %d: %w", batch, err))
		}

		if bp.pause > 0 && end < len(items) {
			select {
			case <-ctx.Done():
			case <-time.After(bp.pause):
			}
		}
	}
	return errs
}
