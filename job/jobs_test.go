package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessInBatches(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	var sizes []int
	bp := NewBatchProcessor(10, 0, func(ctx context.Context, batch []int) error {
		sizes = append(sizes, len(batch))
		if batch[0] == 10 {
			return errors.New("rate limited")
		}
		return nil
	})

	errs := bp.ProcessInBatches(context.Background(), items)
	assert.Equal(t, []int{10, 10, 5}, sizes)
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "Batch 2: rate limited")
}

func TestProcessInBatchesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	bp := NewBatchProcessor(1, 0, func(ctx context.Context, batch []string) error {
		calls++
		cancel()
		return nil
	})

	errs := bp.ProcessInBatches(ctx, []string{"a", "b", "c"})
	assert.Equal(t, 1, calls)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestNewBatchProcessorClampsSize(t *testing.T) {
	var batches int
	bp := NewBatchProcessor(0, 0, func(ctx context.Context, batch []int) error {
		batches++
		return nil
	})
	assert.Empty(t, bp.ProcessInBatches(context.Background(), []int{1, 2, 3}))
	assert.Equal(t, 3, batches)
}

func TestStartSyncJobDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		StartSyncJob(context.Background(), 0, func(ctx context.Context) bool {
			t.Error("run must not be called")
			return true
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartSyncJob did not return for a zero interval")
	}
}

func TestStartSyncJobRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	done := make(chan struct{})
	go func() {
		StartSyncJob(ctx, 5*time.Millisecond, func(ctx context.Context) bool {
			return runs.Add(1)%2 == 0
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartSyncJob did not stop after cancel")
	}
}
