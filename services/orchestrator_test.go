package services

import (
	"context"
	"errors"
	"testing"

	"hubtask/models"
	"hubtask/repositories"
	"hubtask/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeed(items int) Runner {
	return func(ctx context.Context) (*SyncResult, error) {
		return &SyncResult{Success: true, Items: items}, nil
	}
}

func TestRunAllIsolatesAFailingStep(t *testing.T) {
	ctx := context.Background()
	logs := repositories.NewSyncLogRepository(testutil.NewDB(t))

	embeddingsRan := false
	o := NewOrchestrator(logs,
		succeed(3),
		succeed(4),
		func(ctx context.Context) (*SyncResult, error) { return nil, errors.New("connection reset") },
		func(ctx context.Context) (*SyncResult, error) {
			embeddingsRan = true
			return &SyncResult{Success: true, Items: 7}, nil
		},
	)

	out := o.RunAll(ctx)
	assert.False(t, out.Success)
	assert.Equal(t, "Sync completed with errors", out.Message)
	assert.Equal(t, []string{"Comments sync: connection reset"}, out.Results.Errors)
	require.NotNil(t, out.Results.Bitable)
	require.NotNil(t, out.Results.TaskV2)
	assert.Equal(t, 3, out.Results.Bitable.Items)
	assert.Equal(t, 4, out.Results.TaskV2.Items)
	assert.Nil(t, out.Results.Comments)
	assert.True(t, embeddingsRan)

	recent, err := logs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.SyncTypeAll, recent[0].SyncType)
	assert.Equal(t, models.SyncSuccess, recent[0].Status)
	assert.Equal(t, 14, recent[0].ItemsSynced)
}

func TestRunAllRecoversPanics(t *testing.T) {
	o := NewOrchestrator(nil,
		func(ctx context.Context) (*SyncResult, error) { panic("nil map") },
		succeed(1), succeed(1), nil,
	)
	out := o.RunAll(context.Background())
	assert.False(t, out.Success)
	require.Len(t, out.Results.Errors, 1)
	assert.Contains(t, out.Results.Errors[0], "Bitable sync: panic: nil map")
	assert.Nil(t, out.Results.Embeddings)
}

func TestRunAllSuccessRule(t *testing.T) {
	reported := func(ctx context.Context) (*SyncResult, error) {
		return &SyncResult{Success: false, Error: "login first"}, models.ErrNotAuthenticated
	}

	tests := []struct {
		name     string
		taskV2   Runner
		comments Runner
		want     bool
	}{
		{"everything succeeds", succeed(1), succeed(1), true},
		{"task v2 reports failure", reported, succeed(1), false},
		{"comments report failure without throwing", succeed(1), reported, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewOrchestrator(nil, succeed(1), tt.taskV2, tt.comments, nil).RunAll(context.Background())
			assert.Equal(t, tt.want, out.Success)
			assert.Empty(t, out.Results.Errors)
			if tt.want {
				assert.Equal(t, "Full sync completed", out.Message)
			}
		})
	}
}
