package services

import (
	"context"
	"fmt"
	"time"

	"hubtask/models"
	"hubtask/repositories"

	"github.com/sirupsen/logrus"
)

// Runner is one sub-sync the orchestrator drives. A nil result together with
// an error means the step never produced a report.
type Runner func(ctx context.Context) (*SyncResult, error)

type SyncAllResults struct {
	Bitable    *SyncResult `json:"bitable"`
	TaskV2     *SyncResult `json:"taskv2"`
	Comments   *SyncResult `json:"comments"`
	Embeddings *SyncResult `json:"embeddings"`
	Errors     []string    `json:"errors"`
}

type SyncAllResult struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Results   SyncAllResults `json:"results"`
	Timestamp string         `json:"timestamp"`
}

// Orchestrator runs every sub-sync in order. One step failing never stops
// the next one.
type Orchestrator struct {
	Bitable    Runner
	TaskV2     Runner
	Comments   Runner
	Embeddings Runner // nil when no vector index is configured

	logs repositories.SyncLogRepository
	now  func() time.Time
}

func NewOrchestrator(logs repositories.SyncLogRepository, bitable, taskV2, comments, embeddings Runner) *Orchestrator {
	return &Orchestrator{
		Bitable:    bitable,
		TaskV2:     taskV2,
		Comments:   comments,
		Embeddings: embeddings,
		logs:       logs,
		now:        time.Now,
	}
}

// RunAll records its own SyncLog of type "all" around the sub-syncs.
func (o *Orchestrator) RunAll(ctx context.Context) *SyncAllResult {
	var entry *models.SyncLog
	if o.logs != nil {
		var err error
		if entry, err = o.logs.Start(ctx, models.SyncTypeAll); err != nil {
			logrus.WithError(err).Error("Failed to start sync log")
		}
	}

	results := SyncAllResults{Errors: []string{}}
	step := func(label string, run Runner) *SyncResult {
		if run == nil {
			return nil
		}
		result, err := invoke(ctx, run)
		if result == nil && err != nil {
			results.Errors = append(results.Errors, fmt.Sprintf("%s: %v", label, err))
			logrus.WithFields(logrus.Fields{"step": label, "error": err}).Error("Sync step failed")
		}
		return result
	}

	results.Bitable = step("Bitable sync", o.Bitable)
	results.TaskV2 = step("Task v2 sync", o.TaskV2)
	results.Comments = step("Comments sync", o.Comments)
	results.Embeddings = step("Embeddings sync", o.Embeddings)

	allSuccess := len(results.Errors) == 0 &&
		!reportedFailure(results.Bitable) &&
		!reportedFailure(results.TaskV2)

	out := &SyncAllResult{
		Success:   allSuccess,
		Message:   "Full sync completed",
		Results:   results,
		Timestamp: o.now().UTC().Format(time.RFC3339Nano),
	}
	if !allSuccess {
		out.Message = "Sync completed with errors"
	}

	// Sub-step failures live in their own logs; this run only fails when it
	// was cancelled.
	if entry != nil {
		items := 0
		for _, r := range []*SyncResult{results.Bitable, results.TaskV2, results.Comments, results.Embeddings} {
			if r != nil {
				items += r.Items
			}
		}
		status, errMsg := models.SyncSuccess, ""
		if err := ctx.Err(); err != nil {
			status, errMsg = models.SyncFailed, err.Error()
		}
		if err := o.logs.Finish(context.WithoutCancel(ctx), entry.ID, status, items, errMsg); err != nil {
			logrus.WithError(err).Error("Failed to finalize sync log")
		}
	}
	return out
}

// invoke runs one step and turns a panic into an error.
func invoke(ctx context.Context, run Runner) (result *SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return run(ctx)
}

func reportedFailure(r *SyncResult) bool {
	return r != nil && !r.Success
}
