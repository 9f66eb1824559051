package services

import (
	"context"
	"fmt"
	"time"

	"hubtask/repositories"

	"github.com/sirupsen/logrus"
)

// Reconciler writes transformed tasks into the store.
type Reconciler struct {
	tasks repositories.TaskRepository
	now   func() time.Time
}

func NewReconciler(tasks repositories.TaskRepository) *Reconciler {
	return &Reconciler{tasks: tasks, now: time.Now}
}

// Reconcile upserts every source and, for Task-v2 items, replaces the member
// rows. A failing item is logged and skipped. It returns the number of tasks
// written and the per-item errors.
func (r *Reconciler) Reconcile(ctx context.Context, sources []TaskSource) (int, []error) {
	now := r.now()
	written := 0
	var errs []error

	for _, src := range sources {
		task := src.Canonical(now)

		var err error
		switch s := src.(type) {
		case TaskV2Source:
			err = r.tasks.UpsertWithMembers(ctx, &task, s.Members())
		default:
			err = r.tasks.Upsert(ctx, &task)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"task_id": task.ID,
				"source":  task.APISource,
				"error":   err,
			}).Error("Failed to reconcile task")
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		written++
	}
	return written, errs
}
