package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hubtask/config"
	"hubtask/lark"
	"hubtask/metrics"
	"hubtask/models"
	"hubtask/repositories"
	"hubtask/storage"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// maxReportedErrors caps the per-item error list returned to callers.
const maxReportedErrors = 10

var guidPattern = regexp.MustCompile(`(?i)guid=([a-f0-9-]+)`)

// UserTokenProvider yields a valid user access token. Implemented by
// auth.TokenManager.
type UserTokenProvider interface {
	ValidAccessToken(ctx context.Context) (string, error)
}

// TenantTokenProvider yields application-scoped bearers. Implemented by
// auth.LarkIdentity.
type TenantTokenProvider interface {
	TenantTokenSource(ctx context.Context) oauth2.TokenSource
}

// SyncResult is the outcome of one sync run.
type SyncResult struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
	SyncID     string   `json:"syncId,omitempty"`
	Items      int      `json:"itemsSynced"`
	TableCount int      `json:"tableCount,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// recorder wraps a sync body with its SyncLog lifecycle, metrics and the
// optional snapshot archive.
type recorder struct {
	logs    repositories.SyncLogRepository
	archive storage.Archive
}

func (r *recorder) run(ctx context.Context, syncType models.SyncType, body func(ctx context.Context, syncID string) (*SyncResult, error)) (*SyncResult, error) {
	if r.logs == nil {
		return &SyncResult{Error: models.ErrStoreUnavailable.Error()}, models.ErrStoreUnavailable
	}

	entry, err := r.logs.Start(ctx, syncType)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync log: %w", err)
	}
	logger := logrus.WithFields(logrus.Fields{
		"sync_type": syncType,
		"sync_id":   entry.ID,
	})
	logger.Info("Sync started")

	result, err := body(ctx, entry.ID)
	if err != nil {
		r.finish(ctx, logger, entry.ID, syncType, models.SyncFailed, 0, err.Error())
		return &SyncResult{Success: false, SyncID: entry.ID, Error: err.Error()}, err
	}

	result.Success = true
	result.SyncID = entry.ID
	if len(result.Errors) > maxReportedErrors {
		result.Errors = result.Errors[:maxReportedErrors]
	}
	r.finish(ctx, logger, entry.ID, syncType, models.SyncSuccess, result.Items, "")
	return result, nil
}

func (r *recorder) finish(ctx context.Context, logger *logrus.Entry, id string, syncType models.SyncType, status models.SyncStatus, items int, errMsg string) {
	// The run's own context may already be cancelled; the log must still be
	// finalized.
	if err := r.logs.Finish(context.WithoutCancel(ctx), id, status, items, errMsg); err != nil {
		logger.WithError(err).Error("Failed to finalize sync log")
	}
	metrics.SyncRuns.WithLabelValues(string(syncType), string(status)).Inc()
	metrics.SyncedItems.WithLabelValues(string(syncType)).Add(float64(items))

	entry := logger.WithFields(logrus.Fields{"status": status, "items": items})
	if status == models.SyncFailed {
		entry.WithField("error", errMsg).Error("Sync failed")
		return
	}
	entry.Info("Sync finished")
}

// store writes a raw upstream snapshot. Failures are logged only.
func (r *recorder) store(ctx context.Context, syncType models.SyncType, syncID string, snapshot interface{}) {
	if r.archive == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err == nil {
		err = r.archive.Put(ctx, fmt.Sprintf("%s/%s.json", syncType, syncID), data)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"sync_type": syncType,
			"sync_id":   syncID,
			"error":     err,
		}).Warn("Failed to archive sync snapshot")
	}
}

// SyncService pulls both upstream task sources and task comments into the
// local store.
type SyncService struct {
	cfg        *config.Config
	lark       *lark.Client
	tenant     TenantTokenProvider
	user       UserTokenProvider
	tasks      repositories.TaskRepository
	comments   repositories.CommentRepository
	reconciler *Reconciler
	recorder   *recorder
	now        func() time.Time
}

func NewSyncService(
	cfg *config.Config,
	larkClient *lark.Client,
	tenant TenantTokenProvider,
	user UserTokenProvider,
	tasks repositories.TaskRepository,
	comments repositories.CommentRepository,
	logs repositories.SyncLogRepository,
	archive storage.Archive,
) *SyncService {
	var reconciler *Reconciler
	if tasks != nil {
		reconciler = NewReconciler(tasks)
	}
	return &SyncService{
		cfg:        cfg,
		lark:       larkClient,
		tenant:     tenant,
		user:       user,
		tasks:      tasks,
		comments:   comments,
		reconciler: reconciler,
		recorder:   &recorder{logs: logs, archive: archive},
		now:        time.Now,
	}
}

func (s *SyncService) concurrency() int {
	if s.cfg.FetchConcurrency > 0 {
		return s.cfg.FetchConcurrency
	}
	return 8
}

type tableRecords struct {
	Table   lark.Table    `json:"table"`
	Records []lark.Record `json:"records"`
	err     error
}

// SyncBitable mirrors every configured Bitable table with the tenant token.
func (s *SyncService) SyncBitable(ctx context.Context) (*SyncResult, error) {
	return s.recorder.run(ctx, models.SyncTypeBitable, func(ctx context.Context, syncID string) (*SyncResult, error) {
		if s.cfg.BitableBaseID == "" {
			return nil, errors.New("BITABLE_BASE_ID is not configured")
		}
		client := s.lark.WithTokenSource(s.tenant.TenantTokenSource(ctx))

		tables, err := s.bitableTables(ctx, client)
		if err != nil {
			return nil, err
		}

		fetched := fetchTables(ctx, client, s.cfg.BitableBaseID, tables, s.concurrency())

		var (
			sources []TaskSource
			errs    []string
			failed  int
		)
		for _, tr := range fetched {
			if tr.err != nil {
				failed++
				errs = append(errs, fmt.Sprintf("Table %s: %v", tr.Table.Name, tr.err))
			}
			for _, rec := range tr.Records {
				sources = append(sources, BitableSource{
					Record:   rec,
					Table:    tr.Table,
					BaseID:   s.cfg.BitableBaseID,
					LinkBase: s.cfg.BitableLink,
				})
			}
		}
		if len(tables) > 0 && failed == len(tables) && len(sources) == 0 {
			return nil, fmt.Errorf("every table failed to load: %s", strings.Join(errs, "; "))
		}

		written, itemErrs := s.reconciler.Reconcile(ctx, sources)
		for _, e := range itemErrs {
			errs = append(errs, e.Error())
		}
		s.recorder.store(ctx, models.SyncTypeBitable, syncID, fetched)

		return &SyncResult{
			Message:    fmt.Sprintf("Synced %d tasks from Lark Base", written),
			Items:      written,
			TableCount: len(tables),
			Errors:     errs,
		}, nil
	})
}

// bitableTables resolves the configured table ids to their metadata, or
// lists every table of the Base when none are configured.
func (s *SyncService) bitableTables(ctx context.Context, client *lark.Client) ([]lark.Table, error) {
	if len(s.cfg.BitableTableIDs) == 0 {
		tables, err := client.ListTables(ctx, s.cfg.BitableBaseID)
		if err != nil {
			return nil, fmt.Errorf("tables error: %w", err)
		}
		return tables, nil
	}
	return describeTables(ctx, client, s.cfg.BitableBaseID, s.cfg.BitableTableIDs, s.concurrency()), nil
}

// describeTables fetches table names concurrently. A table whose metadata
// cannot be read keeps its id and is named "Unknown Table".
func describeTables(ctx context.Context, client *lark.Client, baseID string, ids []string, limit int) []lark.Table {
	tables := make([]lark.Table, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			table, err := client.GetTable(gctx, baseID, id)
			if err != nil {
				logrus.WithFields(logrus.Fields{"table": id, "error": err}).Warn("Failed to read table metadata")
				tables[i] = lark.Table{TableID: id, Name: "Unknown Table"}
				return nil
			}
			if table.Name == "" {
				table.Name = "Unnamed Table"
			}
			tables[i] = *table
			return nil
		})
	}
	g.Wait()
	return tables
}

func fetchTables(ctx context.Context, client *lark.Client, baseID string, tables []lark.Table, limit int) []tableRecords {
	out := make([]tableRecords, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, table := range tables {
		g.Go(func() error {
			records, err := client.ListRecords(gctx, baseID, table.TableID)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"table":   table.TableID,
					"fetched": len(records),
					"error":   err,
				}).Warn("Table fetch stopped early")
			}
			out[i] = tableRecords{Table: table, Records: records, err: err}
			return nil
		})
	}
	g.Wait()
	return out
}

// fetchMyTasks lists the user's open and completed tasks concurrently and
// de-duplicates them by guid. Partial results from a failing pass are kept.
func fetchMyTasks(ctx context.Context, client *lark.Client) ([]lark.Task, []error) {
	var passes [2][]lark.Task
	var errs [2]error

	g, gctx := errgroup.WithContext(ctx)
	for i, completed := range []bool{false, true} {
		g.Go(func() error {
			passes[i], errs[i] = client.ListMyTasks(gctx, completed)
			return nil
		})
	}
	g.Wait()

	var failures []error
	for i, err := range errs {
		if err != nil {
			logrus.WithFields(logrus.Fields{"completed_pass": i == 1, "error": err}).Warn("Task list pass stopped early")
			failures = append(failures, err)
		}
	}
	return dedupeByGUID(append(passes[0], passes[1]...)), failures
}

// SyncTaskV2 mirrors the signed-in user's tasks, including members.
func (s *SyncService) SyncTaskV2(ctx context.Context) (*SyncResult, error) {
	return s.recorder.run(ctx, models.SyncTypeTaskV2, func(ctx context.Context, syncID string) (*SyncResult, error) {
		token, err := s.user.ValidAccessToken(ctx)
		if err != nil {
			return nil, err
		}
		client := s.lark.WithAccessToken(token)

		tasks, failures := fetchMyTasks(ctx, client)
		if len(failures) == 2 && len(tasks) == 0 {
			return nil, fmt.Errorf("failed to list tasks: %w", errors.Join(failures...))
		}

		sources := make([]TaskSource, 0, len(tasks))
		for _, t := range tasks {
			src := TaskV2Source{Task: t, AppLink: s.cfg.TaskAppLink}
			if len(t.Tasklists) > 0 {
				src.TasklistName = s.cfg.TasklistName(t.Tasklists[0].TasklistGUID)
			}
			sources = append(sources, src)
		}

		written, itemErrs := s.reconciler.Reconcile(ctx, sources)
		var errs []string
		for _, e := range append(failures, itemErrs...) {
			errs = append(errs, e.Error())
		}
		s.recorder.store(ctx, models.SyncTypeTaskV2, syncID, tasks)

		return &SyncResult{
			Message: fmt.Sprintf("Synced %d tasks from Lark Task API v2", written),
			Items:   written,
			Errors:  errs,
		}, nil
	})
}

// commentTarget is a stored task whose comments can be fetched.
type commentTarget struct {
	TaskID string `json:"taskId"`
	GUID   string `json:"guid"`
}

// commentTargets resolves a guid for every stored task, extracting it from
// the deep link when the row has none, and keeps one task per guid.
func commentTargets(refs []repositories.TaskRef) []commentTarget {
	seen := make(map[string]bool)
	var targets []commentTarget
	for _, ref := range refs {
		guid := ""
		if ref.LarkGUID != nil && *ref.LarkGUID != "" {
			guid = *ref.LarkGUID
		} else if ref.Link != nil {
			if m := guidPattern.FindStringSubmatch(*ref.Link); m != nil {
				guid = m[1]
			}
		}
		if guid == "" || seen[guid] {
			continue
		}
		seen[guid] = true
		targets = append(targets, commentTarget{TaskID: ref.ID, GUID: guid})
	}
	return targets
}

type taskComments struct {
	Target   commentTarget  `json:"target"`
	Comments []lark.Comment `json:"comments"`
	err      error
}

// SyncComments mirrors the comments of every stored task that has a guid.
func (s *SyncService) SyncComments(ctx context.Context) (*SyncResult, error) {
	return s.recorder.run(ctx, models.SyncTypeComments, func(ctx context.Context, syncID string) (*SyncResult, error) {
		token, err := s.user.ValidAccessToken(ctx)
		if err != nil {
			return nil, err
		}
		client := s.lark.WithAccessToken(token)

		refs, err := s.tasks.Refs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load tasks: %w", err)
		}
		targets := commentTargets(refs)

		fetched := make([]taskComments, len(targets))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency())
		for i, target := range targets {
			g.Go(func() error {
				comments, err := client.ListComments(gctx, target.GUID)
				fetched[i] = taskComments{Target: target, Comments: comments, err: err}
				return nil
			})
		}
		g.Wait()

		now := s.now()
		written := 0
		var errs []string
		for _, tc := range fetched {
			if tc.err != nil {
				logrus.WithFields(logrus.Fields{"task_guid": tc.Target.GUID, "error": tc.err}).Error("Failed to fetch task comments")
				errs = append(errs, fmt.Sprintf("Task %s: %v", tc.Target.GUID, tc.err))
			}
			for _, c := range tc.Comments {
				row := TransformComment(c, tc.Target.TaskID, tc.Target.GUID, now)
				if err := s.comments.Upsert(ctx, &row); err != nil {
					logrus.WithFields(logrus.Fields{"comment_id": c.ID, "error": err}).Error("Failed to upsert comment")
					errs = append(errs, fmt.Sprintf("Comment %s: %v", c.ID, err))
					continue
				}
				written++
			}
		}
		s.recorder.store(ctx, models.SyncTypeComments, syncID, fetched)

		return &SyncResult{
			Message: fmt.Sprintf("Synced %d comments from %d tasks", written, len(targets)),
			Items:   written,
			Errors:  errs,
		}, nil
	})
}
