package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hubtask/config"
	"hubtask/lark"
	"hubtask/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TableInfo names a Bitable table in proxy responses.
type TableInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TasksResponse struct {
	Success   bool                `json:"success"`
	Tasks     []TaskView          `json:"tasks"`
	Tasklists []config.Tasklist   `json:"tasklists"`
	Stats     models.StatusCounts `json:"stats"`
}

type LarkResponse struct {
	Success bool        `json:"success"`
	Tasks   []TaskView  `json:"tasks"`
	Tables  []TableInfo `json:"tables"`
}

type CommentsResponse struct {
	Success  bool          `json:"success"`
	TaskID   string        `json:"taskId"`
	Comments []CommentView `json:"comments"`
	Total    int           `json:"total"`
}

// ProxyService reads live from Lark without touching the local store.
type ProxyService struct {
	cfg    *config.Config
	lark   *lark.Client
	tenant TenantTokenProvider
	now    func() time.Time
}

func NewProxyService(cfg *config.Config, larkClient *lark.Client, tenant TenantTokenProvider) *ProxyService {
	return &ProxyService{cfg: cfg, lark: larkClient, tenant: tenant, now: time.Now}
}

func (s *ProxyService) concurrency() int {
	if s.cfg.FetchConcurrency > 0 {
		return s.cfg.FetchConcurrency
	}
	return 8
}

// ListTasklistTasks lists the configured tasklists with the tenant token,
// optionally narrowed to one guid.
func (s *ProxyService) ListTasklistTasks(ctx context.Context, tasklistGUID string, withComments bool) (*TasksResponse, error) {
	tasklists := make([]config.Tasklist, 0, len(s.cfg.Tasklists))
	for _, tl := range s.cfg.Tasklists {
		if tasklistGUID == "" || tl.GUID == tasklistGUID {
			tasklists = append(tasklists, tl)
		}
	}

	ts := s.tenant.TenantTokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	client := s.lark.WithTokenSource(ts)

	perList := make([][]TaskView, len(tasklists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, tl := range tasklists {
		g.Go(func() error {
			tasks, err := client.ListTasklistTasks(gctx, tl.GUID)
			if err != nil {
				logrus.WithFields(logrus.Fields{"tasklist": tl.GUID, "error": err}).Error("Failed to fetch tasklist")
			}
			views := make([]TaskView, 0, len(tasks))
			for _, t := range tasks {
				views = append(views, s.taskV2View(TaskV2Source{
					Task:         t,
					TasklistGUID: tl.GUID,
					TasklistName: tl.Name,
					AppLink:      s.cfg.TaskAppLink,
				}))
			}
			perList[i] = views
			return nil
		})
	}
	g.Wait()

	var views []TaskView
	for _, v := range perList {
		views = append(views, v...)
	}
	if withComments {
		s.attachComments(ctx, client, views)
	}

	return &TasksResponse{
		Success:   true,
		Tasks:     nonNil(views),
		Tasklists: tasklists,
		Stats:     CountStatuses(views),
	}, nil
}

// ListMyTasks lists every task visible to the holder of accessToken.
func (s *ProxyService) ListMyTasks(ctx context.Context, accessToken string, withComments bool) (*TasksResponse, error) {
	client := s.lark.WithAccessToken(accessToken)
	tasks, failures := fetchMyTasks(ctx, client)
	if len(failures) == 2 && len(tasks) == 0 {
		return nil, errors.Join(failures...)
	}

	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		src := TaskV2Source{Task: t, AppLink: s.cfg.TaskAppLink}
		if len(t.Tasklists) > 0 {
			src.TasklistName = s.cfg.TasklistName(t.Tasklists[0].TasklistGUID)
		}
		views = append(views, s.taskV2View(src))
	}
	if withComments {
		s.attachComments(ctx, client, views)
	}

	return &TasksResponse{
		Success:   true,
		Tasks:     views,
		Tasklists: nonNil(s.cfg.Tasklists),
		Stats:     CountStatuses(views),
	}, nil
}

func (s *ProxyService) taskV2View(src TaskV2Source) TaskView {
	view := NewTaskView(src.Canonical(s.now()), src.Members())
	view.ID = src.Task.GUID
	return view
}

// attachComments fetches comments for every view concurrently. A task whose
// comments cannot be read gets an empty list.
func (s *ProxyService) attachComments(ctx context.Context, client *lark.Client, views []TaskView) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i := range views {
		guid := ""
		if views[i].GUID != nil {
			guid = *views[i].GUID
		}
		g.Go(func() error {
			views[i].Comments = []CommentView{}
			if guid == "" {
				return nil
			}
			comments, err := client.ListComments(gctx, guid)
			if err != nil {
				logrus.WithFields(logrus.Fields{"task_guid": guid, "error": err}).Warn("Failed to fetch comments")
				return nil
			}
			views[i].Comments = s.commentViews(comments, guid)
			return nil
		})
	}
	g.Wait()
}

func (s *ProxyService) commentViews(comments []lark.Comment, guid string) []CommentView {
	now := s.now()
	out := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		out = append(out, NewCommentView(TransformComment(c, "", guid, now)))
	}
	return out
}

// TaskComments lists one task's comments with a caller-supplied user token.
func (s *ProxyService) TaskComments(ctx context.Context, accessToken, taskGUID string) (*CommentsResponse, error) {
	if taskGUID == "" {
		return nil, &models.ValidationError{Field: "taskId"}
	}
	comments, err := s.lark.WithAccessToken(accessToken).ListComments(ctx, taskGUID)
	if err != nil {
		return nil, err
	}
	views := s.commentViews(comments, taskGUID)
	return &CommentsResponse{Success: true, TaskID: taskGUID, Comments: views, Total: len(views)}, nil
}

// ListBitable reads the configured Bitable tables live, optionally narrowed
// to one table id.
func (s *ProxyService) ListBitable(ctx context.Context, tableID string) (*LarkResponse, error) {
	if s.cfg.BitableBaseID == "" {
		return nil, errors.New("BITABLE_BASE_ID is not configured")
	}
	ids := make([]string, 0, len(s.cfg.BitableTableIDs))
	for _, id := range s.cfg.BitableTableIDs {
		if tableID == "" || id == tableID {
			ids = append(ids, id)
		}
	}

	ts := s.tenant.TenantTokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	client := s.lark.WithTokenSource(ts)

	tables := describeTables(ctx, client, s.cfg.BitableBaseID, ids, s.concurrency())
	fetched := fetchTables(ctx, client, s.cfg.BitableBaseID, tables, s.concurrency())

	now := s.now()
	views := []TaskView{}
	infos := make([]TableInfo, 0, len(tables))
	for _, tr := range fetched {
		infos = append(infos, TableInfo{ID: tr.Table.TableID, Name: tr.Table.Name})
		for _, rec := range tr.Records {
			src := BitableSource{Record: rec, Table: tr.Table, BaseID: s.cfg.BitableBaseID, LinkBase: s.cfg.BitableLink}
			task := src.Canonical(now)
			view := NewTaskView(task, ownerMembers(task.ID, src.Owners()))
			view.ID = rec.RecordID
			view.TableID = tr.Table.TableID
			view.TableName = tr.Table.Name
			views = append(views, view)
		}
	}
	return &LarkResponse{Success: true, Tasks: views, Tables: infos}, nil
}

func ownerMembers(taskID string, owners []lark.Member) []models.TaskMember {
	members := make([]models.TaskMember, 0, len(owners))
	for i, o := range owners {
		members = append(members, models.TaskMember{
			ID:        fmt.Sprintf("%s_owner_%d", taskID, i),
			TaskID:    taskID,
			UserID:    o.ID,
			UserName:  orDefault(o.Name, o.ID),
			Role:      models.RoleOwner,
			AvatarURL: strPtr(o.AvatarURL),
		})
	}
	return members
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
