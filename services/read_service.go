package services

import (
	"context"

	"hubtask/models"
	"hubtask/repositories"
)

type TaskListResponse struct {
	Success bool                `json:"success"`
	Tasks   []TaskView          `json:"tasks"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	Stats   models.StatusCounts `json:"stats"`
}

type CommentListResponse struct {
	Success  bool          `json:"success"`
	Comments []CommentView `json:"comments"`
	Total    int64         `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

type SyncLogListResponse struct {
	Success bool             `json:"success"`
	Logs    []models.SyncLog `json:"logs"`
	Limit   int              `json:"limit"`
}

type ActivityResponse struct {
	Success    bool           `json:"success"`
	Activities []ActivityView `json:"activities"`
	Total      int64          `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// ReadService serves the dashboard's queries against the local store.
type ReadService struct {
	tasks    repositories.TaskRepository
	comments repositories.CommentRepository
	logs     repositories.SyncLogRepository
}

func NewReadService(tasks repositories.TaskRepository, comments repositories.CommentRepository, logs repositories.SyncLogRepository) *ReadService {
	return &ReadService{tasks: tasks, comments: comments, logs: logs}
}

func (s *ReadService) Tasks(ctx context.Context, filter repositories.TaskFilter) (*TaskListResponse, error) {
	if s.tasks == nil {
		return nil, models.ErrStoreUnavailable
	}
	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	members, err := s.tasks.MembersFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	stats, err := s.tasks.Stats(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = NewTaskView(t, members[t.ID])
	}
	return &TaskListResponse{
		Success: true,
		Tasks:   views,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		Stats:   stats,
	}, nil
}

// Comments lists one task's stored comments, newest first. taskID wins over
// taskGUID when both are given.
func (s *ReadService) Comments(ctx context.Context, taskID, taskGUID string, limit, offset int) (*CommentListResponse, error) {
	if taskID == "" && taskGUID == "" {
		return nil, &models.ValidationError{Field: "taskId", Message: "Missing taskId or taskGuid parameter"}
	}
	if s.comments == nil {
		return nil, models.ErrStoreUnavailable
	}
	rows, total, err := s.comments.ListForTask(ctx, taskID, taskGUID, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]CommentView, len(rows))
	for i, c := range rows {
		views[i] = NewCommentView(c)
	}
	return &CommentListResponse{Success: true, Comments: views, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *ReadService) Activity(ctx context.Context, limit, offset int) (*ActivityResponse, error) {
	if s.comments == nil {
		return nil, models.ErrStoreUnavailable
	}
	rows, total, err := s.comments.Activity(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]ActivityView, len(rows))
	for i, row := range rows {
		views[i] = NewActivityView(row)
	}
	return &ActivityResponse{Success: true, Activities: views, Total: total, Limit: limit, Offset: offset}, nil
}

// SyncLogs lists the most recent sync runs of every type.
func (s *ReadService) SyncLogs(ctx context.Context, limit int) (*SyncLogListResponse, error) {
	if s.logs == nil {
		return nil, models.ErrStoreUnavailable
	}
	logs, err := s.logs.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.SyncLog{}
	}
	return &SyncLogListResponse{Success: true, Logs: logs, Limit: limit}, nil
}
