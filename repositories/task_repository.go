package repositories

import (
	"context"
	"strings"

	"hubtask/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskFilter narrows List. Zero values mean "no filter".
type TaskFilter struct {
	Status  string
	Project string
	Source  string
	Limit   int
	Offset  int
}

// TaskRef is the minimal projection the comments sync needs.
type TaskRef struct {
	ID       string
	LarkGUID *string
	Link     *string
}

// ScoredTask is a task with the relevance score of a search hit.
type ScoredTask struct {
	models.Task
	RelevanceScore float64 `json:"relevanceScore" gorm:"column:relevance_score"`
}

type TaskRepository interface {
	// Upsert overwrites every column of the row keyed by task.ID.
	Upsert(ctx context.Context, task *models.Task) error
	// UpsertWithMembers upserts the task and replaces its member rows in one
	// transaction.
	UpsertWithMembers(ctx context.Context, task *models.Task, members []models.TaskMember) error
	List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error)
	Stats(ctx context.Context) (models.StatusCounts, error)
	MembersFor(ctx context.Context, taskIDs []string) (map[string][]models.TaskMember, error)
	Refs(ctx context.Context) ([]TaskRef, error)
	Recent(ctx context.Context, limit int) ([]models.Task, error)
	FindByIDs(ctx context.Context, ids []string, status string) ([]models.Task, error)
	TextSearch(ctx context.Context, query string, status string, limit int) ([]ScoredTask, error)
}

type taskRepositoryImpl struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepositoryImpl{db: db}
}

func upsertTask(tx *gorm.DB, task *models.Task) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(task).Error
}

func (r *taskRepositoryImpl) Upsert(ctx context.Context, task *models.Task) error {
	return upsertTask(r.db.WithContext(ctx), task)
}

func (r *taskRepositoryImpl) UpsertWithMembers(ctx context.Context, task *models.Task, members []models.TaskMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertTask(tx, task); err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskMember{}).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
}

func (r *taskRepositoryImpl) filtered(ctx context.Context, filter TaskFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Task{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Project != "" {
		q = q.Where("project_name LIKE ?", "%"+filter.Project+"%")
	}
	if filter.Source != "" {
		q = q.Where("api_source = ?", filter.Source)
	}
	return q
}

func (r *taskRepositoryImpl) List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tasks []models.Task
	err := r.filtered(ctx, filter).
		Order("updated_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *taskRepositoryImpl) Stats(ctx context.Context) (models.StatusCounts, error) {
	var stats models.StatusCounts
	err := r.db.WithContext(ctx).Model(&models.Task{}).Select(`
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
		COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0) AS in_progress,
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
		COALESCE(SUM(CASE WHEN status = 'overdue' THEN 1 ELSE 0 END), 0) AS overdue`).
		Scan(&stats).Error
	return stats, err
}

func (r *taskRepositoryImpl) MembersFor(ctx context.Context, taskIDs []string) (map[string][]models.TaskMember, error) {
	out := make(map[string][]models.TaskMember, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}

	var members []models.TaskMember
	if err := r.db.WithContext(ctx).Where("task_id IN ?", taskIDs).Order("id").Find(&members).Error; err != nil {
		return nil, err
	}
	for _, m := range members {
		out[m.TaskID] = append(out[m.TaskID], m)
	}
	return out, nil
}

func (r *taskRepositoryImpl) Refs(ctx context.Context) ([]TaskRef, error) {
	var refs []TaskRef
	err := r.db.WithContext(ctx).Model(&models.Task{}).
		Select("id, lark_guid, link").
		Order("id").
		Scan(&refs).Error
	return refs, err
}

func (r *taskRepositoryImpl) Recent(ctx context.Context, limit int) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&tasks).Error
	return tasks, err
}

func (r *taskRepositoryImpl) FindByIDs(ctx context.Context, ids []string, status string) ([]models.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Where("id IN ?", ids)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tasks []models.Task
	err := q.Find(&tasks).Error
	return tasks, err
}

func (r *taskRepositoryImpl) TextSearch(ctx context.Context, query string, status string, limit int) ([]ScoredTask, error) {
	pattern := "%" + strings.ToLower(query) + "%"

	q := r.db.WithContext(ctx).Model(&models.Task{}).
		Select(`*, (
			CASE WHEN LOWER(title) LIKE ? THEN 10 ELSE 0 END +
			CASE WHEN LOWER(description) LIKE ? THEN 5 ELSE 0 END +
			CASE WHEN LOWER(project_name) LIKE ? THEN 3 ELSE 0 END
		) AS relevance_score`, pattern, pattern, pattern).
		Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(project_name) LIKE ?)", pattern, pattern, pattern)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var hits []ScoredTask
	err := q.Order("relevance_score DESC").Order("updated_at DESC").Limit(limit).Scan(&hits).Error
	return hits, err
}
