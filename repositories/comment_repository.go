package repositories

import (
	"context"

	"hubtask/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityRow is a comment joined with the task it belongs to. Task columns
// are nil when no task matches.
type ActivityRow struct {
	CommentID        string
	Content          string
	CreatorID        *string
	CreatorName      string
	CreatorAvatarURL *string
	CommentCreatedAt int64
	ReplyToCommentID *string
	TaskID           *string
	TaskGUID         *string
	TaskTitle        *string
	TaskStatus       *string
	TaskPriority     *string
	ProjectName      *string
	DueDate          *int64
	TaskLink         *string
}

type CommentRepository interface {
	Upsert(ctx context.Context, comment *models.Comment) error
	// ListForTask matches on taskID when set, otherwise on taskGUID.
	ListForTask(ctx context.Context, taskID, taskGUID string, limit, offset int) ([]models.Comment, int64, error)
	Activity(ctx context.Context, limit, offset int) ([]ActivityRow, int64, error)
}

type commentRepositoryImpl struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepositoryImpl{db: db}
}

func (r *commentRepositoryImpl) Upsert(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(comment).Error
}

func (r *commentRepositoryImpl) ListForTask(ctx context.Context, taskID, taskGUID string, limit, offset int) ([]models.Comment, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if taskID != "" {
			return db.Where("task_id = ?", taskID)
		}
		return db.Where("task_guid = ?", taskGUID)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Comment{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []models.Comment
	err := r.db.WithContext(ctx).Scopes(scope).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (r *commentRepositoryImpl) Activity(ctx context.Context, limit, offset int) ([]ActivityRow, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Comment{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []ActivityRow
	err := r.db.WithContext(ctx).Table("comments AS c").
		Select(`c.id AS comment_id, c.content, c.creator_id, c.creator_name,
			c.creator_avatar_url, c.created_at AS comment_created_at, c.reply_to_comment_id,
			t.id AS task_id, t.lark_guid AS task_guid, t.title AS task_title,
			t.status AS task_status, t.priority AS task_priority, t.project_name,
			t.due_date, t.link AS task_link`).
		Joins("LEFT JOIN tasks AS t ON c.task_id = t.id OR c.task_guid = t.lark_guid").
		Order("c.created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
