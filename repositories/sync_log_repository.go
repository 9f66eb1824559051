package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hubtask/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSyncLogFinalized = errors.New("sync log already finalized")

type SyncLogRepository interface {
	Start(ctx context.Context, syncType models.SyncType) (*models.SyncLog, error)
	// Finish moves a running log to its terminal state. A log is finalized
	// at most once; later calls return ErrSyncLogFinalized.
	Finish(ctx context.Context, id string, status models.SyncStatus, items int, errMsg string) error
	Get(ctx context.Context, id string) (*models.SyncLog, error)
	Recent(ctx context.Context, limit int) ([]models.SyncLog, error)
}

type syncLogRepositoryImpl struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepositoryImpl{db: db}
}

func (r *syncLogRepositoryImpl) Start(ctx context.Context, syncType models.SyncType) (*models.SyncLog, error) {
	log := &models.SyncLog{
		ID:        fmt.Sprintf("sync_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		SyncType:  syncType,
		StartedAt: time.Now().UnixMilli(),
		Status:    models.SyncRunning,
	}
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, err
	}
	return log, nil
}

func (r *syncLogRepositoryImpl) Finish(ctx context.Context, id string, status models.SyncStatus, items int, errMsg string) error {
	var message *string
	if errMsg != "" {
		message = &errMsg
	}
	result := r.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", id, models.SyncRunning).
		Updates(map[string]interface{}{
			"completed_at":  time.Now().UnixMilli(),
			"status":        status,
			"items_synced":  items,
			"error_message": message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSyncLogFinalized
	}
	return nil
}

func (r *syncLogRepositoryImpl) Get(ctx context.Context, id string) (*models.SyncLog, error) {
	var log models.SyncLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *syncLogRepositoryImpl) Recent(ctx context.Context, limit int) ([]models.SyncLog, error) {
	var logs []models.SyncLog
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
