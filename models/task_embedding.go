package models

import "gorm.io/datatypes"

// TaskEmbedding is one entry of the store-backed vector index.
type TaskEmbedding struct {
	TaskID    string         `gorm:"primaryKey;size:128"`
	Model     string         `gorm:"size:128"`
	Vector    datatypes.JSON `gorm:"not null"`
	Title     string         `gorm:"type:text"`
	Status    string         `gorm:"size:16"`
	Project   string         `gorm:"size:255"`
	Priority  string         `gorm:"size:16"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli"`
}

func (TaskEmbedding) TableName() string { return "task_embeddings" }
