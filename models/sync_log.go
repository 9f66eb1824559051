package models

type SyncStatus string

const (
	SyncRunning SyncStatus = "running"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

type SyncType string

const (
	SyncTypeBitable    SyncType = "tasks"
	SyncTypeTaskV2     SyncType = "tasks_v2"
	SyncTypeComments   SyncType = "comments"
	SyncTypeEmbeddings SyncType = "embeddings"
	SyncTypeAll        SyncType = "all"
)

// SyncLog is the append-only record of one sync run. It is created in the
// running state and finalized exactly once.
type SyncLog struct {
	ID           string     `json:"id" gorm:"primaryKey;size:64"`
	SyncType     SyncType   `json:"syncType" gorm:"index;size:32;not null"`
	StartedAt    int64      `json:"startedAt" gorm:"not null"`
	CompletedAt  *int64     `json:"completedAt"`
	Status       SyncStatus `json:"status" gorm:"size:16;not null"`
	ItemsSynced  int        `json:"itemsSynced"`
	ErrorMessage *string    `json:"errorMessage" gorm:"type:text"`
}

func (SyncLog) TableName() string { return "sync_logs" }
