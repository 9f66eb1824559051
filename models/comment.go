package models

import "gorm.io/datatypes"

// Comment mirrors one upstream task comment, keyed by the upstream comment id.
type Comment struct {
	ID               string         `json:"id" gorm:"primaryKey;size:64"`
	TaskID           string         `json:"taskId" gorm:"index;size:128"`
	TaskGUID         string         `json:"taskGuid" gorm:"index;size:64"`
	Content          string         `json:"content" gorm:"type:text"`
	CreatorID        *string        `json:"creatorId" gorm:"size:128"`
	CreatorName      string         `json:"creatorName" gorm:"size:255"`
	CreatorAvatarURL *string        `json:"creatorAvatarUrl" gorm:"type:text"`
	ReplyToCommentID *string        `json:"replyToCommentId" gorm:"size:64"`
	MentionedUserIDs datatypes.JSON `json:"mentionedUserIds"`
	CreatedAt        int64          `json:"createdAt" gorm:"index;autoCreateTime:false"`
	UpdatedAt        *int64         `json:"updatedAt" gorm:"autoUpdateTime:false"`
	LastSyncedAt     int64          `json:"lastSyncedAt"`
}

func (Comment) TableName() string { return "comments" }
