package models

// Source tags which upstream produced a task.
type Source string

const (
	SourceBitable Source = "bitable"
	SourceTaskV2  Source = "task_v2"
)

// IDPrefix namespaces canonical ids so the same upstream id from two sources
// never collides.
func (s Source) IDPrefix() string {
	switch s {
	case SourceBitable:
		return "bitable_"
	case SourceTaskV2:
		return "taskv2_"
	}
	return string(s) + "_"
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusOverdue    TaskStatus = "overdue"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Task is the canonical local representation of an upstream task. All
// timestamps are epoch milliseconds.
type Task struct {
	ID              string     `json:"id" gorm:"primaryKey;size:128"`
	LarkGUID        *string    `json:"larkGuid" gorm:"index;size:64"`
	BitableRecordID *string    `json:"bitableRecordId" gorm:"size:64"`
	Title           string     `json:"title" gorm:"type:text;not null"`
	Description     string     `json:"description" gorm:"type:text"`
	Status          TaskStatus `json:"status" gorm:"index;size:16;not null"`
	Priority        *Priority  `json:"priority" gorm:"size:16"`
	ProjectName     string     `json:"projectName" gorm:"size:255"`
	TasklistGUID    *string    `json:"tasklistGuid" gorm:"size:64"`
	DueDate         *int64     `json:"dueDate"`
	StartDate       *int64     `json:"startDate"`
	CompletedAt     *int64     `json:"completedAt"`
	CreatedAt       int64      `json:"createdAt" gorm:"autoCreateTime:false"`
	UpdatedAt       int64      `json:"updatedAt" gorm:"index;autoUpdateTime:false"`
	IsAllDay        bool       `json:"isAllDay"`
	IsMilestone     bool       `json:"isMilestone"`
	RepeatRule      *string    `json:"repeatRule" gorm:"type:text"`
	Link            *string    `json:"link" gorm:"type:text"`
	APISource       Source     `json:"apiSource" gorm:"index;size:16;not null"`
	LastSyncedAt    int64      `json:"lastSyncedAt"`

	Members []TaskMember `json:"members,omitempty" gorm:"-"`
}

func (Task) TableName() string { return "tasks" }

type MemberRole string

const (
	RoleAssignee MemberRole = "assignee"
	RoleFollower MemberRole = "follower"
	RoleOwner    MemberRole = "owner"
)

// TaskMember is one (task, user, role) triple. Rows for a task are replaced
// wholesale on every resync.
type TaskMember struct {
	ID        string     `json:"id" gorm:"primaryKey;size:255"`
	TaskID    string     `json:"taskId" gorm:"index;size:128;not null"`
	UserID    string     `json:"userId" gorm:"size:128"`
	UserName  string     `json:"userName" gorm:"size:255"`
	Role      MemberRole `json:"role" gorm:"size:16;not null"`
	AvatarURL *string    `json:"avatarUrl" gorm:"type:text"`
}

func (TaskMember) TableName() string { return "task_members" }

// StatusCounts summarises tasks by derived status.
type StatusCounts struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	InProgress int64 `json:"inProgress"`
	Pending    int64 `json:"pending"`
	Overdue    int64 `json:"overdue"`
}

// Add counts one task.
func (s *StatusCounts) Add(status TaskStatus) {
	s.Total++
	switch status {
	case StatusCompleted:
		s.Completed++
	case StatusInProgress:
		s.InProgress++
	case StatusPending:
		s.Pending++
	case StatusOverdue:
		s.Overdue++
	}
}
