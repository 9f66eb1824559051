package services

import (
	"encoding/json"

	"hubtask/models"
	"hubtask/repositories"
)

// TaskView is the JSON shape the dashboard consumes: the canonical task plus
// member names grouped by role.
type TaskView struct {
	models.Task
	GUID           *string       `json:"guid"`
	Summary        string        `json:"summary"`
	Project        string        `json:"project"`
	Assignees      []string      `json:"assignees"`
	Followers      []string      `json:"followers"`
	Owner          string        `json:"owner"`
	TableID        string        `json:"tableId,omitempty"`
	TableName      string        `json:"tableName,omitempty"`
	Comments       []CommentView `json:"comments,omitempty"`
	RelevanceScore *float64      `json:"relevanceScore,omitempty"`
}

// NewTaskView groups members: owners count as assignees, and the first
// assignee is reported as the owner.
func NewTaskView(task models.Task, members []models.TaskMember) TaskView {
	view := TaskView{
		Task:      task,
		GUID:      task.LarkGUID,
		Summary:   task.Title,
		Project:   task.ProjectName,
		Assignees: []string{},
		Followers: []string{},
		Owner:     "Unassigned",
	}
	view.Task.Members = members
	for _, m := range members {
		switch m.Role {
		case models.RoleAssignee, models.RoleOwner:
			view.Assignees = append(view.Assignees, m.UserName)
		case models.RoleFollower:
			view.Followers = append(view.Followers, m.UserName)
		}
	}
	if len(view.Assignees) > 0 {
		view.Owner = view.Assignees[0]
	}
	return view
}

type CreatorView struct {
	ID        *string `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

type CommentView struct {
	ID               string      `json:"id"`
	TaskID           string      `json:"taskId,omitempty"`
	TaskGUID         string      `json:"taskGuid,omitempty"`
	Content          string      `json:"content"`
	CreatedAt        int64       `json:"createdAt"`
	UpdatedAt        *int64      `json:"updatedAt"`
	Creator          CreatorView `json:"creator"`
	ReplyToCommentID *string     `json:"replyToCommentId"`
	MentionedUsers   []string    `json:"mentionedUsers"`
}

func NewCommentView(c models.Comment) CommentView {
	view := CommentView{
		ID:               c.ID,
		TaskID:           c.TaskID,
		TaskGUID:         c.TaskGUID,
		Content:          c.Content,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		Creator:          CreatorView{ID: c.CreatorID, Name: c.CreatorName, AvatarURL: c.CreatorAvatarURL},
		ReplyToCommentID: c.ReplyToCommentID,
		MentionedUsers:   []string{},
	}
	if len(c.MentionedUserIDs) > 0 {
		_ = json.Unmarshal(c.MentionedUserIDs, &view.MentionedUsers)
	}
	return view
}

type ActivityTask struct {
	ID          *string `json:"id"`
	GUID        *string `json:"guid"`
	Title       *string `json:"title"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	ProjectName *string `json:"projectName"`
	DueDate     *int64  `json:"dueDate"`
	Link        *string `json:"link"`
}

// ActivityView is one entry of the activity feed.
type ActivityView struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Content   string       `json:"content"`
	CreatedAt int64        `json:"createdAt"`
	IsReply   bool         `json:"isReply"`
	Creator   CreatorView  `json:"creator"`
	Task      ActivityTask `json:"task"`
}

func NewActivityView(row repositories.ActivityRow) ActivityView {
	return ActivityView{
		ID:        row.CommentID,
		Type:      "comment",
		Content:   row.Content,
		CreatedAt: row.CommentCreatedAt,
		IsReply:   row.ReplyToCommentID != nil && *row.ReplyToCommentID != "",
		Creator:   CreatorView{ID: row.CreatorID, Name: row.CreatorName, AvatarURL: row.CreatorAvatarURL},
		Task: ActivityTask{
			ID:          row.TaskID,
			GUID:        row.TaskGUID,
			Title:       row.TaskTitle,
			Status:      row.TaskStatus,
			Priority:    row.TaskPriority,
			ProjectName: row.ProjectName,
			DueDate:     row.DueDate,
			Link:        row.TaskLink,
		},
	}
}

// CountStatuses summarises a slice of views.
func CountStatuses(views []TaskView) models.StatusCounts {
	var stats models.StatusCounts
	for _, v := range views {
		stats.Add(v.Status)
	}
	return stats
}
