package lark

import (
	"context"
	"fmt"
	"net/url"
)

type TimePoint struct {
	Timestamp string `json:"timestamp"`
	IsAllDay  bool   `json:"is_all_day"`
}

type Member struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type TasklistRef struct {
	TasklistGUID string `json:"tasklist_guid"`
	SectionGUID  string `json:"section_guid"`
	Name         string `json:"name"`
}

// Task is a Task-v2 task. Timestamps are epoch milliseconds encoded as
// strings, with "0" meaning unset.
type Task struct {
	GUID        string        `json:"guid"`
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	CompletedAt string        `json:"completed_at"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
	Due         *TimePoint    `json:"due"`
	Start       *TimePoint    `json:"start"`
	Members     []Member      `json:"members"`
	Tasklists   []TasklistRef `json:"tasklists"`
	IsMilestone bool          `json:"is_milestone"`
	RepeatRule  string        `json:"repeat_rule"`
	URL         string        `json:"url"`
}

type Comment struct {
	ID               string   `json:"id"`
	Content          string   `json:"content"`
	Creator          *Member  `json:"creator"`
	ReplyToCommentID string   `json:"reply_to_comment_id"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
	MentionedUserIDs []string `json:"mentioned_user_ids"`
}

// ListMyTasks lists the signed-in user's tasks. The API returns either the
// completed or the uncompleted set, never both.
func (c *Client) ListMyTasks(ctx context.Context, completed bool) ([]Task, error) {
	q := url.Values{}
	q.Set("user_id_type", "open_id")
	label := "task.mine"
	if completed {
		q.Set("completed", "true")
		label = "task.mine_completed"
	}
	return FetchAll[Task](ctx, c, label, "/task/v2/tasks", q)
}

// ListTasklistTasks lists the tasks of one tasklist.
func (c *Client) ListTasklistTasks(ctx context.Context, tasklistGUID string) ([]Task, error) {
	q := url.Values{}
	q.Set("user_id_type", "open_id")
	path := fmt.Sprintf("/task/v2/tasklists/%s/tasks", url.PathEscape(tasklistGUID))
	return FetchAll[Task](ctx, c, "task.tasklist", path, q)
}

// ListComments lists a task's comments, newest first.
func (c *Client) ListComments(ctx context.Context, taskGUID string) ([]Comment, error) {
	q := url.Values{}
	q.Set("resource_type", "task")
	q.Set("resource_id", taskGUID)
	q.Set("direction", "desc")
	q.Set("user_id_type", "open_id")
	return FetchAll[Comment](ctx, c, "task.comments", "/task/v2/comments", q)
}
