package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hubtask/lark"
	"hubtask/models"

	"gorm.io/datatypes"
)

// Bitable column names the transformer reads.
const (
	fieldTitle       = "Task title"
	fieldDescription = "Task description"
	fieldDueDate     = "Due date"
	fieldStartDate   = "Start date"
	fieldCreatedOn   = "Created on"
	fieldCompletedOn = "Completed on"
	fieldCompletion  = "Completion status"
	fieldSubProgress = "Sub-task progress"
	fieldPriority    = "Priority"
	fieldProject     = "Project"
	fieldCustomGroup = "Custom Group"
	fieldOwner       = "Owner"
)

const unknownTasklist = "Unknown List"

// TaskSource is one upstream item that can become a canonical task. The
// concrete types are BitableSource and TaskV2Source.
type TaskSource interface {
	Canonical(now time.Time) models.Task
	isTaskSource()
}

// BitableSource is a Bitable record together with the table it came from.
type BitableSource struct {
	Record   lark.Record
	Table    lark.Table
	BaseID   string
	LinkBase string
}

func (BitableSource) isTaskSource() {}

func (s BitableSource) Canonical(now time.Time) models.Task {
	f := s.Record.Fields
	nowMs := now.UnixMilli()

	task := models.Task{
		ID:              models.SourceBitable.IDPrefix() + s.Record.RecordID,
		BitableRecordID: strPtr(s.Record.RecordID),
		Title:           orDefault(textValue(f[fieldTitle]), "Untitled"),
		Description:     textValue(f[fieldDescription]),
		Status:          s.Status(now),
		Priority:        priorityPtr(BitablePriority(textValue(f[fieldPriority]))),
		ProjectName:     s.Project(),
		TasklistGUID:    strPtr(s.Table.TableID),
		DueDate:         millisValue(f[fieldDueDate]),
		StartDate:       millisValue(f[fieldStartDate]),
		CompletedAt:     millisValue(f[fieldCompletedOn]),
		CreatedAt:       nowMs,
		UpdatedAt:       nowMs,
		Link:            strPtr(s.Link()),
		APISource:       models.SourceBitable,
		LastSyncedAt:    nowMs,
	}
	if created := millisValue(f[fieldCreatedOn]); created != nil {
		task.CreatedAt = *created
	}
	return task
}

// Status derives the bitable status from the completion flag and dates.
func (s BitableSource) Status(now time.Time) models.TaskStatus {
	f := s.Record.Fields
	if done, _ := f[fieldCompletion].(bool); done {
		return models.StatusCompleted
	}
	if due := millisValue(f[fieldDueDate]); due != nil && *due < now.UnixMilli() {
		return models.StatusOverdue
	}
	if millisValue(f[fieldStartDate]) != nil || truthy(f[fieldSubProgress]) {
		return models.StatusInProgress
	}
	return models.StatusPending
}

// Project prefers the Project field, then Custom Group, then the table name.
func (s BitableSource) Project() string {
	f := s.Record.Fields
	if p := joinedValue(f[fieldProject]); p != "" {
		return p
	}
	if g := joinedValue(f[fieldCustomGroup]); g != "" {
		return g
	}
	return s.Table.Name
}

// Link is the deep link carried by the title cell, falling back to the
// record URL inside the Base.
func (s BitableSource) Link() string {
	if title, ok := s.Record.Fields[fieldTitle].(map[string]interface{}); ok {
		if link, _ := title["link"].(string); link != "" {
			return link
		}
	}
	q := url.Values{}
	q.Set("table", s.Table.TableID)
	q.Set("record", s.Record.RecordID)
	return s.LinkBase + s.BaseID + "?" + q.Encode()
}

// Owners lists the people in the Owner column.
func (s BitableSource) Owners() []lark.Member {
	list, _ := s.Record.Fields[fieldOwner].([]interface{})
	var owners []lark.Member
	for _, raw := range list {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			name, _ = m["en_name"].(string)
		}
		id, _ := m["id"].(string)
		avatar, _ := m["avatar_url"].(string)
		owners = append(owners, lark.Member{ID: id, Name: name, AvatarURL: avatar, Role: string(models.RoleOwner)})
	}
	return owners
}

// BitablePriority maps the free-text priority cell.
func BitablePriority(raw string) models.Priority {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(raw, "P1") || strings.Contains(lower, "quan trọng") || strings.Contains(lower, "high"):
		return models.PriorityHigh
	case strings.Contains(raw, "P3") || strings.Contains(lower, "thấp") || strings.Contains(lower, "low"):
		return models.PriorityLow
	}
	return models.PriorityMedium
}

// TaskV2Source is a Task-v2 task. TasklistGUID and TasklistName describe the
// tasklist it was listed from, when known.
type TaskV2Source struct {
	Task         lark.Task
	TasklistGUID string
	TasklistName string
	AppLink      string
}

func (TaskV2Source) isTaskSource() {}

func (s TaskV2Source) ID() string {
	return models.SourceTaskV2.IDPrefix() + s.Task.GUID
}

func (s TaskV2Source) Canonical(now time.Time) models.Task {
	t := s.Task
	nowMs := now.UnixMilli()

	task := models.Task{
		ID:           s.ID(),
		LarkGUID:     strPtr(t.GUID),
		Title:        orDefault(t.Summary, "Untitled"),
		Description:  t.Description,
		Status:       s.Status(now),
		ProjectName:  s.Project(),
		TasklistGUID: strPtr(s.tasklistGUID()),
		DueDate:      timePointMillis(t.Due),
		StartDate:    timePointMillis(t.Start),
		CompletedAt:  ParseMillis(t.CompletedAt),
		CreatedAt:    nowMs,
		UpdatedAt:    nowMs,
		IsAllDay:     t.Due != nil && t.Due.IsAllDay,
		IsMilestone:  t.IsMilestone,
		RepeatRule:   strPtr(t.RepeatRule),
		Link:         strPtr(s.AppLink + t.GUID),
		APISource:    models.SourceTaskV2,
		LastSyncedAt: nowMs,
	}
	if created := ParseMillis(t.CreatedAt); created != nil {
		task.CreatedAt = *created
	}
	return task
}

// Status derives the Task-v2 status. A start date only counts while the
// task has a due date in the future.
func (s TaskV2Source) Status(now time.Time) models.TaskStatus {
	if ParseMillis(s.Task.CompletedAt) != nil {
		return models.StatusCompleted
	}
	due := timePointMillis(s.Task.Due)
	if due == nil {
		return models.StatusPending
	}
	if *due < now.UnixMilli() {
		return models.StatusOverdue
	}
	if timePointMillis(s.Task.Start) != nil {
		return models.StatusInProgress
	}
	return models.StatusPending
}

func (s TaskV2Source) Project() string {
	if len(s.Task.Tasklists) > 0 && s.Task.Tasklists[0].Name != "" {
		return s.Task.Tasklists[0].Name
	}
	if s.TasklistName != "" {
		return s.TasklistName
	}
	return unknownTasklist
}

func (s TaskV2Source) tasklistGUID() string {
	if len(s.Task.Tasklists) > 0 && s.Task.Tasklists[0].TasklistGUID != "" {
		return s.Task.Tasklists[0].TasklistGUID
	}
	return s.TasklistGUID
}

// Members returns one row per (user, role) for assignees, followers and
// owners. Duplicate upstream entries collapse to one row.
func (s TaskV2Source) Members() []models.TaskMember {
	taskID := s.ID()
	seen := make(map[string]bool)
	var members []models.TaskMember
	for _, m := range s.Task.Members {
		role := models.MemberRole(m.Role)
		switch role {
		case models.RoleAssignee, models.RoleFollower, models.RoleOwner:
		default:
			continue
		}
		key := m.ID
		if key == "" {
			key = m.Name
		}
		id := fmt.Sprintf("%s_%s_%s", taskID, role, key)
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, models.TaskMember{
			ID:        id,
			TaskID:    taskID,
			UserID:    m.ID,
			UserName:  orDefault(m.Name, m.ID),
			Role:      role,
			AvatarURL: strPtr(m.AvatarURL),
		})
	}
	return members
}

// TransformComment maps an upstream comment onto the local row.
func TransformComment(c lark.Comment, taskID, taskGUID string, now time.Time) models.Comment {
	nowMs := now.UnixMilli()
	comment := models.Comment{
		ID:               c.ID,
		TaskID:           taskID,
		TaskGUID:         taskGUID,
		Content:          c.Content,
		CreatorName:      "Unknown",
		ReplyToCommentID: strPtr(c.ReplyToCommentID),
		CreatedAt:        nowMs,
		UpdatedAt:        ParseMillis(c.UpdatedAt),
		LastSyncedAt:     nowMs,
	}
	if c.Creator != nil {
		comment.CreatorID = strPtr(c.Creator.ID)
		comment.CreatorName = orDefault(c.Creator.Name, "Unknown")
		comment.CreatorAvatarURL = strPtr(c.Creator.AvatarURL)
	}
	if created := ParseMillis(c.CreatedAt); created != nil {
		comment.CreatedAt = *created
	}
	if len(c.MentionedUserIDs) > 0 {
		raw, _ := json.Marshal(c.MentionedUserIDs)
		comment.MentionedUserIDs = datatypes.JSON(raw)
	}
	return comment
}

// ParseMillis reads a string epoch-millisecond timestamp. Empty, "0" and
// malformed values are nil.
func ParseMillis(raw string) *int64 {
	if raw == "" || raw == "0" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

func timePointMillis(tp *lark.TimePoint) *int64 {
	if tp == nil {
		return nil
	}
	return ParseMillis(tp.Timestamp)
}

// millisValue reads a numeric Bitable date cell.
func millisValue(v interface{}) *int64 {
	switch n := v.(type) {
	case float64:
		ms := int64(n)
		return &ms
	case json.Number:
		if ms, err := n.Int64(); err == nil {
			return &ms
		}
	}
	return nil
}

// textValue flattens the shapes a Bitable text cell can take: a plain
// string, a {text} object, or a list of rich-text segments.
func textValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]interface{}:
		if text, ok := x["text"].(string); ok {
			return text
		}
		if name, ok := x["name"].(string); ok {
			return name
		}
	case []interface{}:
		var b strings.Builder
		for _, seg := range x {
			b.WriteString(textValue(seg))
		}
		return b.String()
	}
	return ""
}

// joinedValue reads multi-select cells as "a, b"; other shapes fall back to
// textValue.
func joinedValue(v interface{}) string {
	list, ok := v.([]interface{})
	if !ok {
		return textValue(v)
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s := textValue(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []interface{}:
		return len(x) > 0
	}
	return true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func priorityPtr(p models.Priority) *models.Priority {
	return &p
}

// dedupeByGUID keeps the first occurrence of every task guid.
func dedupeByGUID(tasks []lark.Task) []lark.Task {
	seen := make(map[string]bool, len(tasks))
	out := tasks[:0:0]
	for _, t := range tasks {
		if seen[t.GUID] {
			continue
		}
		seen[t.GUID] = true
		out = append(out, t)
	}
	return out
}
