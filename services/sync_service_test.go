package services

import (
	"context"
	"testing"
	"time"

	"hubtask/auth"
	"hubtask/models"
	"hubtask/repositories"
	"hubtask/storage"
	"hubtask/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type syncFixture struct {
	db       *gorm.DB
	lark     *fakeLark
	tasks    repositories.TaskRepository
	comments repositories.CommentRepository
	logs     repositories.SyncLogRepository
	service  *SyncService
}

func newSyncFixture(t *testing.T, user UserTokenProvider, archive storage.Archive) *syncFixture {
	db := testutil.NewDB(t)
	f := newFakeLark()
	client, cfg := newLarkClient(t, f)
	cfg.BitableBaseID = "base1"
	cfg.BitableTableIDs = []string{"tblA", "tblB"}

	fx := &syncFixture{
		db:       db,
		lark:     f,
		tasks:    repositories.NewTaskRepository(db),
		comments: repositories.NewCommentRepository(db),
		logs:     repositories.NewSyncLogRepository(db),
	}
	fx.service = NewSyncService(cfg, client, staticTenant{}, user, fx.tasks, fx.comments, fx.logs, archive)
	fx.service.now = func() time.Time { return now }
	fx.service.reconciler.now = func() time.Time { return now }
	return fx
}

func (fx *syncFixture) logStatus(t *testing.T, id string) models.SyncStatus {
	entry, err := fx.logs.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry.Status
}

func TestSyncCommentsWithoutTokensFails(t *testing.T) {
	db := testutil.NewDB(t)
	manager := auth.NewTokenManager(repositories.NewTokenRepository(db, nil), nil)
	fx := newSyncFixture(t, manager, nil)

	result, err := fx.service.SyncComments(context.Background())
	require.ErrorIs(t, err, models.ErrNotAuthenticated)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "login first")
	assert.Equal(t, models.SyncFailed, fx.logStatus(t, result.SyncID))
}

func TestSyncTaskV2DedupesAndReplacesMembers(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t, staticUser{token: "user-token"}, nil)

	both := v2Task("g-1", "Shared",
		member("ou_1", "An", "assignee"),
		member("ou_2", "Binh", "assignee"),
		member("ou_3", "Chi", "follower"),
	)
	fx.lark.setMyTasks(false, both, v2Task("g-2", "Open only"))
	fx.lark.setMyTasks(true, both)

	result, err := fx.service.SyncTaskV2(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Items)
	assert.Equal(t, "Synced 2 tasks from Lark Task API v2", result.Message)
	assert.Equal(t, models.SyncSuccess, fx.logStatus(t, result.SyncID))

	members, err := fx.tasks.MembersFor(ctx, []string{"taskv2_g-1"})
	require.NoError(t, err)
	assert.Len(t, members["taskv2_g-1"], 3)

	fx.lark.setMyTasks(false, v2Task("g-1", "Shared", member("ou_1", "An", "assignee")))
	fx.lark.setMyTasks(true)
	_, err = fx.service.SyncTaskV2(ctx)
	require.NoError(t, err)

	members, err = fx.tasks.MembersFor(ctx, []string{"taskv2_g-1"})
	require.NoError(t, err)
	require.Len(t, members["taskv2_g-1"], 1)
	assert.Equal(t, models.RoleAssignee, members["taskv2_g-1"][0].Role)

	_, total, err := fx.tasks.List(ctx, repositories.TaskFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "tasks missing upstream are kept")

	assert.Contains(t, fx.lark.authorization, "Bearer user-token")
}

func TestSyncBitableKeepsGoingWhenOneTableFails(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t, staticUser{}, nil)
	fx.lark.tables["tblA"] = "Sprint"
	fx.lark.records["tblA"] = []item{
		{"record_id": "rec1", "fields": item{fieldTitle: "One", fieldCompletion: true}},
		{"record_id": "rec2", "fields": item{fieldTitle: "Two"}},
	}
	fx.lark.failRecords["tblB"] = true

	result, err := fx.service.SyncBitable(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Items)
	assert.Equal(t, 2, result.TableCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Unknown Table")

	stats, err := fx.tasks.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Contains(t, fx.lark.authorization, "Bearer tenant-token")
}

func TestSyncBitableFailsWhenEveryTableFails(t *testing.T) {
	fx := newSyncFixture(t, staticUser{}, nil)
	fx.lark.failRecords["tblA"] = true
	fx.lark.failRecords["tblB"] = true

	result, err := fx.service.SyncBitable(context.Background())
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.SyncFailed, fx.logStatus(t, result.SyncID))
}

func TestSyncCommentsResolvesGUIDs(t *testing.T) {
	ctx := context.Background()
	archive := &storage.LocalStorage{BasePath: t.TempDir()}
	fx := newSyncFixture(t, staticUser{token: "user-token"}, archive)

	require.NoError(t, fx.tasks.Upsert(ctx, &models.Task{
		ID: "taskv2_g-1", LarkGUID: testutil.Ptr("g-1"), Title: "A",
		Status: models.StatusPending, APISource: models.SourceTaskV2,
	}))
	require.NoError(t, fx.tasks.Upsert(ctx, &models.Task{
		ID: "bitable_rec1", Title: "B", Link: testutil.Ptr("https://applink.example/detail?GUID=ab-12"),
		Status: models.StatusPending, APISource: models.SourceBitable,
	}))
	require.NoError(t, fx.tasks.Upsert(ctx, &models.Task{
		ID: "bitable_rec2", Title: "C", Status: models.StatusPending, APISource: models.SourceBitable,
	}))

	fx.lark.comments["g-1"] = []item{
		{"id": "c1", "content": "first", "created_at": "1000"},
		{"id": "c2", "content": "reply", "created_at": "2000", "reply_to_comment_id": "c1",
			"creator": item{"id": "ou_1", "name": "An"}},
	}
	fx.lark.failComments["ab-12"] = true

	result, err := fx.service.SyncComments(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Items)
	assert.Equal(t, "Synced 2 comments from 2 tasks", result.Message)
	require.Len(t, result.Errors, 1)

	comments, total, err := fx.comments.ListForTask(ctx, "taskv2_g-1", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	var reply *models.Comment
	for i := range comments {
		if comments[i].ID == "c2" {
			reply = &comments[i]
		}
	}
	require.NotNil(t, reply)
	assert.Equal(t, "c1", *reply.ReplyToCommentID)
	assert.Equal(t, "An", reply.CreatorName)

	exists, err := archive.Exists(ctx, "comments/"+result.SyncID+".json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCommentTargets(t *testing.T) {
	targets := commentTargets([]repositories.TaskRef{
		{ID: "a", LarkGUID: testutil.Ptr("ab-1")},
		{ID: "b", Link: testutil.Ptr("https://x/?guid=ab-1")},
		{ID: "c", Link: testutil.Ptr("https://x/?guid=DEAD-beef")},
		{ID: "d"},
	})
	assert.Equal(t, []commentTarget{{TaskID: "a", GUID: "ab-1"}, {TaskID: "c", GUID: "DEAD-beef"}}, targets)
}

func TestSyncWithoutStore(t *testing.T) {
	s := NewSyncService(nil, nil, staticTenant{}, staticUser{}, nil, nil, nil, nil)
	result, err := s.SyncTaskV2(context.Background())
	require.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.False(t, result.Success)
}
