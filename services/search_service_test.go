package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hubtask/models"
	"hubtask/repositories"
	"hubtask/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder maps text onto two axes: "deploy" and everything else.
type keywordEmbedder struct {
	err error
}

func (e keywordEmbedder) Model() string { return "test-model" }

func (e keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if strings.Contains(strings.ToLower(text), "deploy") {
			out[i] = []float64{1, 0}
		} else {
			out[i] = []float64{0, 1}
		}
	}
	return out, nil
}

func seedSearchTasks(t *testing.T, tasks repositories.TaskRepository) {
	ctx := context.Background()
	for _, task := range []models.Task{
		{ID: "t1", Title: "Deploy API", Status: models.StatusPending, APISource: models.SourceTaskV2, UpdatedAt: 1},
		{ID: "t2", Title: "Docs", Description: "how to deploy", Status: models.StatusCompleted, APISource: models.SourceTaskV2, UpdatedAt: 2},
		{ID: "t3", Title: "Budget", ProjectName: "Deploy wave", Status: models.StatusPending, APISource: models.SourceBitable, UpdatedAt: 3},
		{ID: "t4", Title: "Lunch", Status: models.StatusPending, APISource: models.SourceBitable, UpdatedAt: 4},
	} {
		require.NoError(t, tasks.Upsert(ctx, &task))
	}
	require.NoError(t, tasks.UpsertWithMembers(ctx, &models.Task{
		ID: "t1", Title: "Deploy API", Status: models.StatusPending, APISource: models.SourceTaskV2, UpdatedAt: 1,
	}, []models.TaskMember{{ID: "t1_assignee_ou_1", TaskID: "t1", UserName: "An", Role: models.RoleAssignee}}))
}

func TestTextSearchScoresAndAttachesMembers(t *testing.T) {
	tasks := repositories.NewTaskRepository(testutil.NewDB(t))
	seedSearchTasks(t, tasks)
	s := NewSearchService(tasks, nil, true)

	result, err := s.Search(context.Background(), SearchRequest{Query: "deploy"})
	require.NoError(t, err)
	assert.Equal(t, SearchTypeText, result.SearchType)
	require.Equal(t, 3, result.Total)
	assert.Equal(t, "t1", result.Tasks[0].ID)
	assert.Equal(t, 10.0, *result.Tasks[0].RelevanceScore)
	assert.Equal(t, "An", result.Tasks[0].Owner)
	assert.Equal(t, "t2", result.Tasks[1].ID)
	assert.Equal(t, "t3", result.Tasks[2].ID)

	filtered, err := s.Search(context.Background(), SearchRequest{Query: "deploy", Status: "completed"})
	require.NoError(t, err)
	require.Len(t, filtered.Tasks, 1)
	assert.Equal(t, "t2", filtered.Tasks[0].ID)
}

func TestSearchRequiresQuery(t *testing.T) {
	s := NewSearchService(repositories.NewTaskRepository(testutil.NewDB(t)), nil, false)
	_, err := s.Search(context.Background(), SearchRequest{Query: "  "})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSemanticSearch(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	tasks := repositories.NewTaskRepository(db)
	seedSearchTasks(t, tasks)

	embeddings := NewEmbeddingService(keywordEmbedder{}, repositories.NewEmbeddingRepository(db), tasks, repositories.NewSyncLogRepository(db))
	synced, err := embeddings.SyncEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, synced.Items)

	result, err := NewSearchService(tasks, embeddings, true).Search(ctx, SearchRequest{Query: "deploy", Limit: 2, Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, SearchTypeSemantic, result.SearchType)
	require.Len(t, result.Tasks, 2)
	assert.ElementsMatch(t, []string{"t1", "t3"}, []string{result.Tasks[0].ID, result.Tasks[1].ID})
	assert.InDelta(t, 1.0, *result.Tasks[0].RelevanceScore, 1e-9)
}

func TestSemanticSearchFallsBackToText(t *testing.T) {
	db := testutil.NewDB(t)
	tasks := repositories.NewTaskRepository(db)
	seedSearchTasks(t, tasks)
	embeddings := NewEmbeddingService(keywordEmbedder{err: errors.New("model unavailable")}, repositories.NewEmbeddingRepository(db), tasks, nil)

	result, err := NewSearchService(tasks, embeddings, true).Search(context.Background(), SearchRequest{Query: "lunch"})
	require.NoError(t, err)
	assert.Equal(t, SearchTypeText, result.SearchType)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, "t4", result.Tasks[0].ID)
}
