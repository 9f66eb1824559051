package services

import (
	"context"
	"sort"
	"strings"

	"hubtask/models"
	"hubtask/repositories"

	"github.com/sirupsen/logrus"
)

const (
	SearchTypeText     = "text"
	SearchTypeSemantic = "semantic"
)

type SearchRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Status string `json:"status"`
}

type SearchResult struct {
	Success    bool       `json:"success"`
	Tasks      []TaskView `json:"tasks"`
	Total      int        `json:"total"`
	SearchType string     `json:"searchType"`
}

// SearchService answers free-text queries over the local store.
type SearchService struct {
	tasks      repositories.TaskRepository
	embeddings *EmbeddingService
	semantic   bool
}

// NewSearchService enables the vector path only when semantic is set and
// embeddings are usable.
func NewSearchService(tasks repositories.TaskRepository, embeddings *EmbeddingService, semantic bool) *SearchService {
	return &SearchService{tasks: tasks, embeddings: embeddings, semantic: semantic}
}

// Search tries the vector path first when enabled and falls back to text
// scoring on any error from it.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if s.tasks == nil {
		return nil, models.ErrStoreUnavailable
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, &models.ValidationError{Field: "query", Message: "Missing query parameter"}
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	if s.semantic && s.embeddings.Enabled() {
		result, err := s.semanticSearch(ctx, req)
		if err == nil {
			return result, nil
		}
		logrus.WithFields(logrus.Fields{"query": req.Query, "error": err}).Warn("Semantic search failed, using text search")
	}
	return s.textSearch(ctx, req)
}

func (s *SearchService) textSearch(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	hits, err := s.tasks.TextSearch(ctx, req.Query, req.Status, req.Limit)
	if err != nil {
		return nil, err
	}
	tasks := make([]models.Task, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, hit := range hits {
		tasks[i] = hit.Task
		scores[hit.ID] = hit.RelevanceScore
	}
	views, err := s.views(ctx, tasks, scores)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Success: true, Tasks: views, Total: len(views), SearchType: SearchTypeText}, nil
}

func (s *SearchService) semanticSearch(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	matches, err := s.embeddings.Nearest(ctx, req.Query, req.Limit*2)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &SearchResult{Success: true, Tasks: []TaskView{}, SearchType: SearchTypeSemantic}, nil
	}

	ids := make([]string, len(matches))
	scores := make(map[string]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
		scores[m.ID] = m.Score
	}
	tasks, err := s.tasks.FindByIDs(ctx, ids, req.Status)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return scores[tasks[i].ID] > scores[tasks[j].ID]
	})
	if len(tasks) > req.Limit {
		tasks = tasks[:req.Limit]
	}

	views, err := s.views(ctx, tasks, scores)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Success: true, Tasks: views, Total: len(views), SearchType: SearchTypeSemantic}, nil
}

func (s *SearchService) views(ctx context.Context, tasks []models.Task, scores map[string]float64) ([]TaskView, error) {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	members, err := s.tasks.MembersFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = NewTaskView(t, members[t.ID])
		score := scores[t.ID]
		views[i].RelevanceScore = &score
	}
	return views, nil
}
