package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hubtask/config"
	jobs "hubtask/job"
	"hubtask/models"
	"hubtask/repositories"

	"golang.org/x/oauth2"
	"gorm.io/datatypes"
)

const (
	embeddingBatchSize = 100
	embeddingTaskLimit = 1000
)

var ErrEmbeddingsNotConfigured = errors.New("embedding model or vector index not configured")

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}

// WorkersAIEmbedder calls a Cloudflare Workers AI text-embedding model.
type WorkersAIEmbedder struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

const workersAIBaseURL = "https://api.cloudflare.com/client/v4"

// NewWorkersAIEmbedder returns nil when the account or token is missing.
func NewWorkersAIEmbedder(cfg *config.Config, base *http.Client) *WorkersAIEmbedder {
	if !cfg.EmbeddingsConfigured() {
		return nil
	}
	return newWorkersAIEmbedder(workersAIBaseURL, cfg.CFAccountID, cfg.CFAPIToken, cfg.EmbeddingModel, base)
}

func newWorkersAIEmbedder(baseURL, accountID, apiToken, model string, base *http.Client) *WorkersAIEmbedder {
	transport := http.DefaultTransport
	client := &http.Client{}
	if base != nil {
		client.Timeout = base.Timeout
		if base.Transport != nil {
			transport = base.Transport
		}
	}
	client.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiToken, TokenType: "Bearer"}),
		Base:   transport,
	}
	return &WorkersAIEmbedder{
		endpoint:   fmt.Sprintf("%s/accounts/%s/ai/run/%s", strings.TrimRight(baseURL, "/"), accountID, model),
		model:      model,
		httpClient: client,
	}
}

func (e *WorkersAIEmbedder) Model() string { return e.model }

type workersAIResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Data [][]float64 `json:"data"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *WorkersAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(map[string][]string{"text": texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out workersAIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &models.UpstreamError{Status: resp.StatusCode, Msg: "invalid JSON response", Body: raw}
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		msg := http.StatusText(resp.StatusCode)
		if len(out.Errors) > 0 {
			msg = out.Errors[0].Message
		}
		return nil, &models.UpstreamError{Status: resp.StatusCode, Msg: msg, Body: raw}
	}
	if len(out.Result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(out.Result.Data))
	}
	return out.Result.Data, nil
}

// EmbeddingText is the text a task is embedded as.
func EmbeddingText(task models.Task) string {
	parts := []string{orDefault(task.Title, "Untitled")}
	if task.Description != "" {
		parts = append(parts, task.Description)
	}
	if task.ProjectName != "" {
		parts = append(parts, "Project: "+task.ProjectName)
	}
	parts = append(parts, "Status: "+string(task.Status))
	if task.Priority != nil {
		parts = append(parts, "Priority: "+string(*task.Priority))
	}
	return strings.Join(parts, " | ")
}

// EmbeddingService keeps the vector index in step with the newest tasks.
type EmbeddingService struct {
	embedder Embedder
	index    repositories.EmbeddingRepository
	tasks    repositories.TaskRepository
	recorder *recorder
}

func NewEmbeddingService(
	embedder Embedder,
	index repositories.EmbeddingRepository,
	tasks repositories.TaskRepository,
	logs repositories.SyncLogRepository,
) *EmbeddingService {
	return &EmbeddingService{
		embedder: embedder,
		index:    index,
		tasks:    tasks,
		recorder: &recorder{logs: logs},
	}
}

// Enabled reports whether embeddings can be generated and stored.
func (s *EmbeddingService) Enabled() bool {
	return s != nil && s.embedder != nil && s.index != nil && s.tasks != nil
}

// SyncEmbeddings embeds the most recently updated tasks in batches. A failed
// batch is reported and skipped.
func (s *EmbeddingService) SyncEmbeddings(ctx context.Context) (*SyncResult, error) {
	if !s.Enabled() {
		return &SyncResult{Error: ErrEmbeddingsNotConfigured.Error()}, ErrEmbeddingsNotConfigured
	}
	return s.recorder.run(ctx, models.SyncTypeEmbeddings, func(ctx context.Context, syncID string) (*SyncResult, error) {
		tasks, err := s.tasks.Recent(ctx, embeddingTaskLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load tasks: %w", err)
		}

		written := 0
		batches := jobs.NewBatchProcessor(embeddingBatchSize, 0, func(ctx context.Context, batch []models.Task) error {
			n, err := s.embedBatch(ctx, batch)
			written += n
			return err
		})
		var errs []string
		for _, err := range batches.ProcessInBatches(ctx, tasks) {
			errs = append(errs, err.Error())
		}

		return &SyncResult{
			Message: fmt.Sprintf("Embedded %d of %d tasks", written, len(tasks)),
			Items:   written,
			Errors:  errs,
		}, nil
	})
}

func (s *EmbeddingService) embedBatch(ctx context.Context, batch []models.Task) (int, error) {
	texts := make([]string, len(batch))
	for i, task := range batch {
		texts[i] = EmbeddingText(task)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	rows := make([]models.TaskEmbedding, len(batch))
	for i, task := range batch {
		vec, err := json.Marshal(vectors[i])
		if err != nil {
			return 0, err
		}
		row := models.TaskEmbedding{
			TaskID:  task.ID,
			Model:   s.embedder.Model(),
			Vector:  datatypes.JSON(vec),
			Title:   task.Title,
			Status:  string(task.Status),
			Project: task.ProjectName,
		}
		if task.Priority != nil {
			row.Priority = string(*task.Priority)
		}
		rows[i] = row
	}
	if err := s.index.Upsert(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to store vectors: %w", err)
	}
	return len(rows), nil
}

// Nearest embeds query and returns the topK closest tasks.
func (s *EmbeddingService) Nearest(ctx context.Context, query string, topK int) ([]repositories.VectorMatch, error) {
	if !s.Enabled() {
		return nil, ErrEmbeddingsNotConfigured
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return s.index.Query(ctx, vectors[0], topK)
}
