package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"hubtask/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VectorMatch is one nearest-neighbour hit from the embedding index.
type VectorMatch struct {
	ID    string
	Score float64
}

// EmbeddingRepository is the store-backed vector index.
type EmbeddingRepository interface {
	Upsert(ctx context.Context, embeddings []models.TaskEmbedding) error
	Query(ctx context.Context, vector []float64, topK int) ([]VectorMatch, error)
	Count(ctx context.Context) (int64, error)
}

type embeddingRepositoryImpl struct {
	db *gorm.DB
}

func NewEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepositoryImpl{db: db}
}

func (r *embeddingRepositoryImpl) Upsert(ctx context.Context, embeddings []models.TaskEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		UpdateAll: true,
	}).Create(&embeddings).Error
}

// Query scans the whole index and ranks by cosine similarity. The index holds
// at most the newest thousand tasks, so a linear scan is enough.
func (r *embeddingRepositoryImpl) Query(ctx context.Context, vector []float64, topK int) ([]VectorMatch, error) {
	var rows []models.TaskEmbedding
	if err := r.db.WithContext(ctx).Select("task_id", "vector").Find(&rows).Error; err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(rows))
	for _, row := range rows {
		var stored []float64
		if err := json.Unmarshal(row.Vector, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode vector for %s: %w", row.TaskID, err)
		}
		matches = append(matches, VectorMatch{ID: row.TaskID, Score: Cosine(vector, stored)})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (r *embeddingRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.TaskEmbedding{}).Count(&n).Error
	return n, err
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
