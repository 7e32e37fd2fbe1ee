package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"finbot/internal/models"
	"finbot/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentStore is the persistence surface the services depend on.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
	GetByGR(ctx context.Context, grNo string) (*models.Document, error)
	FilterSearch(ctx context.Context, branch, dateFrom, dateTo, subject string, limit int) ([]models.Document, error)
	VectorSearch(ctx context.Context, queryVec []float32, threshold float64, limit int) ([]models.VectorMatch, error)
	VectorSearchIn(ctx context.Context, queryVec []float32, docIDs []uuid.UUID, threshold float64, limit int) ([]models.VectorMatch, error)
	Stats(ctx context.Context) (*models.StoreStats, error)
	Clear(ctx context.Context) error
}

// QueryEmbedder embeds a single query string into the chunk vector
// space.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RetrievalService resolves a structured query against the store. The
// resolution order is fixed: an exact GR number short-circuits
// everything, metadata filters narrow the candidate set next, and
// vector search is the last resort. When filters and a semantic query
// are both present the filtered candidates are re-ranked by
// similarity instead of recency.
type RetrievalService struct {
	store     DocumentStore
	embedder  QueryEmbedder
	threshold float64
	topK      int
	logger    *zap.Logger
}

func NewRetrievalService(store DocumentStore, embedder QueryEmbedder, cfg *config.RetrievalConfig, logger *zap.Logger) *RetrievalService {
	return &RetrievalService{
		store:     store,
		embedder:  embedder,
		threshold: cfg.SimilarityThreshold,
		topK:      cfg.TopK,
		logger:    logger,
	}
}

var yearOnly = regexp.MustCompile(`^\d{4}$`)

// dateRange widens a bare year into a full-year range. A parseable
// full date collapses to a single-day range; anything else is passed
// through as both bounds so lexical comparison still applies.
func dateRange(date string) (string, string) {
	if date == "" {
		return "", ""
	}
	if yearOnly.MatchString(date) {
		return date + "-01-01", date + "-12-31"
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		d := t.Format("2006-01-02")
		return d, d
	}
	return date, date
}

// Retrieve resolves the query and returns ranked candidates.
func (s *RetrievalService) Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.RetrievalResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.topK
	}
	threshold := q.Threshold
	if threshold <= 0 {
		threshold = s.threshold
	}

	if q.GRNo != "" {
		doc, err := s.store.GetByGR(ctx, q.GRNo)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve GR number: %w", err)
		}
		if doc != nil {
			return []models.RetrievalResult{{Document: *doc, Score: 1.0}}, nil
		}
		s.logger.Debug("GR number not found, falling through",
			zap.String("gr_no", q.GRNo),
		)
	}

	if q.HasFilters() {
		dateFrom, dateTo := dateRange(q.Date)
		docs, err := s.store.FilterSearch(ctx, q.Branch, dateFrom, dateTo, q.Subject, limit)
		if err != nil {
			return nil, fmt.Errorf("filter search failed: %w", err)
		}
		if len(docs) > 0 {
			if q.Semantic != "" {
				return s.rankFiltered(ctx, docs, q.Semantic, limit)
			}
			results := make([]models.RetrievalResult, len(docs))
			for i, doc := range docs {
				results[i] = models.RetrievalResult{Document: doc}
			}
			return results, nil
		}
		s.logger.Debug("Metadata filters matched nothing, falling through")
	}

	if q.Semantic == "" {
		return nil, nil
	}
	return s.SemanticSearch(ctx, q.Semantic, threshold, limit)
}

// rankFiltered orders filter-matched documents by their best chunk's
// similarity to the semantic query. The threshold is not applied here:
// filters already narrowed the candidates, so this is a ranking pass,
// and candidates whose chunks never matched trail the ranked ones.
func (s *RetrievalService) rankFiltered(ctx context.Context, docs []models.Document, query string, limit int) ([]models.RetrievalResult, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ids := make([]uuid.UUID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}

	matches, err := s.store.VectorSearchIn(ctx, vec, ids, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(docs))
	var results []models.RetrievalResult
	for _, m := range matches {
		if seen[m.Document.ID] {
			continue
		}
		seen[m.Document.ID] = true
		chunk := m.Chunk
		results = append(results, models.RetrievalResult{
			Document: m.Document,
			Chunk:    &chunk,
			Score:    m.Similarity,
		})
	}
	for _, doc := range docs {
		if len(results) >= limit {
			break
		}
		if !seen[doc.ID] {
			seen[doc.ID] = true
			results = append(results, models.RetrievalResult{Document: doc})
		}
	}
	return results, nil
}

// SemanticSearch embeds the query and runs vector search directly,
// bypassing the resolution order.
func (s *RetrievalService) SemanticSearch(ctx context.Context, query string, threshold float64, limit int) ([]models.RetrievalResult, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	if limit <= 0 {
		limit = s.topK
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.store.VectorSearch(ctx, vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]models.RetrievalResult, len(matches))
	for i, m := range matches {
		chunk := m.Chunk
		results[i] = models.RetrievalResult{
			Document: m.Document,
			Chunk:    &chunk,
			Score:    m.Similarity,
		}
	}
	return results, nil
}
