package repository

import (
	"context"
	"errors"
	"time"

	"finbot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertDocument stores a document and its chunks in one transaction.
// A second upsert of the same GR number replaces the chunk set instead
// of appending to it, and readers never observe the document without
// its full chunk set.
func (r *DocumentRepository) UpsertDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrapStoreErr("upsert begin", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	var docID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (id, gr_no, date, branch, subject_en, subject_gu, pdf_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (gr_no) DO UPDATE SET
			date = EXCLUDED.date,
			branch = EXCLUDED.branch,
			subject_en = EXCLUDED.subject_en,
			subject_gu = EXCLUDED.subject_gu,
			pdf_url = EXCLUDED.pdf_url,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		doc.ID, doc.GRNo, doc.Date, doc.Branch, doc.SubjectEn, doc.SubjectGu, doc.PDFURL, doc.CreatedAt, doc.UpdatedAt,
	).Scan(&docID)
	if err != nil {
		return wrapStoreErr("upsert document", err)
	}
	doc.ID = docID

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return wrapStoreErr("replace chunks", err)
	}

	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.DocumentID = docID
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, seq_index, text, token_count, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.DocumentID, c.SeqIndex, c.Text, c.TokenCount, c.Embedding,
		)
		if err != nil {
			return wrapStoreErr("insert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapStoreErr("upsert commit", err)
	}

	r.logger.Debug("Document upserted",
		zap.String("gr_no", doc.GRNo),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

var documentColumns = []string{"id", "gr_no", "date", "branch", "subject_en", "subject_gu", "pdf_url", "created_at", "updated_at"}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID, &doc.GRNo, &doc.Date, &doc.Branch, &doc.SubjectEn, &doc.SubjectGu, &doc.PDFURL, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByGR returns the document with the exact GR number, or (nil, nil)
// when absent.
func (r *DocumentRepository) GetByGR(ctx context.Context, grNo string) (*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"gr_no": grNo}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrapStoreErr("get by gr", err)
	}

	doc, err := scanDocument(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStoreErr("get by gr", err)
	}
	return doc, nil
}

// FilterSearch applies hard metadata filters and orders candidates by
// recency. Empty filter arguments are skipped. Subject matching is a
// case-insensitive substring match over both subject languages.
func (r *DocumentRepository) FilterSearch(ctx context.Context, branch, dateFrom, dateTo, subject string, limit int) ([]models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		OrderBy("date DESC", "gr_no ASC").
		PlaceholderFormat(squirrel.Dollar)

	if branch != "" {
		query = query.Where(squirrel.Eq{"branch": branch})
	}
	if dateFrom != "" {
		query = query.Where(squirrel.GtOrEq{"date": dateFrom})
	}
	if dateTo != "" {
		query = query.Where(squirrel.LtOrEq{"date": dateTo})
	}
	if subject != "" {
		pattern := "%" + subject + "%"
		query = query.Where(squirrel.Or{
			squirrel.ILike{"subject_en": pattern},
			squirrel.ILike{"subject_gu": pattern},
		})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrapStoreErr("filter search", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapStoreErr("filter search", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, wrapStoreErr("filter search scan", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("filter search rows", err)
	}
	return docs, nil
}

// VectorSearch returns chunks ordered by descending cosine similarity
// to the query vector, excluding everything below the threshold.
// Squirrel cannot express the pgvector `<=>` operator, so the query is
// written by hand.
func (r *DocumentRepository) VectorSearch(ctx context.Context, queryVec []float32, threshold float64, limit int) ([]models.VectorMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	qv := pgvector.NewVector(queryVec)

	rows, err := r.db.Query(ctx, `
		SELECT d.id, d.gr_no, d.date, d.branch, d.subject_en, d.subject_gu, d.pdf_url, d.created_at, d.updated_at,
		       c.id, c.document_id, c.seq_index, c.text, c.token_count,
		       1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE 1 - (c.embedding <=> $1) >= $2
		ORDER BY similarity DESC, d.date DESC
		LIMIT $3`,
		qv, threshold, limit,
	)
	if err != nil {
		return nil, wrapStoreErr("vector search", err)
	}
	return collectVectorMatches("vector search", rows)
}

// VectorSearchIn ranks chunks of the given documents only. A zero
// threshold turns it into a pure ranking pass over the candidate set.
func (r *DocumentRepository) VectorSearchIn(ctx context.Context, queryVec []float32, docIDs []uuid.UUID, threshold float64, limit int) ([]models.VectorMatch, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	qv := pgvector.NewVector(queryVec)

	rows, err := r.db.Query(ctx, `
		SELECT d.id, d.gr_no, d.date, d.branch, d.subject_en, d.subject_gu, d.pdf_url, d.created_at, d.updated_at,
		       c.id, c.document_id, c.seq_index, c.text, c.token_count,
		       1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.document_id = ANY($2) AND 1 - (c.embedding <=> $1) >= $3
		ORDER BY similarity DESC, d.date DESC
		LIMIT $4`,
		qv, docIDs, threshold, limit,
	)
	if err != nil {
		return nil, wrapStoreErr("vector search in", err)
	}
	return collectVectorMatches("vector search in", rows)
}

func collectVectorMatches(op string, rows pgx.Rows) ([]models.VectorMatch, error) {
	defer rows.Close()

	var matches []models.VectorMatch
	for rows.Next() {
		var m models.VectorMatch
		err := rows.Scan(
			&m.Document.ID, &m.Document.GRNo, &m.Document.Date, &m.Document.Branch,
			&m.Document.SubjectEn, &m.Document.SubjectGu, &m.Document.PDFURL,
			&m.Document.CreatedAt, &m.Document.UpdatedAt,
			&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.SeqIndex, &m.Chunk.Text, &m.Chunk.TokenCount,
			&m.Similarity,
		)
		if err != nil {
			return nil, wrapStoreErr(op+" scan", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(op+" rows", err)
	}
	return matches, nil
}

// Stats returns aggregate document and chunk counts.
func (r *DocumentRepository) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{
		DocumentsPerBranch: make(map[string]int64),
	}

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments); err != nil {
		return nil, wrapStoreErr("stats documents", err)
	}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.TotalChunks); err != nil {
		return nil, wrapStoreErr("stats chunks", err)
	}

	rows, err := r.db.Query(ctx, `SELECT branch, COUNT(*) FROM documents GROUP BY branch ORDER BY branch`)
	if err != nil {
		return nil, wrapStoreErr("stats branches", err)
	}
	defer rows.Close()

	for rows.Next() {
		var branch string
		var count int64
		if err := rows.Scan(&branch, &count); err != nil {
			return nil, wrapStoreErr("stats branches scan", err)
		}
		stats.DocumentsPerBranch[branch] = count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("stats branches rows", err)
	}
	return stats, nil
}

// Clear removes all documents; chunks go with them via cascade.
func (r *DocumentRepository) Clear(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM documents`); err != nil {
		return wrapStoreErr("clear", err)
	}
	r.logger.Warn("Document store cleared")
	return nil
}
