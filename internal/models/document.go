package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document is a government resolution identified by its GR number.
// Date is kept as text because source records arrive in several layouts;
// ingestion normalizes parseable dates to YYYY-MM-DD so that lexical
// ordering matches chronological ordering.
type Document struct {
	ID        uuid.UUID `db:"id"`
	GRNo      string    `db:"gr_no"`
	Date      string    `db:"date"`
	Branch    string    `db:"branch"`
	SubjectEn string    `db:"subject_en"`
	SubjectGu string    `db:"subject_gu"`
	PDFURL    string    `db:"pdf_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Chunk is one embedded fragment of a document's extracted text.
// SeqIndex values are dense and zero-based within a document.
type Chunk struct {
	ID         uuid.UUID       `db:"id"`
	DocumentID uuid.UUID       `db:"document_id"`
	SeqIndex   int             `db:"seq_index"`
	Text       string          `db:"text"`
	TokenCount int             `db:"token_count"`
	Embedding  pgvector.Vector `db:"embedding"`
}

// VectorMatch is a chunk returned by nearest-neighbor search together
// with its owning document and cosine similarity to the query vector.
type VectorMatch struct {
	Document   Document
	Chunk      Chunk
	Similarity float64
}

// StoreStats are aggregate counts over the document store.
type StoreStats struct {
	TotalDocuments     int64            `json:"total_documents"`
	TotalChunks        int64            `json:"total_chunks"`
	DocumentsPerBranch map[string]int64 `json:"documents_per_branch"`
}
