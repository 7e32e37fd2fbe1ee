package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finbot/internal/dto"
	"finbot/internal/models"
	"finbot/pkg/config"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TextExtractor is the extraction surface the pipeline depends on.
type TextExtractor interface {
	ExtractFromURL(ctx context.Context, pdfURL string) (string, error)
}

// ChunkEmbedder embeds many texts with per-text failure reporting.
type ChunkEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) []EmbeddingResult
}

// Ingestor runs the full pipeline for a batch of source records:
// download and extract, chunk, embed, upsert. Documents are processed
// concurrently and one bad document never sinks the batch.
type Ingestor struct {
	extractor   TextExtractor
	chunker     *Chunker
	embedder    ChunkEmbedder
	store       DocumentStore
	concurrency int
	logger      *zap.Logger
}

func NewIngestor(extractor TextExtractor, embedder ChunkEmbedder, store DocumentStore, cfg *config.IngestConfig, logger *zap.Logger) *Ingestor {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Ingestor{
		extractor:   extractor,
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder:    embedder,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
	}
}

type ingestOutcome struct {
	partial bool
	failure *dto.IngestFailure
}

// IngestAll processes records concurrently and returns per-batch
// counts. Records with an empty GR number or PDF URL are rejected
// before any network traffic.
func (ing *Ingestor) IngestAll(ctx context.Context, records []dto.SourceRecord) *dto.IngestSummary {
	outcomes := make([]ingestOutcome, len(records))

	var g errgroup.Group
	g.SetLimit(ing.concurrency)

	for i := range records {
		i := i
		g.Go(func() error {
			outcomes[i] = ing.ingestOne(ctx, records[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := &dto.IngestSummary{Total: len(records)}
	for _, out := range outcomes {
		switch {
		case out.failure != nil && !out.partial:
			summary.Failed++
			summary.Failures = append(summary.Failures, *out.failure)
		case out.partial:
			summary.Partial++
			if out.failure != nil {
				summary.Failures = append(summary.Failures, *out.failure)
			}
		default:
			summary.Succeeded++
		}
	}

	ing.logger.Info("Ingestion batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func (ing *Ingestor) ingestOne(ctx context.Context, rec dto.SourceRecord) ingestOutcome {
	fail := func(stage string, err error) ingestOutcome {
		ing.logger.Warn("Document ingestion failed",
			zap.String("gr_no", rec.GRNo),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return ingestOutcome{failure: &dto.IngestFailure{
			GRNo:   rec.GRNo,
			Stage:  stage,
			Reason: err.Error(),
		}}
	}

	if rec.GRNo == "" || rec.PDFURL == "" {
		return fail("validate", fmt.Errorf("gr_no and pdf_url are required"))
	}

	text, err := ing.extractor.ExtractFromURL(ctx, rec.PDFURL)
	if err != nil {
		var exErr *ExtractionError
		stage := "extract"
		if errors.As(err, &exErr) && exErr.Kind == ExtractionDownload {
			stage = "download"
		}
		return fail(stage, err)
	}

	pieces := ing.chunker.Split(text)
	if len(pieces) == 0 {
		return fail("extract", fmt.Errorf("document produced no text"))
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	results := ing.embedder.EmbedAll(ctx, texts)

	// Surviving chunks are renumbered so stored sequence indexes stay
	// dense and zero-based even when some embeddings failed.
	var chunks []models.Chunk
	var embedFailed int
	for i, res := range results {
		if res.Err != nil {
			embedFailed++
			ing.logger.Warn("Chunk embedding failed",
				zap.String("gr_no", rec.GRNo),
				zap.Int("chunk_index", pieces[i].Index),
				zap.Error(res.Err),
			)
			continue
		}
		chunks = append(chunks, models.Chunk{
			SeqIndex:   len(chunks),
			Text:       pieces[i].Text,
			TokenCount: pieces[i].TokenCount,
			Embedding:  pgvector.NewVector(res.Vector),
		})
	}
	if len(chunks) == 0 {
		return fail("embed", fmt.Errorf("all %d chunks failed to embed", len(pieces)))
	}

	doc := &models.Document{
		GRNo:      rec.GRNo,
		Date:      NormalizeDate(rec.Date),
		Branch:    rec.Branch,
		SubjectEn: normalizeText(rec.SubjectEn),
		SubjectGu: normalizeText(rec.SubjectGu),
		PDFURL:    rec.PDFURL,
	}
	if err := ing.store.UpsertDocument(ctx, doc, chunks); err != nil {
		return fail("store", err)
	}

	ing.logger.Info("Document ingested",
		zap.String("gr_no", rec.GRNo),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunks_failed", embedFailed),
	)

	if embedFailed > 0 {
		return ingestOutcome{
			partial: true,
			failure: &dto.IngestFailure{
				GRNo:   rec.GRNo,
				Stage:  "embed",
				Reason: fmt.Sprintf("%d of %d chunks failed to embed", embedFailed, len(pieces)),
			},
		}
	}
	return ingestOutcome{}
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	"02 Jan 2006",
	"2 January 2006",
}

// NormalizeDate rewrites parseable dates to YYYY-MM-DD so that lexical
// ordering matches chronological ordering. Unparseable input is kept
// verbatim rather than dropped.
func NormalizeDate(date string) string {
	if date == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return date
}
