package service

import (
	"context"
	"fmt"
	"testing"

	"finbot/internal/dto"
	"finbot/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testIngestConfig() *config.IngestConfig {
	return &config.IngestConfig{ChunkSize: 5, ChunkOverlap: 1, Concurrency: 2}
}

func TestIngestAllSuccess(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{texts: map[string]string{
		"http://x/a.pdf": words(12),
		"http://x/b.pdf": words(3),
	}}
	ing := NewIngestor(extractor, &fakeBatchEmbedder{}, store, testIngestConfig(), zap.NewNop())

	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{
		{GRNo: "GR-A", Date: "17-04-2023", PDFURL: "http://x/a.pdf", Branch: "CH"},
		{GRNo: "GR-B", Date: "2023-05-01", PDFURL: "http://x/b.pdf", Branch: "CH"},
	})

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Partial)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Failures)

	require.Len(t, store.upserts, 2)
	byGR := make(map[string]int)
	for i, doc := range store.upserts {
		byGR[doc.GRNo] = i
	}
	// dates normalized before storage
	assert.Equal(t, "2023-04-17", store.upserts[byGR["GR-A"]].Date)
	assert.Equal(t, "2023-05-01", store.upserts[byGR["GR-B"]].Date)

	// 12 words at size 5 overlap 1 gives three chunks
	assert.Len(t, store.upsertChunks[byGR["GR-A"]], 3)
	assert.Len(t, store.upsertChunks[byGR["GR-B"]], 1)

	for i, chunk := range store.upsertChunks[byGR["GR-A"]] {
		assert.Equal(t, i, chunk.SeqIndex)
	}
}

func TestIngestReingestReplacesDocument(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{texts: map[string]string{"http://x/a.pdf": words(12)}}
	ing := NewIngestor(extractor, &fakeBatchEmbedder{}, store, testIngestConfig(), zap.NewNop())

	rec := dto.SourceRecord{GRNo: "GR-A", PDFURL: "http://x/a.pdf"}
	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{rec})
	require.Equal(t, 1, summary.Succeeded)

	// same GR again with shorter text replaces instead of duplicating
	extractor.texts["http://x/a.pdf"] = words(4)
	summary = ing.IngestAll(context.Background(), []dto.SourceRecord{rec})
	require.Equal(t, 1, summary.Succeeded)

	assert.Len(t, store.docs, 1)
	require.Len(t, store.upsertChunks, 2)
	assert.Len(t, store.upsertChunks[0], 3)
	assert.Len(t, store.upsertChunks[1], 1)
}

func TestIngestAllDownloadFailureIsContained(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{
		texts: map[string]string{"http://x/ok.pdf": words(8)},
		errs: map[string]error{
			"http://x/bad.pdf": &ExtractionError{Kind: ExtractionDownload, URL: "http://x/bad.pdf", Err: fmt.Errorf("status 404")},
		},
	}
	ing := NewIngestor(extractor, &fakeBatchEmbedder{}, store, testIngestConfig(), zap.NewNop())

	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{
		{GRNo: "GR-OK", PDFURL: "http://x/ok.pdf"},
		{GRNo: "GR-BAD", PDFURL: "http://x/bad.pdf"},
	})

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "GR-BAD", summary.Failures[0].GRNo)
	assert.Equal(t, "download", summary.Failures[0].Stage)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "GR-OK", store.upserts[0].GRNo)
}

func TestIngestAllUnreadableStage(t *testing.T) {
	extractor := &fakeExtractor{errs: map[string]error{
		"http://x/garbled.pdf": &ExtractionError{Kind: ExtractionUnreadable, Err: fmt.Errorf("no usable text")},
	}}
	ing := NewIngestor(extractor, &fakeBatchEmbedder{}, newFakeStore(), testIngestConfig(), zap.NewNop())

	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{
		{GRNo: "GR-G", PDFURL: "http://x/garbled.pdf"},
	})
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "extract", summary.Failures[0].Stage)
}

func TestIngestAllPartialEmbedding(t *testing.T) {
	store := newFakeStore()
	text := words(12) // chunks: w0..w4, w4..w8, w8..w11
	extractor := &fakeExtractor{texts: map[string]string{"http://x/a.pdf": text}}
	embedder := &fakeBatchEmbedder{failTexts: map[string]error{
		"w4 w5 w6 w7 w8": fmt.Errorf("embedding rejected"),
	}}
	ing := NewIngestor(extractor, embedder, store, testIngestConfig(), zap.NewNop())

	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{
		{GRNo: "GR-P", PDFURL: "http://x/a.pdf"},
	})

	assert.Equal(t, 1, summary.Partial)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Succeeded)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "embed", summary.Failures[0].Stage)
	assert.Contains(t, summary.Failures[0].Reason, "1 of 3")

	// the surviving chunks are stored with dense zero-based indexes
	require.Len(t, store.upsertChunks, 1)
	chunks := store.upsertChunks[0]
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].SeqIndex)
	assert.Equal(t, 1, chunks[1].SeqIndex)
	assert.Equal(t, "w0 w1 w2 w3 w4", chunks[0].Text)
	assert.Equal(t, "w8 w9 w10 w11", chunks[1].Text)
}

func TestIngestAllEmbeddingTotalFailure(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{texts: map[string]string{"http://x/a.pdf": words(4)}}
	embedder := &fakeBatchEmbedder{failTexts: map[string]error{
		"w0 w1 w2 w3": fmt.Errorf("rejected"),
	}}
	ing := NewIngestor(extractor, embedder, store, testIngestConfig(), zap.NewNop())

	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{
		{GRNo: "GR-F", PDFURL: "http://x/a.pdf"},
	})
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, store.upserts)
}

func TestIngestAllValidatesRecords(t *testing.T) {
	ing := NewIngestor(&fakeExtractor{}, &fakeBatchEmbedder{}, newFakeStore(), testIngestConfig(), zap.NewNop())

	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{
		{GRNo: "", PDFURL: "http://x/a.pdf"},
		{GRNo: "GR-1", PDFURL: ""},
	})
	assert.Equal(t, 2, summary.Failed)
	for _, failure := range summary.Failures {
		assert.Equal(t, "validate", failure.Stage)
	}
}

func TestIngestAllStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = fmt.Errorf("connection refused")
	extractor := &fakeExtractor{texts: map[string]string{"http://x/a.pdf": words(4)}}
	ing := NewIngestor(extractor, &fakeBatchEmbedder{}, store, testIngestConfig(), zap.NewNop())

	summary := ing.IngestAll(context.Background(), []dto.SourceRecord{
		{GRNo: "GR-S", PDFURL: "http://x/a.pdf"},
	})
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "store", summary.Failures[0].Stage)
}
