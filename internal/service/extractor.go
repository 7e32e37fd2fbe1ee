package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strings"

	"finbot/pkg/config"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

type ExtractionErrorKind string

const (
	// ExtractionDownload means the PDF could not be fetched at all.
	ExtractionDownload ExtractionErrorKind = "download"
	// ExtractionUnreadable means every extraction strategy failed or
	// produced garbled output.
	ExtractionUnreadable ExtractionErrorKind = "unreadable"
)

type ExtractionError struct {
	Kind ExtractionErrorKind
	URL  string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// extractionStrategy is one pure text-producing attempt over PDF
// bytes. Strategies are tried in order behind a shared quality gate.
type extractionStrategy struct {
	name    string
	extract func(ctx context.Context, pdf []byte) (string, error)
}

// Extractor turns a PDF byte stream into normalized UTF-8 text. It
// tries structural extraction first and falls back to OCR when the
// output is empty or mostly garble.
type Extractor struct {
	httpClient    *http.Client
	strategies    []extractionStrategy
	minAlphaRatio float64
	ocrLanguages  []string
	ocrDPI        float64
	logger        *zap.Logger
}

func NewExtractor(cfg *config.ExtractConfig, logger *zap.Logger) *Extractor {
	e := &Extractor{
		httpClient:    &http.Client{Timeout: cfg.DownloadTimeout},
		minAlphaRatio: cfg.MinAlphaRatio,
		ocrLanguages:  strings.Split(cfg.OCRLanguages, "+"),
		ocrDPI:        cfg.OCRDPI,
		logger:        logger,
	}
	e.strategies = []extractionStrategy{
		{name: "fitz-text", extract: e.extractStructural},
		{name: "fitz-ocr", extract: e.extractOCR},
	}
	return e
}

// ExtractFromURL downloads the PDF and extracts its text. Download
// failures are reported distinctly from unreadable-content failures so
// the caller can decide whether a retry makes sense.
func (e *Extractor) ExtractFromURL(ctx context.Context, pdfURL string) (string, error) {
	pdf, err := e.download(ctx, pdfURL)
	if err != nil {
		return "", &ExtractionError{Kind: ExtractionDownload, URL: pdfURL, Err: err}
	}
	text, err := e.Extract(ctx, pdf)
	if err != nil {
		var exErr *ExtractionError
		if errors.As(err, &exErr) {
			exErr.URL = pdfURL
		}
		return "", err
	}
	return text, nil
}

// Extract runs the strategy chain over raw PDF bytes and returns the
// first output that passes the quality gate.
func (e *Extractor) Extract(ctx context.Context, pdf []byte) (string, error) {
	var lastErr error
	for _, strategy := range e.strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		raw, err := strategy.extract(ctx, pdf)
		if err != nil {
			e.logger.Warn("Extraction strategy failed",
				zap.String("strategy", strategy.name),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		text := normalizeText(raw)
		if !e.acceptable(text) {
			e.logger.Info("Extraction output below quality gate, trying next strategy",
				zap.String("strategy", strategy.name),
				zap.Int("length", len(text)),
				zap.Float64("alpha_ratio", alphaRatio(text)),
			)
			continue
		}
		e.logger.Info("Text extracted",
			zap.String("strategy", strategy.name),
			zap.Int("length", len(text)),
		)
		return text, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no strategy produced usable text")
	}
	return "", &ExtractionError{Kind: ExtractionUnreadable, Err: lastErr}
}

// ExtractOCRFromURL forces the OCR path. Used for documents whose
// embedded fonts mangle Gujarati glyphs under structural extraction.
func (e *Extractor) ExtractOCRFromURL(ctx context.Context, pdfURL string) (string, error) {
	pdf, err := e.download(ctx, pdfURL)
	if err != nil {
		return "", &ExtractionError{Kind: ExtractionDownload, URL: pdfURL, Err: err}
	}
	raw, err := e.extractOCR(ctx, pdf)
	if err != nil {
		return "", &ExtractionError{Kind: ExtractionUnreadable, URL: pdfURL, Err: err}
	}
	text := normalizeText(raw)
	if text == "" {
		return "", &ExtractionError{Kind: ExtractionUnreadable, URL: pdfURL, Err: fmt.Errorf("OCR produced no text")}
	}
	return text, nil
}

func (e *Extractor) acceptable(text string) bool {
	return text != "" && alphaRatio(text) >= e.minAlphaRatio
}

func (e *Extractor) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download PDF: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF body: %w", err)
	}
	return body, nil
}

// extractStructural pulls the embedded text layer page by page.
func (e *Extractor) extractStructural(_ context.Context, pdf []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			e.logger.Warn("Failed to extract text from page",
				zap.Int("page", i+1),
				zap.Error(err),
			)
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n")
		}
	}
	return textBuilder.String(), nil
}

// extractOCR rasterises each page and runs Tesseract over it.
func (e *Extractor) extractOCR(ctx context.Context, pdf []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.ocrLanguages...); err != nil {
		return "", fmt.Errorf("failed to set OCR languages: %w", err)
	}

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		img, err := doc.ImageDPI(i, e.ocrDPI)
		if err != nil {
			e.logger.Warn("Failed to rasterise page",
				zap.Int("page", i+1),
				zap.Error(err),
			)
			continue
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			return "", fmt.Errorf("failed to load page %d into OCR: %w", i+1, err)
		}

		pageText, err := client.Text()
		if err != nil {
			e.logger.Warn("OCR failed on page",
				zap.Int("page", i+1),
				zap.Error(err),
			)
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n")
		}
	}
	return textBuilder.String(), nil
}
