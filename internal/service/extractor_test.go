package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finbot/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testExtractConfig() *config.ExtractConfig {
	return &config.ExtractConfig{
		MinAlphaRatio:   0.45,
		OCRLanguages:    "eng+guj+hin",
		OCRDPI:          200,
		DownloadTimeout: 5 * time.Second,
	}
}

func staticStrategy(name, text string, err error) extractionStrategy {
	return extractionStrategy{
		name: name,
		extract: func(_ context.Context, _ []byte) (string, error) {
			return text, err
		},
	}
}

func TestExtractFirstStrategyWins(t *testing.T) {
	e := NewExtractor(testExtractConfig(), zap.NewNop())
	e.strategies = []extractionStrategy{
		staticStrategy("first", "clean structural text", nil),
		staticStrategy("second", "should never run", nil),
	}

	text, err := e.Extract(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "clean structural text", text)
}

func TestExtractFallsBackOnGarble(t *testing.T) {
	// mostly symbols fails the alpha-ratio gate
	e := NewExtractor(testExtractConfig(), zap.NewNop())
	e.strategies = []extractionStrategy{
		staticStrategy("garbled", "$#@ %^& *() 123 !!", nil),
		staticStrategy("ocr", "readable recovered text", nil),
	}

	text, err := e.Extract(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "readable recovered text", text)
}

func TestExtractFallsBackOnError(t *testing.T) {
	e := NewExtractor(testExtractConfig(), zap.NewNop())
	e.strategies = []extractionStrategy{
		staticStrategy("broken", "", fmt.Errorf("parse failure")),
		staticStrategy("ocr", "recovered text", nil),
	}

	text, err := e.Extract(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "recovered text", text)
}

func TestExtractAllStrategiesFail(t *testing.T) {
	e := NewExtractor(testExtractConfig(), zap.NewNop())
	e.strategies = []extractionStrategy{
		staticStrategy("a", "", fmt.Errorf("broken")),
		staticStrategy("b", "@@@ ###", nil),
	}

	_, err := e.Extract(context.Background(), []byte("pdf"))
	require.Error(t, err)
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, ExtractionUnreadable, exErr.Kind)
}

func TestExtractNormalizesOutput(t *testing.T) {
	e := NewExtractor(testExtractConfig(), zap.NewNop())
	e.strategies = []extractionStrategy{
		staticStrategy("raw", "line one\n\n  line\ttwo\x00", nil),
	}

	text, err := e.Extract(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "line one line two", text)
}

func TestExtractFromURLDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := NewExtractor(testExtractConfig(), zap.NewNop())
	_, err := e.ExtractFromURL(context.Background(), server.URL+"/missing.pdf")
	require.Error(t, err)
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, ExtractionDownload, exErr.Kind)
	assert.Contains(t, exErr.URL, "/missing.pdf")
}

func TestExtractFromURLAttachesURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not really a pdf"))
	}))
	defer server.Close()

	e := NewExtractor(testExtractConfig(), zap.NewNop())
	e.strategies = []extractionStrategy{
		staticStrategy("broken", "", fmt.Errorf("bad pdf")),
	}

	_, err := e.ExtractFromURL(context.Background(), server.URL+"/doc.pdf")
	require.Error(t, err)
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, ExtractionUnreadable, exErr.Kind)
	assert.Contains(t, exErr.URL, "/doc.pdf")
}

func TestAcceptable(t *testing.T) {
	e := NewExtractor(testExtractConfig(), zap.NewNop())
	assert.False(t, e.acceptable(""))
	assert.False(t, e.acceptable("$$$ %%% 111"))
	assert.True(t, e.acceptable("plain readable words"))
}
