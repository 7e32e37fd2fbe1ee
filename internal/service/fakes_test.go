package service

import (
	"context"
	"fmt"
	"sync"

	"finbot/internal/models"

	"github.com/google/uuid"
)

// fakeStore is an in-memory DocumentStore with scripted search results.
type fakeStore struct {
	mu            sync.Mutex
	docs            map[string]models.Document
	filterResults   []models.Document
	vectorResults   []models.VectorMatch
	vectorInResults []models.VectorMatch
	stats           models.StoreStats

	upserts         []models.Document
	upsertChunks    [][]models.Chunk
	upsertErr       error
	filterCalls     int
	vectorCalls     int
	vectorInCalls   int
	lastThreshold   float64
	lastLimit       int
	lastDateFrom    string
	lastDateTo      string
	lastDocIDs      []uuid.UUID
	lastInThreshold float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]models.Document)}
}

func (s *fakeStore) UpsertDocument(_ context.Context, doc *models.Document, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	s.docs[doc.GRNo] = *doc
	s.upserts = append(s.upserts, *doc)
	s.upsertChunks = append(s.upsertChunks, chunks)
	return nil
}

func (s *fakeStore) GetByGR(_ context.Context, grNo string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[grNo]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (s *fakeStore) FilterSearch(_ context.Context, _, dateFrom, dateTo, _ string, limit int) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterCalls++
	s.lastDateFrom = dateFrom
	s.lastDateTo = dateTo
	s.lastLimit = limit
	return s.filterResults, nil
}

func (s *fakeStore) VectorSearch(_ context.Context, _ []float32, threshold float64, limit int) ([]models.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorCalls++
	s.lastThreshold = threshold
	s.lastLimit = limit
	return s.vectorResults, nil
}

func (s *fakeStore) VectorSearchIn(_ context.Context, _ []float32, docIDs []uuid.UUID, threshold float64, limit int) ([]models.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorInCalls++
	s.lastDocIDs = docIDs
	s.lastInThreshold = threshold
	s.lastLimit = limit
	return s.vectorInResults, nil
}

func (s *fakeStore) Stats(_ context.Context) (*models.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	return &stats, nil
}

func (s *fakeStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]models.Document)
	return nil
}

// fakeChats is an in-memory ChatStore assigning dense message orders.
type fakeChats struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.ChatSession
	messages map[uuid.UUID][]models.ChatMessage
}

func newFakeChats() *fakeChats {
	return &fakeChats{
		sessions: make(map[uuid.UUID]models.ChatSession),
		messages: make(map[uuid.UUID][]models.ChatMessage),
	}
}

func (c *fakeChats) CreateSession(_ context.Context, name string) (*models.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := models.ChatSession{ID: uuid.New(), Name: name}
	c.sessions[session.ID] = session
	return &session, nil
}

func (c *fakeChats) GetSession(_ context.Context, id uuid.UUID) (*models.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (c *fakeChats) AppendMessage(_ context.Context, sessionID uuid.UUID, role models.MessageRole, content string) (*models.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := models.ChatMessage{
		ID:           uuid.New(),
		SessionID:    sessionID,
		Role:         role,
		Content:      content,
		MessageOrder: len(c.messages[sessionID]) + 1,
	}
	c.messages[sessionID] = append(c.messages[sessionID], msg)
	return &msg, nil
}

func (c *fakeChats) ListMessages(_ context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// fakeQueryEmbedder returns a fixed vector for any query.
type fakeQueryEmbedder struct {
	vec []float32
	err error
}

func (f *fakeQueryEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// fakeModel replays a scripted sequence of completions and records
// what it was asked.
type fakeModel struct {
	mu       sync.Mutex
	script   []Message
	calls    int
	received [][]Message
}

func (m *fakeModel) Complete(_ context.Context, messages []Message, _ []ToolSchema) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]Message, len(messages))
	copy(snapshot, messages)
	m.received = append(m.received, snapshot)

	idx := m.calls
	m.calls++
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	reply := m.script[idx]
	return &reply, nil
}

// fakeExtractor serves canned text per URL.
type fakeExtractor struct {
	texts   map[string]string
	errs    map[string]error
	ocrText string
}

func (f *fakeExtractor) ExtractFromURL(_ context.Context, pdfURL string) (string, error) {
	if err, ok := f.errs[pdfURL]; ok {
		return "", err
	}
	text, ok := f.texts[pdfURL]
	if !ok {
		return "", fmt.Errorf("no text for %s", pdfURL)
	}
	return text, nil
}

func (f *fakeExtractor) ExtractOCRFromURL(_ context.Context, pdfURL string) (string, error) {
	if f.ocrText == "" {
		return "", fmt.Errorf("no OCR text for %s", pdfURL)
	}
	return f.ocrText, nil
}

// fakeBatchEmbedder maps each text to a result directly, bypassing the
// real batching machinery.
type fakeBatchEmbedder struct {
	failTexts map[string]error
	dim       int
}

func (f *fakeBatchEmbedder) EmbedAll(_ context.Context, texts []string) []EmbeddingResult {
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	results := make([]EmbeddingResult, len(texts))
	for i, text := range texts {
		if err, ok := f.failTexts[text]; ok {
			results[i] = EmbeddingResult{Err: err}
			continue
		}
		results[i] = EmbeddingResult{Vector: make([]float32, dim)}
	}
	return results
}
