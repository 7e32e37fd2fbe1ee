package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"finbot/internal/models"
	"finbot/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TurnState tracks where a conversational turn is in its lifecycle.
type TurnState string

const (
	StateAwaitingModel TurnState = "awaiting_model"
	StateToolRequested TurnState = "tool_requested"
	StateToolExecuting TurnState = "tool_executing"
	StateFinalAnswer   TurnState = "final_answer"
	StateAborted       TurnState = "aborted"
)

// ChatStore persists sessions and their ordered transcripts.
type ChatStore interface {
	CreateSession(ctx context.Context, name string) (*models.ChatSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role models.MessageRole, content string) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// toolHandler executes one validated tool call and returns a
// JSON-encodable result.
type toolHandler func(ctx context.Context, args map[string]any) (any, error)

type toolDef struct {
	schema  ToolSchema
	handler toolHandler
}

// TurnResult is the outcome of one conversational turn.
type TurnResult struct {
	SessionID uuid.UUID
	Answer    string
	State     TurnState
	ToolCalls int
}

// Orchestrator drives the tool-calling loop: it hands the model the
// conversation plus the tool catalog, executes whatever the model
// requests, feeds results back, and stops at a final answer or the
// iteration cap.
// FullTextExtractor adds the forced-OCR path on top of the ordinary
// extraction surface.
type FullTextExtractor interface {
	TextExtractor
	ExtractOCRFromURL(ctx context.Context, pdfURL string) (string, error)
}

type Orchestrator struct {
	model        ModelClient
	retrieval    *RetrievalService
	extractor    FullTextExtractor
	store        DocumentStore
	chats        ChatStore
	tools        map[string]toolDef
	toolOrder    []string
	maxToolCalls int
	historyLimit int
	logger       *zap.Logger
}

func NewOrchestrator(
	model ModelClient,
	retrieval *RetrievalService,
	extractor FullTextExtractor,
	store DocumentStore,
	chats ChatStore,
	cfg *config.ChatConfig,
	logger *zap.Logger,
) *Orchestrator {
	o := &Orchestrator{
		model:        model,
		retrieval:    retrieval,
		extractor:    extractor,
		store:        store,
		chats:        chats,
		maxToolCalls: cfg.MaxToolCalls,
		historyLimit: cfg.HistoryLimit,
		logger:       logger,
	}
	if o.maxToolCalls <= 0 {
		o.maxToolCalls = 8
	}
	o.registerTools()
	return o
}

func (o *Orchestrator) registerTools() {
	o.tools = make(map[string]toolDef)
	register := func(def toolDef) {
		o.tools[def.schema.Name] = def
		o.toolOrder = append(o.toolOrder, def.schema.Name)
	}

	register(toolDef{
		schema: ToolSchema{
			Name:        "search_documents",
			Description: "Find government resolutions by GR number, date or year, branch, or subject. An exact GR number wins over all other filters.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"gr_no":   map[string]any{"type": "string", "description": "Exact GR number"},
					"date":    map[string]any{"type": "string", "description": "Date (YYYY-MM-DD) or bare year (YYYY)"},
					"branch":  map[string]any{"type": "string", "description": "Issuing branch"},
					"subject": map[string]any{"type": "string", "description": "Subject substring, English or Gujarati"},
					"query":   map[string]any{"type": "string", "description": "Free-text fallback when no filter matches"},
				},
			},
		},
		handler: o.toolSearchDocuments,
	})

	register(toolDef{
		schema: ToolSchema{
			Name:        "search_by_content",
			Description: "Semantic search over document text. Use when the question is about content rather than metadata.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "What to look for"},
					"limit": map[string]any{"type": "integer", "description": "Maximum matches to return"},
				},
				"required": []string{"query"},
			},
		},
		handler: o.toolSearchByContent,
	})

	register(toolDef{
		schema: ToolSchema{
			Name:        "summarize_pdf",
			Description: "Summarize the full text of one resolution identified by its GR number.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"gr_no": map[string]any{"type": "string", "description": "Exact GR number"},
				},
				"required": []string{"gr_no"},
			},
		},
		handler: o.toolSummarizePDF,
	})

	register(toolDef{
		schema: ToolSchema{
			Name:        "query_pdf",
			Description: "Answer a specific question from the full text of one resolution.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"gr_no":    map[string]any{"type": "string", "description": "Exact GR number"},
					"question": map[string]any{"type": "string", "description": "The question to answer"},
				},
				"required": []string{"gr_no", "question"},
			},
		},
		handler: o.toolQueryPDF,
	})

	register(toolDef{
		schema: ToolSchema{
			Name:        "extract_text",
			Description: "Return the raw extracted text of one resolution. Set ocr to force OCR for documents whose embedded text is garbled.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"gr_no": map[string]any{"type": "string", "description": "Exact GR number"},
					"ocr":   map[string]any{"type": "boolean", "description": "Force the OCR path"},
				},
				"required": []string{"gr_no"},
			},
		},
		handler: o.toolExtractText,
	})

	register(toolDef{
		schema: ToolSchema{
			Name:        "database_overview",
			Description: "Aggregate counts of indexed documents and chunks, broken down per branch.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		handler: o.toolDatabaseOverview,
	})
}

func (o *Orchestrator) toolSchemas() []ToolSchema {
	schemas := make([]ToolSchema, 0, len(o.toolOrder))
	for _, name := range o.toolOrder {
		schemas = append(schemas, o.tools[name].schema)
	}
	return schemas
}

// Ask runs one conversational turn against the session, creating the
// session first when none is given.
func (o *Orchestrator) Ask(ctx context.Context, sessionID uuid.UUID, query string) (*TurnResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	if sessionID == uuid.Nil {
		session, err := o.chats.CreateSession(ctx, truncate(query, 80))
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		sessionID = session.ID
	} else {
		session, err := o.chats.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
	}

	if _, err := o.chats.AppendMessage(ctx, sessionID, models.RoleUser, query); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	messages, err := o.buildPrompt(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{SessionID: sessionID, State: StateAwaitingModel}

	for iteration := 0; iteration < o.maxToolCalls; iteration++ {
		reply, err := o.model.Complete(ctx, messages, o.toolSchemas())
		if err != nil {
			return nil, fmt.Errorf("model completion failed: %w", err)
		}

		if len(reply.ToolCalls) == 0 {
			result.State = StateFinalAnswer
			result.Answer = reply.Content
			if _, err := o.chats.AppendMessage(ctx, sessionID, models.RoleAssistant, reply.Content); err != nil {
				return nil, fmt.Errorf("failed to persist answer: %w", err)
			}
			return result, nil
		}

		result.State = StateToolRequested
		messages = append(messages, *reply)

		for _, call := range reply.ToolCalls {
			result.State = StateToolExecuting
			result.ToolCalls++

			payload := o.executeTool(ctx, call)
			o.logger.Info("Tool executed",
				zap.String("tool", call.Function.Name),
				zap.Int("iteration", iteration+1),
			)

			if _, err := o.chats.AppendMessage(ctx, sessionID, models.RoleTool,
				fmt.Sprintf("%s: %s", call.Function.Name, truncate(payload, 2000)),
			); err != nil {
				return nil, fmt.Errorf("failed to persist tool result: %w", err)
			}

			messages = append(messages, Message{
				Role:       "tool",
				Content:    payload,
				ToolCallID: call.ID,
			})
		}
	}

	result.State = StateAborted
	result.Answer = "I was unable to complete this request within the allowed number of tool calls. Please narrow the question and try again."
	if _, err := o.chats.AppendMessage(ctx, sessionID, models.RoleAssistant, result.Answer); err != nil {
		return nil, fmt.Errorf("failed to persist abort notice: %w", err)
	}
	o.logger.Warn("Turn aborted at tool call cap",
		zap.String("session_id", sessionID.String()),
		zap.Int("tool_calls", result.ToolCalls),
	)
	return result, nil
}

// buildPrompt assembles the system prompt and the recent transcript.
// Tool messages are persisted for audit but never replayed to the
// model, since their tool_call_id references would dangle.
func (o *Orchestrator) buildPrompt(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load store stats: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are an assistant for Gujarat government financial resolutions (GRs). ")
	sb.WriteString("Answer from indexed documents via the available tools; never invent GR numbers, dates or amounts. ")
	sb.WriteString("Quote GR numbers exactly as stored.\n")
	fmt.Fprintf(&sb, "The index currently holds %d documents in %d chunks.", stats.TotalDocuments, stats.TotalChunks)
	if len(stats.DocumentsPerBranch) > 0 {
		sb.WriteString(" Documents per branch:")
		for branch, count := range stats.DocumentsPerBranch {
			fmt.Fprintf(&sb, " %s=%d", branch, count)
		}
		sb.WriteString(".")
	}

	messages := []Message{{Role: "system", Content: sb.String()}}

	history, err := o.chats.ListMessages(ctx, sessionID, o.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for _, msg := range history {
		if msg.Role == models.RoleTool {
			continue
		}
		messages = append(messages, Message{Role: string(msg.Role), Content: msg.Content})
	}
	return messages, nil
}

// executeTool validates and dispatches one tool call. Every failure
// mode, including handler panics, becomes an error payload the model
// can react to instead of a crashed turn.
func (o *Orchestrator) executeTool(ctx context.Context, call ToolCall) (payload string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Tool handler panicked",
				zap.String("tool", call.Function.Name),
				zap.Any("panic", r),
			)
			payload = toolErrorPayload(fmt.Sprintf("internal error while running %s", call.Function.Name))
		}
	}()

	def, ok := o.tools[call.Function.Name]
	if !ok {
		return toolErrorPayload(fmt.Sprintf("unknown tool %q", call.Function.Name))
	}

	var args map[string]any
	raw := call.Function.Arguments
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return toolErrorPayload(fmt.Sprintf("invalid arguments for %s: %v", call.Function.Name, err))
	}
	if err := validateArgs(def.schema, args); err != nil {
		return toolErrorPayload(err.Error())
	}

	result, err := def.handler(ctx, args)
	if err != nil {
		o.logger.Warn("Tool handler failed",
			zap.String("tool", call.Function.Name),
			zap.Error(err),
		)
		return toolErrorPayload(err.Error())
	}

	data, err := json.Marshal(result)
	if err != nil {
		return toolErrorPayload(fmt.Sprintf("failed to encode %s result: %v", call.Function.Name, err))
	}
	return string(data)
}

func toolErrorPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}

// validateArgs enforces the declared required keys and primitive types
// before a handler ever sees the arguments.
func validateArgs(schema ToolSchema, args map[string]any) error {
	properties, _ := schema.Parameters["properties"].(map[string]any)

	if required, ok := schema.Parameters["required"].([]string); ok {
		for _, key := range required {
			val, present := args[key]
			if !present {
				return fmt.Errorf("%s: missing required argument %q", schema.Name, key)
			}
			if s, isString := val.(string); isString && strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s: required argument %q is empty", schema.Name, key)
			}
		}
	}

	for key, val := range args {
		propAny, known := properties[key]
		if !known {
			return fmt.Errorf("%s: unexpected argument %q", schema.Name, key)
		}
		prop, _ := propAny.(map[string]any)
		wantType, _ := prop["type"].(string)
		if !matchesJSONType(val, wantType) {
			return fmt.Errorf("%s: argument %q must be of type %s", schema.Name, key, wantType)
		}
	}
	return nil
}

func matchesJSONType(val any, jsonType string) bool {
	switch jsonType {
	case "string":
		_, ok := val.(string)
		return ok
	case "integer", "number":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	default:
		return true
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string) int {
	f, _ := args[key].(float64)
	return int(f)
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// documentView is the compact document shape returned to the model.
type documentView struct {
	GRNo    string  `json:"gr_no"`
	Date    string  `json:"date,omitempty"`
	Branch  string  `json:"branch,omitempty"`
	Subject string  `json:"subject,omitempty"`
	PDFURL  string  `json:"pdf_url,omitempty"`
	Excerpt string  `json:"excerpt,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

func viewOf(res models.RetrievalResult) documentView {
	v := documentView{
		GRNo:    res.Document.GRNo,
		Date:    res.Document.Date,
		Branch:  res.Document.Branch,
		Subject: res.Document.SubjectEn,
		PDFURL:  res.Document.PDFURL,
		Score:   res.Score,
	}
	if v.Subject == "" {
		v.Subject = res.Document.SubjectGu
	}
	if res.Chunk != nil {
		v.Excerpt = truncate(res.Chunk.Text, 500)
	}
	return v
}

func (o *Orchestrator) toolSearchDocuments(ctx context.Context, args map[string]any) (any, error) {
	q := models.RetrievalQuery{
		GRNo:     stringArg(args, "gr_no"),
		Date:     stringArg(args, "date"),
		Branch:   stringArg(args, "branch"),
		Subject:  stringArg(args, "subject"),
		Semantic: stringArg(args, "query"),
	}
	if q.GRNo == "" && !q.HasFilters() && q.Semantic == "" {
		return nil, fmt.Errorf("search_documents needs at least one of gr_no, date, branch, subject or query")
	}

	results, err := o.retrieval.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	views := make([]documentView, len(results))
	for i, res := range results {
		views[i] = viewOf(res)
	}
	return map[string]any{"matches": views, "count": len(views)}, nil
}

func (o *Orchestrator) toolSearchByContent(ctx context.Context, args map[string]any) (any, error) {
	results, err := o.retrieval.SemanticSearch(ctx, stringArg(args, "query"), 0, intArg(args, "limit"))
	if err != nil {
		return nil, err
	}
	views := make([]documentView, len(results))
	for i, res := range results {
		views[i] = viewOf(res)
	}
	return map[string]any{"matches": views, "count": len(views)}, nil
}

func (o *Orchestrator) documentByGR(ctx context.Context, grNo string) (*models.Document, error) {
	doc, err := o.store.GetByGR(ctx, grNo)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("no document with GR number %q", grNo)
	}
	return doc, nil
}

func (o *Orchestrator) toolSummarizePDF(ctx context.Context, args map[string]any) (any, error) {
	doc, err := o.documentByGR(ctx, stringArg(args, "gr_no"))
	if err != nil {
		return nil, err
	}
	text, err := o.extractor.ExtractFromURL(ctx, doc.PDFURL)
	if err != nil {
		return nil, err
	}
	summary, err := SummarizeText(ctx, o.model, text)
	if err != nil {
		return nil, err
	}
	return map[string]string{"gr_no": doc.GRNo, "summary": summary}, nil
}

func (o *Orchestrator) toolQueryPDF(ctx context.Context, args map[string]any) (any, error) {
	doc, err := o.documentByGR(ctx, stringArg(args, "gr_no"))
	if err != nil {
		return nil, err
	}
	text, err := o.extractor.ExtractFromURL(ctx, doc.PDFURL)
	if err != nil {
		return nil, err
	}
	answer, err := AnswerOverText(ctx, o.model, text, stringArg(args, "question"))
	if err != nil {
		return nil, err
	}
	return map[string]string{"gr_no": doc.GRNo, "answer": answer}, nil
}

func (o *Orchestrator) toolExtractText(ctx context.Context, args map[string]any) (any, error) {
	doc, err := o.documentByGR(ctx, stringArg(args, "gr_no"))
	if err != nil {
		return nil, err
	}

	var text string
	if boolArg(args, "ocr") {
		text, err = o.extractor.ExtractOCRFromURL(ctx, doc.PDFURL)
	} else {
		text, err = o.extractor.ExtractFromURL(ctx, doc.PDFURL)
	}
	if err != nil {
		return nil, err
	}
	return map[string]string{"gr_no": doc.GRNo, "text": truncate(text, 8000)}, nil
}

func (o *Orchestrator) toolDatabaseOverview(ctx context.Context, _ map[string]any) (any, error) {
	return o.store.Stats(ctx)
}
