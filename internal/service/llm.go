package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"finbot/pkg/config"

	"go.uber.org/zap"
)

// Message is one entry of a chat completion conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation. Arguments is the raw
// JSON string exactly as the model produced it.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema describes one callable tool in JSON Schema form.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ModelClient is the language model behind the chat loop. Complete
// returns the assistant message, which either carries final content or
// requests tool calls.
type ModelClient interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Message, error)
}

// OpenAIChatClient talks to an OpenAI-compatible /chat/completions
// endpoint.
type OpenAIChatClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewOpenAIChatClient(cfg *config.LLMConfig, logger *zap.Logger) *OpenAIChatClient {
	return &OpenAIChatClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Temperature float64       `json:"temperature"`
	Tools       []toolWrapper `json:"tools,omitempty"`
}

type toolWrapper struct {
	Type     string     `json:"type"`
	Function ToolSchema `json:"function"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func (c *OpenAIChatClient) Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Message, error) {
	reqBody := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, toolWrapper{Type: "function", Function: t})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat completion failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode chat completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := out.Choices[0].Message
	c.logger.Debug("Chat completion received",
		zap.String("finish_reason", out.Choices[0].FinishReason),
		zap.Int("tool_calls", len(msg.ToolCalls)),
	)
	return &msg, nil
}

// Generate runs a single tool-free completion over a system prompt and
// a user prompt.
func Generate(ctx context.Context, client ModelClient, system, user string) (string, error) {
	msg, err := client.Complete(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// summaryWindowTokens bounds how much text goes into a single
// summarization call before the map-reduce path kicks in.
const summaryWindowTokens = 3000

// SummarizeText produces a summary of arbitrarily long text. Text that
// fits a single window is summarized directly; longer text is
// summarized window by window and the partial summaries are merged in
// a second pass.
func SummarizeText(ctx context.Context, client ModelClient, text string) (string, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}

	system := "You summarize government financial resolutions. Keep GR numbers, dates, amounts and scheme names exact. Answer concisely."

	if len(tokens) <= summaryWindowTokens {
		return Generate(ctx, client, system, "Summarize this document:\n\n"+text)
	}

	var partials []string
	for start := 0; start < len(tokens); start += summaryWindowTokens {
		end := start + summaryWindowTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := strings.Join(tokens[start:end], " ")
		partial, err := Generate(ctx, client, system, "Summarize this part of a document:\n\n"+window)
		if err != nil {
			return "", fmt.Errorf("failed to summarize window at token %d: %w", start, err)
		}
		partials = append(partials, partial)
	}

	merged := strings.Join(partials, "\n\n")
	return Generate(ctx, client, system, "Merge these partial summaries of one document into a single coherent summary:\n\n"+merged)
}

// AnswerOverText answers a question strictly from the supplied text.
func AnswerOverText(ctx context.Context, client ModelClient, text, question string) (string, error) {
	system := "You answer questions about a government financial document. Use only the document text given. If the document does not contain the answer, say so."
	prompt := fmt.Sprintf("Document:\n\n%s\n\nQuestion: %s", text, question)
	return Generate(ctx, client, system, prompt)
}
