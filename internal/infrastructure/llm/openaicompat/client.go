package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kirillkom/legal-code-search/internal/core/ports"
	"github.com/kirillkom/legal-code-search/internal/infrastructure/resilience"
)

// Client talks to any OpenAI-compatible endpoint (OpenAI, vLLM, LM Studio,
// llama.cpp server). Retries are left to the resilience executor.
type Client struct {
	api        openai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func New(cfg Config, executor *resilience.Executor) *Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Client{
		api:        openai.NewClient(opts...),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		executor:   executor,
	}
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

var _ ports.AnswerGenerator = (*Generator)(nil)

func (g *Generator) GenerateAnswer(ctx context.Context, req ports.GenerationRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(fmt.Sprintf("Context:\n%s\nQuestion: %s", req.Context, req.Query)))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       g.client.chatModel,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := resilience.Call(ctx, g.client.executor, "openai.chat", func(ctx context.Context) (*openai.ChatCompletion, error) {
		return g.client.api.Chat.Completions.New(ctx, params)
	}, classifyError)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("openai chat", err, classifyError)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai chat returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

type Embedder struct {
	client    *Client
	dimension int
}

func NewEmbedder(client *Client, dimension int) *Embedder {
	return &Embedder{client: client, dimension: dimension}
}

var _ ports.Embedder = (*Embedder)(nil)

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.client.embedModel),
	}
	resp, err := resilience.Call(ctx, e.client.executor, "openai.embed", func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
		return e.client.api.Embeddings.New(ctx, params)
	}, classifyError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("openai embed", err, classifyError)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("openai embed returned out-of-range index %d", idx)
		}
		if e.dimension > 0 && len(item.Embedding) != e.dimension {
			return nil, fmt.Errorf("openai embed vector %d has %d dimensions, want %d", idx, len(item.Embedding), e.dimension)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func classifyError(err error) resilience.ErrorClassification {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		retryable := resilience.IsRetryableHTTPStatus(apiErr.StatusCode)
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	return resilience.ClassifyHTTPError(err)
}
