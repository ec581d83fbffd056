package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/lu-zhengda/mailpilot/internal/breaker"
	"github.com/lu-zhengda/mailpilot/internal/metrics"
)

const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// GenAIEngine generates embeddings with the Gemini API.
type GenAIEngine struct {
	client  *genai.Client
	model   string
	dims    int
	limiter *rate.Limiter
	breaker *breaker.Breaker
}

// NewGenAIEngine wraps client. perMinute caps request rate; zero disables the cap.
func NewGenAIEngine(client *genai.Client, model string, dims, perMinute int) (*GenAIEngine, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dims <= 0 {
		dims = 768
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &GenAIEngine{
		client:  client,
		model:   model,
		dims:    dims,
		limiter: limiter,
		breaker: breaker.New(breaker.DefaultConfig()),
	}, nil
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskDocument)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GenAIEngine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, taskDocument)
}

func (e *GenAIEngine) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(CleanText(t), genai.RoleUser)
	}
	dims := int32(e.dims)

	var out [][]float32
	err := e.breaker.Execute(func() error {
		result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			TaskType:             task,
			OutputDimensionality: &dims,
		})
		if err != nil {
			return fmt.Errorf("GenAI embed failed: %w", err)
		}
		if len(result.Embeddings) != len(texts) {
			return fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
		}
		out = make([][]float32, len(result.Embeddings))
		for i, emb := range result.Embeddings {
			out[i] = emb.Values
		}
		return nil
	})
	metrics.RecordExternalCall("genai_embed", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *GenAIEngine) Dimensions() int { return e.dims }

func (e *GenAIEngine) Name() string { return e.model }
