// Package llm generates text for drafts and digests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/lu-zhengda/mailpilot/internal/breaker"
	"github.com/lu-zhengda/mailpilot/internal/metrics"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	breaker *breaker.Breaker
}

func NewGemini(client *genai.Client, model string, perMinute int) *Gemini {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &Gemini{
		client:  client,
		model:   model,
		limiter: limiter,
		breaker: breaker.New(breaker.DefaultConfig()),
	}
}

func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation rate limit: %w", err)
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}

	var text string
	err := g.breaker.Execute(func() error {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
		if err != nil {
			return fmt.Errorf("GenAI generate failed: %w", err)
		}
		text = strings.TrimSpace(resp.Text())
		if text == "" {
			return ErrEmptyResponse
		}
		return nil
	})
	metrics.RecordExternalCall("genai_generate", err)
	return text, err
}
