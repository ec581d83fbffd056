// Package embedding turns message text into vectors and keeps the vector
// store in step with the message table.
package embedding

import (
	"context"
	"strings"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// MaxTextRunes caps the text sent to an engine. Longer text is cut and
// suffixed with "...".
const MaxTextRunes = 2000

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed embeds a single document.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds several documents in one call, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// QueryEmbedder is implemented by engines that embed search queries with a
// different task than stored documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedQuery embeds a search query, preferring the engine's query task.
func EmbedQuery(ctx context.Context, e Engine, text string) ([]float32, error) {
	text = CleanText(text)
	if q, ok := e.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	return e.Embed(ctx, text)
}

// CleanText collapses whitespace and truncates to MaxTextRunes.
func CleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > MaxTextRunes {
		return string(r[:MaxTextRunes]) + "..."
	}
	return s
}

// Field is one embeddable piece of a message.
type Field struct {
	Name string
	Text string
}

// Fields returns the subject, snippet and combined text of msg. Empty fields
// are skipped.
func Fields(msg *domain.Message) []Field {
	subject := CleanText(msg.Subject)
	snippet := CleanText(msg.Snippet)
	combined := CleanText(strings.TrimSpace(msg.Subject + " " + msg.Snippet))

	var out []Field
	for _, f := range []Field{
		{domain.FieldSubject, subject},
		{domain.FieldSnippet, snippet},
		{domain.FieldCombined, combined},
	} {
		if f.Text != "" {
			out = append(out, f)
		}
	}
	return out
}
