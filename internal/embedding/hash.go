package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/lu-zhengda/mailpilot/internal/vector"
)

// HashEngine is a deterministic feature-hashing embedder. It needs no network
// access and gives related texts overlapping vectors, which is enough for
// offline use and tests.
type HashEngine struct {
	dims int
}

func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

func (h *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}
	vector.Normalize(v)
	return v, nil
}

func (h *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEngine) Dimensions() int { return h.dims }

func (h *HashEngine) Name() string { return fmt.Sprintf("hash-%d", h.dims) }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
