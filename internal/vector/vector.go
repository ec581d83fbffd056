// Package vector defines the embedding index used for semantic search.
// Vectors are float32 slices stored as little-endian blobs and compared by
// cosine similarity.
package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const DistanceCosine = "cosine"

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNoCollection      = errors.New("collection does not exist")
)

// Payload is the metadata kept next to each vector.
type Payload struct {
	MessageID         int64  `json:"message_id"`
	ExternalMessageID string `json:"external_message_id"`
	AccountID         int64  `json:"account_id"`
	FieldName         string `json:"field_name"`
	Model             string `json:"model"`
	Subject           string `json:"subject"`
	SenderEmail       string `json:"sender_email"`
	DateSent          string `json:"date_sent"`
}

type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

type SearchOptions struct {
	Limit          int
	ScoreThreshold float64
	// AccountID restricts hits to one account when non-zero.
	AccountID int64
}

type Stats struct {
	Name         string `json:"name"`
	Exists       bool   `json:"exists"`
	TotalVectors int    `json:"total_vectors"`
	Dimensions   int    `json:"dimensions"`
	Distance     string `json:"distance"`
}

// Index is one named vector collection.
type Index interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Hit, error)
	Stats(ctx context.Context) (*Stats, error)
	DeleteCollection(ctx context.Context) error
	DeleteByMessage(ctx context.Context, messageID int64) error
}

// Encode packs v as little-endian float32.
func Encode(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b. Empty or zero-norm
// vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// CosineBlobs is Cosine over two encoded vectors.
func CosineBlobs(a, b []byte) (float64, error) {
	va, err := Decode(a)
	if err != nil {
		return 0, err
	}
	vb, err := Decode(b)
	if err != nil {
		return 0, err
	}
	return Cosine(va, vb)
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
