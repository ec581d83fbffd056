package domain

import "time"

const (
	FieldSubject  = "subject"
	FieldSnippet  = "snippet"
	FieldCombined = "combined"

	EmbeddingVersion = "v1"
)

// MessageEmbedding links a message field to a vector in the vector store.
type MessageEmbedding struct {
	ID             int64
	MessageID      int64
	FieldName      string
	EmbeddingModel string
	VectorID       string
	Collection     string
	Dimensions     int
	Version        string
	CreatedAt      time.Time
}
