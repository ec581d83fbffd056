package domain

import "time"

const (
	EventOAuth  = "oauth"
	EventSync   = "sync"
	EventSearch = "search"
	EventDraft  = "draft"
	EventDigest = "digest"
)

type SystemLog struct {
	ID              int64
	Level           string
	EventType       string
	Message         string
	UserID          string
	AccountID       *int64
	SessionID       string
	ExecutionTimeMS float64
	Metadata        map[string]any
	StackTrace      string
	CreatedAt       time.Time
}
