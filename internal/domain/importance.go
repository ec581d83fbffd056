package domain

import "time"

// ImportanceScore holds component scores in [0, 1] for one message.
type ImportanceScore struct {
	ID               int64
	MessageID        int64
	OverallScore     float64
	UrgencyScore     float64
	RelevanceScore   float64
	SenderImportance float64
	Factors          map[string]float64
	Reasons          []string
	ModelUsed        string
	ModelVersion     string
	CalculatedAt     time.Time
}
