package domain

import "time"

type DraftType string

const (
	DraftReply   DraftType = "reply"
	DraftForward DraftType = "forward"
	DraftNew     DraftType = "new"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid tones and lengths for generated drafts.
var (
	Tones   = []string{"formal", "casual", "professional"}
	Lengths = []string{"short", "medium", "long"}
)

type Draft struct {
	ID                int64
	DraftUUID         string
	AccountID         int64
	OriginalMessageID *int64
	RecipientEmail    string
	Subject           string
	BodyText          string
	BodyHTML          string
	DraftType         DraftType
	Tone              string
	Length            string
	AIModelUsed       string
	GenerationPrompt  string
	AIConfidence      float64
	EditCount         int
	ApprovalStatus    ApprovalStatus
	IsSent            bool
	SentAt            *time.Time
	SentMessageID     string
	SafetyCheckPassed bool
	SafetyIssues      []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
