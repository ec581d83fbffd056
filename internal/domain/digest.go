package domain

import "time"

type PendingReply struct {
	MessageID   int64  `json:"message_id"`
	Subject     string `json:"subject"`
	SenderEmail string `json:"sender_email"`
}

// DailyDigest summarizes one user's mail for one calendar day. DigestDate is
// formatted as YYYY-MM-DD and is unique per user.
type DailyDigest struct {
	ID                    int64
	DigestUUID            string
	UserID                string
	DigestDate            string
	SummaryText           string
	SummaryHTML           string
	TotalEmails           int
	ImportantEmails       int
	UnreadEmails          int
	ActionItems           []string
	PendingReplies        []PendingReply
	DeliveryMethod        string
	IsDelivered           bool
	DeliveredAt           *time.Time
	AIModelUsed           string
	GenerationTimeSeconds float64
	CreatedAt             time.Time
}
