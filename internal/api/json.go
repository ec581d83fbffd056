package api

import (
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// ---------------------------------------------------------------------------
// Account JSON type (auth status, accounts, callback)
// ---------------------------------------------------------------------------

type Account struct {
	ID           int64    `json:"id"`
	EmailAddress string   `json:"email_address"`
	DisplayName  string   `json:"display_name"`
	Provider     string   `json:"provider"`
	IsActive     bool     `json:"is_active"`
	ConnectedAt  string   `json:"connected_at"`
	LastSyncAt   *string  `json:"last_sync_at"`
	TokenStatus  string   `json:"token_status,omitempty"`
	Scopes       []string `json:"granted_scopes,omitempty"`
}

func ToAccount(a *domain.Account, now time.Time) Account {
	return Account{
		ID:           a.ID,
		EmailAddress: a.EmailAddress,
		DisplayName:  a.DisplayName,
		Provider:     a.Provider,
		IsActive:     a.IsActive,
		ConnectedAt:  a.ConnectedAt.UTC().Format(time.RFC3339),
		LastSyncAt:   formatTimePtr(a.LastSyncAt),
		TokenStatus:  a.TokenStatus(now),
		Scopes:       a.GrantedScopes,
	}
}

func ToAccounts(accounts []domain.Account, now time.Time) []Account {
	out := make([]Account, 0, len(accounts))
	for i := range accounts {
		out = append(out, ToAccount(&accounts[i], now))
	}
	return out
}

// ---------------------------------------------------------------------------
// Message JSON type (recent emails)
// ---------------------------------------------------------------------------

type Message struct {
	ID             int64    `json:"id"`
	AccountID      int64    `json:"account_id"`
	GmailID        string   `json:"gmail_id"`
	ThreadID       string   `json:"thread_id"`
	SenderEmail    string   `json:"sender_email"`
	SenderName     string   `json:"sender_name,omitempty"`
	Subject        string   `json:"subject"`
	Snippet        string   `json:"snippet"`
	DateSent       string   `json:"date_sent"`
	IsRead         bool     `json:"is_read"`
	IsImportant    bool     `json:"is_important"`
	HasAttachments bool     `json:"has_attachments"`
	Labels         []string `json:"labels,omitempty"`
	IsProcessed    bool     `json:"is_processed"`
}

func ToMessages(msgs []domain.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{
			ID:             m.ID,
			AccountID:      m.AccountID,
			GmailID:        m.ExternalMessageID,
			ThreadID:       m.ThreadID,
			SenderEmail:    m.SenderEmail,
			SenderName:     m.SenderName,
			Subject:        m.Subject,
			Snippet:        m.Snippet,
			DateSent:       m.DateSent.UTC().Format(time.RFC3339),
			IsRead:         m.IsRead,
			IsImportant:    m.IsImportant,
			HasAttachments: m.HasAttachments,
			Labels:         m.Labels,
			IsProcessed:    m.IsProcessed,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Draft JSON type
// ---------------------------------------------------------------------------

type Draft struct {
	ID                int64    `json:"id"`
	AccountID         int64    `json:"account_id"`
	OriginalMessageID *int64   `json:"original_message_id,omitempty"`
	RecipientEmail    string   `json:"recipient_email"`
	Subject           string   `json:"subject"`
	Body              string   `json:"body"`
	Tone              string   `json:"tone"`
	Length            string   `json:"length"`
	Model             string   `json:"ai_model_used,omitempty"`
	Confidence        float64  `json:"ai_confidence"`
	ApprovalStatus    string   `json:"approval_status"`
	SafetyCheckPassed bool     `json:"safety_check_passed"`
	SafetyIssues      []string `json:"safety_issues,omitempty"`
	IsSent            bool     `json:"is_sent"`
	SentAt            *string  `json:"sent_at,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

func ToDraft(d *domain.Draft) Draft {
	return Draft{
		ID:                d.ID,
		AccountID:         d.AccountID,
		OriginalMessageID: d.OriginalMessageID,
		RecipientEmail:    d.RecipientEmail,
		Subject:           d.Subject,
		Body:              d.BodyText,
		Tone:              d.Tone,
		Length:            d.Length,
		Model:             d.AIModelUsed,
		Confidence:        d.AIConfidence,
		ApprovalStatus:    string(d.ApprovalStatus),
		SafetyCheckPassed: d.SafetyCheckPassed,
		SafetyIssues:      d.SafetyIssues,
		IsSent:            d.IsSent,
		SentAt:            formatTimePtr(d.SentAt),
		CreatedAt:         d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func ToDrafts(drafts []domain.Draft) []Draft {
	out := make([]Draft, 0, len(drafts))
	for i := range drafts {
		out = append(out, ToDraft(&drafts[i]))
	}
	return out
}

// ---------------------------------------------------------------------------
// Digest JSON type
// ---------------------------------------------------------------------------

type Digest struct {
	ID                    int64                 `json:"id"`
	Date                  string                `json:"digest_date"`
	Summary               string                `json:"summary_text"`
	SummaryHTML           string                `json:"summary_html,omitempty"`
	TotalEmails           int                   `json:"total_emails"`
	ImportantEmails       int                   `json:"important_emails"`
	UnreadEmails          int                   `json:"unread_emails"`
	ActionItems           []string              `json:"action_items"`
	PendingReplies        []domain.PendingReply `json:"pending_replies"`
	Model                 string                `json:"ai_model_used"`
	GenerationTimeSeconds float64               `json:"generation_time_seconds"`
}

func ToDigest(d *domain.DailyDigest) Digest {
	return Digest{
		ID:                    d.ID,
		Date:                  d.DigestDate,
		Summary:               d.SummaryText,
		SummaryHTML:           d.SummaryHTML,
		TotalEmails:           d.TotalEmails,
		ImportantEmails:       d.ImportantEmails,
		UnreadEmails:          d.UnreadEmails,
		ActionItems:           orEmpty(d.ActionItems),
		PendingReplies:        orEmpty(d.PendingReplies),
		Model:                 d.AIModelUsed,
		GenerationTimeSeconds: d.GenerationTimeSeconds,
	}
}

// ---------------------------------------------------------------------------
// Importance JSON type
// ---------------------------------------------------------------------------

type Importance struct {
	MessageID        int64              `json:"message_id"`
	OverallScore     float64            `json:"overall_score"`
	UrgencyScore     float64            `json:"urgency_score"`
	RelevanceScore   float64            `json:"relevance_score"`
	SenderImportance float64            `json:"sender_importance"`
	Factors          map[string]float64 `json:"factors"`
	Reasons          []string           `json:"reasons"`
	Model            string             `json:"model_used"`
	CalculatedAt     string             `json:"calculated_at"`
}

func ToImportance(s *domain.ImportanceScore) Importance {
	return Importance{
		MessageID:        s.MessageID,
		OverallScore:     s.OverallScore,
		UrgencyScore:     s.UrgencyScore,
		RelevanceScore:   s.RelevanceScore,
		SenderImportance: s.SenderImportance,
		Factors:          s.Factors,
		Reasons:          orEmpty(s.Reasons),
		Model:            s.ModelUsed,
		CalculatedAt:     s.CalculatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
