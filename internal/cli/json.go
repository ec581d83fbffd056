package cli

import (
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// ---------------------------------------------------------------------------
// Message detail JSON type (read)
// ---------------------------------------------------------------------------

type jsonMessageDetail struct {
	ID             int64            `json:"id"`
	AccountID      int64            `json:"account_id"`
	ExternalID     string           `json:"external_message_id"`
	ThreadID       string           `json:"thread_id"`
	From           domain.Address   `json:"from"`
	To             []domain.Address `json:"to,omitempty"`
	CC             []domain.Address `json:"cc,omitempty"`
	Subject        string           `json:"subject"`
	Date           string           `json:"date"`
	Body           string           `json:"body"`
	Labels         []string         `json:"labels,omitempty"`
	IsRead         bool             `json:"is_read"`
	HasAttachments bool             `json:"has_attachments"`
}

func toJSONMessageDetail(m *domain.Message) jsonMessageDetail {
	body := m.BodyPlain
	if body == "" {
		body = m.Snippet
	}
	return jsonMessageDetail{
		ID:             m.ID,
		AccountID:      m.AccountID,
		ExternalID:     m.ExternalMessageID,
		ThreadID:       m.ThreadID,
		From:           m.Sender(),
		To:             nonEmpty(m.Recipients),
		CC:             nonEmpty(m.CC),
		Subject:        m.Subject,
		Date:           m.DateSent.Format(time.RFC3339),
		Body:           body,
		Labels:         m.Labels,
		IsRead:         m.IsRead,
		HasAttachments: m.HasAttachments,
	}
}

func nonEmpty(addrs []domain.Address) []domain.Address {
	if len(addrs) == 0 {
		return nil
	}
	return addrs
}

// ---------------------------------------------------------------------------
// System log JSON type (logs)
// ---------------------------------------------------------------------------

type jsonLog struct {
	ID              int64          `json:"id"`
	Level           string         `json:"level"`
	EventType       string         `json:"event_type"`
	Message         string         `json:"message"`
	UserID          string         `json:"user_id,omitempty"`
	AccountID       *int64         `json:"account_id,omitempty"`
	ExecutionTimeMS float64        `json:"execution_time_ms"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

func toJSONLogs(logs []domain.SystemLog) []jsonLog {
	out := make([]jsonLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, jsonLog{
			ID:              l.ID,
			Level:           l.Level,
			EventType:       l.EventType,
			Message:         l.Message,
			UserID:          l.UserID,
			AccountID:       l.AccountID,
			ExecutionTimeMS: l.ExecutionTimeMS,
			Metadata:        l.Metadata,
			CreatedAt:       l.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Action result JSON type (connect, remove, draft actions, etc.)
// ---------------------------------------------------------------------------

type jsonAction struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action"`
	ID        int64  `json:"id,omitempty"`
	AccountID int64  `json:"account_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ---------------------------------------------------------------------------
// Token JSON type (token issue, account connect)
// ---------------------------------------------------------------------------

type jsonToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}

func toJSONToken(userID, token string, exp time.Time) jsonToken {
	return jsonToken{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      userID,
		ExpiresAt:   exp.UTC().Format(time.RFC3339),
	}
}
