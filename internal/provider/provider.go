package provider

import (
	"context"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

type ListOptions struct {
	PageToken  string
	MaxResults int
	LabelIDs   []string
	Query      string
}

// Profile describes the mailbox behind a provider connection.
type Profile struct {
	EmailAddress  string `json:"email"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
}

type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// MailProvider is a connected mailbox. Returned messages carry provider data
// only: ID, AccountID and MessageUUID are left for the caller to fill in.
type MailProvider interface {
	ListMessageIDs(ctx context.Context, opts ListOptions) ([]string, string, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	Search(ctx context.Context, query string, maxResults int) ([]domain.Message, error)
	ListLabels(ctx context.Context) ([]Label, error)
	MarkRead(ctx context.Context, id string, read bool) error
	Send(ctx context.Context, msg *domain.OutgoingMessage) (string, error)
	Profile(ctx context.Context) (*Profile, error)
}
