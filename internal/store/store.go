package store

import (
	"context"
	"errors"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// ErrNotFound is returned when a requested row or secret does not exist.
var ErrNotFound = errors.New("not found")

// AccountStore persists connected mailboxes.
type AccountStore interface {
	UpsertAccount(ctx context.Context, account *domain.Account) (int64, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetAccountForUser(ctx context.Context, userID string, id int64) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	ListActiveAccounts(ctx context.Context) ([]domain.Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
	UpdateAccountTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry *time.Time) error
	UpdateSyncState(ctx context.Context, id int64, cursor string, at time.Time) error
	DeleteAccount(ctx context.Context, id int64) error
}

// MessageStore persists ingested messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *domain.Message) (id int64, inserted bool, err error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	MessageExists(ctx context.Context, accountID int64, externalID string) (bool, error)
	ListMessages(ctx context.Context, opts ListMessageOptions) ([]domain.Message, error)
	UnprocessedMessages(ctx context.Context, limit int) ([]domain.Message, error)
	MarkProcessed(ctx context.Context, id int64, processingError string) error
	SetRead(ctx context.Context, id int64, read bool) error
	KeywordSearch(ctx context.Context, accountID int64, terms []string, limit int) ([]domain.Message, error)
	FullTextSearch(ctx context.Context, accountID int64, query string, limit int) ([]domain.Message, error)
	SenderMessageCount(ctx context.Context, accountID int64, senderEmail string) (int, error)
}

// EmbeddingStore records which message fields have vectors.
type EmbeddingStore interface {
	UpsertEmbedding(ctx context.Context, e *domain.MessageEmbedding) error
	ListEmbeddings(ctx context.Context, messageID int64) ([]domain.MessageEmbedding, error)
	EmbeddingStats(ctx context.Context) (*EmbeddingStats, error)
}

type DraftStore interface {
	CreateDraft(ctx context.Context, d *domain.Draft) (int64, error)
	GetDraft(ctx context.Context, id int64) (*domain.Draft, error)
	ListDrafts(ctx context.Context, accountID int64, status domain.ApprovalStatus) ([]domain.Draft, error)
	UpdateDraftStatus(ctx context.Context, id int64, status domain.ApprovalStatus) error
	ClaimDraftSend(ctx context.Context, id int64) (bool, error)
	ReleaseDraftSend(ctx context.Context, id int64) error
	MarkDraftSent(ctx context.Context, id int64, sentMessageID string, at time.Time) error
}

type ScoreStore interface {
	SaveImportance(ctx context.Context, s *domain.ImportanceScore) (int64, error)
	LatestImportance(ctx context.Context, messageID int64) (*domain.ImportanceScore, error)
}

type DigestStore interface {
	UpsertDigest(ctx context.Context, d *domain.DailyDigest) (int64, error)
	GetDigest(ctx context.Context, userID, date string) (*domain.DailyDigest, error)
}

type LogStore interface {
	InsertLog(ctx context.Context, l *domain.SystemLog) error
	ListLogs(ctx context.Context, eventType string, limit int) ([]domain.SystemLog, error)
}

// Store defines the persistence interface for the application.
type Store interface {
	AccountStore
	MessageStore
	EmbeddingStore
	DraftStore
	ScoreStore
	DigestStore
	LogStore

	Ping(ctx context.Context) error
	Close() error
}

// ListMessageOptions configures message listing queries. Zero values are
// ignored; UserID restricts to accounts owned by that user.
type ListMessageOptions struct {
	AccountID int64
	UserID    string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// EmbeddingStats summarizes the message_embeddings table.
type EmbeddingStats struct {
	Total             int
	ByModel           map[string]int
	ByField           map[string]int
	ProcessedMessages int
	PendingMessages   int
}
