package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/auth"
	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/embedding"
	"github.com/lu-zhengda/mailpilot/internal/journal"
	"github.com/lu-zhengda/mailpilot/internal/metrics"
	"github.com/lu-zhengda/mailpilot/internal/provider"
)

const (
	defaultMaxEmails = 100
	listPageSize     = 100
)

// IngestStore is the persistence the Ingestor needs.
type IngestStore interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	UpdateSyncState(ctx context.Context, id int64, cursor string, at time.Time) error
	InsertMessage(ctx context.Context, msg *domain.Message) (int64, bool, error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
}

// BatchEmbedder embeds freshly stored messages.
type BatchEmbedder interface {
	ProcessBatch(ctx context.Context, msgs []domain.Message) (*embedding.BatchStats, error)
}

type IngestOptions struct {
	// MaxResults caps the number of messages fetched. Zero uses the
	// configured default.
	MaxResults int
	// Query is passed to the provider. When empty and the account has a
	// sync cursor, only mail newer than the cursor is requested.
	Query string
	// Full ignores the sync cursor.
	Full  bool
	Embed bool
}

type IngestResult struct {
	Success         bool                  `json:"success"`
	AccountID       int64                 `json:"account_id"`
	EmailsFetched   int                   `json:"emails_fetched"`
	EmailsProcessed int                   `json:"emails_processed"`
	EmailsStored    int                   `json:"emails_stored"`
	Duplicates      int                   `json:"duplicates"`
	ProcessingTime  float64               `json:"processing_time"`
	Errors          []string              `json:"errors"`
	StoredIDs       []int64               `json:"stored_email_ids"`
	Embedding       *embedding.BatchStats `json:"embedding,omitempty"`
}

// Ingestor pulls mail from a provider into the local store.
type Ingestor struct {
	store     IngestStore
	opener    ProviderOpener
	embedder  BatchEmbedder
	journal   *journal.Journal
	logger    *zap.Logger
	maxEmails int
	Now       Clock
}

// NewIngestor creates an Ingestor. embedder may be nil, in which case
// IngestOptions.Embed is ignored.
func NewIngestor(st IngestStore, opener ProviderOpener, embedder BatchEmbedder, j *journal.Journal, maxEmails int, logger *zap.Logger) *Ingestor {
	if maxEmails <= 0 {
		maxEmails = defaultMaxEmails
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		store:     st,
		opener:    opener,
		embedder:  embedder,
		journal:   j,
		logger:    logger,
		maxEmails: maxEmails,
	}
}

// Run ingests mail for one account. Setup failures (unknown or inactive
// account, no provider) are returned as errors; per-message failures are
// collected in the result and the run continues.
func (in *Ingestor) Run(ctx context.Context, accountID int64, opts IngestOptions) (*IngestResult, error) {
	start := time.Now()
	res := &IngestResult{AccountID: accountID, Errors: []string{}, StoredIDs: []int64{}}

	acct, err := in.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, fmt.Errorf("account %d: %w", accountID, auth.ErrAccountInactive)
	}
	p, err := in.opener.Provider(ctx, acct)
	if err != nil {
		in.journal.Record(ctx, journal.Entry{Event: domain.EventSync, Message: "sync failed to open mailbox", UserID: acct.UserID, AccountID: acct.ID, Err: err})
		return nil, fmt.Errorf("failed to open mailbox for account %d: %w", accountID, err)
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = in.maxEmails
	}
	query := opts.Query
	if query == "" && !opts.Full {
		query = cursorQuery(acct.SyncCursor)
	}

	ids, err := listIDs(ctx, p, query, limit)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	var newest time.Time
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}
		msg, err := p.GetMessage(ctx, id)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to fetch message %s: %v", id, err))
			metrics.RecordIngested("failed", 1)
			continue
		}
		res.EmailsFetched++

		normalize(msg, acct.ID)
		res.EmailsProcessed++
		if msg.DateSent.After(newest) {
			newest = msg.DateSent
		}

		rowID, inserted, err := in.store.InsertMessage(ctx, msg)
		switch {
		case err != nil:
			res.Errors = append(res.Errors, fmt.Sprintf("failed to store message %s: %v", id, err))
			metrics.RecordIngested("failed", 1)
		case inserted:
			res.EmailsStored++
			res.StoredIDs = append(res.StoredIDs, rowID)
			metrics.RecordIngested("stored", 1)
		default:
			res.Duplicates++
			metrics.RecordIngested("duplicate", 1)
		}
	}

	if res.EmailsProcessed > 0 {
		// An empty cursor leaves the stored one in place.
		cursor := ""
		if advancesCursor(acct.SyncCursor, newest) {
			cursor = newest.UTC().Format(time.RFC3339)
		}
		if err := in.store.UpdateSyncState(ctx, acct.ID, cursor, in.Now.now()); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to update sync cursor: %v", err))
		}
	}

	if opts.Embed && in.embedder != nil && len(res.StoredIDs) > 0 {
		res.Embedding = in.embedStored(ctx, res)
	}

	res.Success = len(res.Errors) == 0
	elapsed := time.Since(start)
	res.ProcessingTime = round3(elapsed.Seconds())

	entry := journal.Entry{
		Event:     domain.EventSync,
		Message:   "sync completed",
		UserID:    acct.UserID,
		AccountID: acct.ID,
		Duration:  elapsed,
		Metadata: map[string]any{
			"fetched":    res.EmailsFetched,
			"stored":     res.EmailsStored,
			"duplicates": res.Duplicates,
			"errors":     len(res.Errors),
		},
	}
	if !res.Success {
		entry.Level = journal.LevelWarning
		entry.Message = "sync completed with errors"
	}
	in.journal.Record(ctx, entry)
	return res, nil
}

func (in *Ingestor) embedStored(ctx context.Context, res *IngestResult) *embedding.BatchStats {
	msgs := make([]domain.Message, 0, len(res.StoredIDs))
	for _, id := range res.StoredIDs {
		m, err := in.store.GetMessage(ctx, id)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to load message %d for embedding: %v", id, err))
			continue
		}
		msgs = append(msgs, *m)
	}
	stats, err := in.embedder.ProcessBatch(ctx, msgs)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("embedding batch failed: %v", err))
	}
	return stats
}

// listIDs pages through the provider until limit ids are collected.
func listIDs(ctx context.Context, p provider.MailProvider, query string, limit int) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)
	for len(ids) < limit {
		page, next, err := p.ListMessageIDs(ctx, provider.ListOptions{
			PageToken:  pageToken,
			MaxResults: min(listPageSize, limit-len(ids)),
			Query:      query,
		})
		if err != nil {
			return ids, fmt.Errorf("failed to list messages (listed %d so far): %w", len(ids), err)
		}
		ids = append(ids, page...)
		if next == "" || len(page) == 0 {
			break
		}
		pageToken = next
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// cursorQuery turns a stored RFC3339 cursor into a provider query for mail
// received after it.
func cursorQuery(cursor string) string {
	if cursor == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, cursor)
	if err != nil {
		return ""
	}
	return "after:" + strconv.FormatInt(t.Unix(), 10)
}

// advancesCursor reports whether newest is later than the stored cursor.
// Custom-query and full runs can see only older mail and must not move the
// cursor back.
func advancesCursor(stored string, newest time.Time) bool {
	if newest.IsZero() {
		return false
	}
	t, err := time.Parse(time.RFC3339, stored)
	if err != nil {
		return true
	}
	return newest.After(t)
}

// normalize fills the local fields of a provider message.
func normalize(msg *domain.Message, accountID int64) {
	msg.ID = 0
	msg.AccountID = accountID
	msg.MessageUUID = uuid.NewString()
	msg.IsRead = !msg.HasLabel(domain.LabelUnread)
	msg.IsImportant = msg.HasLabel(domain.LabelImportant)
	if msg.FolderName == "" {
		msg.FolderName = domain.FolderFromLabels(msg.Labels)
	}
}
