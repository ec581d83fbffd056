package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/auth"
	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/journal"
	"github.com/lu-zhengda/mailpilot/internal/llm"
)

var (
	ErrInvalidTone      = errors.New("invalid tone")
	ErrInvalidLength    = errors.New("invalid length")
	ErrNoGenerator      = errors.New("AI drafting is not configured")
	ErrDraftNotPending  = errors.New("draft is not pending review")
	ErrDraftNotApproved = errors.New("draft has not been approved")
	ErrDraftSent        = errors.New("draft has already been sent")
)

const (
	defaultTone   = "professional"
	defaultLength = "medium"
	maxPromptBody = 4000
	minDraftWords = 5
)

// wordLimits is the most words a draft of each length may have.
var wordLimits = map[string]int{"short": 120, "medium": 250, "long": 500}

var (
	placeholderRe = regexp.MustCompile(`\[[^\[\]\n]{1,40}\]`)
	credentialRe  = regexp.MustCompile(`(?i)\b(password|passwd|pwd|api[_-]?key|secret|access[_-]?token)\s*[:=]\s*\S+`)
	secretTokenRe = regexp.MustCompile(`\b(sk-[A-Za-z0-9]{16,}|AKIA[0-9A-Z]{16}|[A-Za-z0-9_\-]{40,})\b`)
)

type DraftRequest struct {
	Tone         string `json:"tone"`
	Length       string `json:"length"`
	Instructions string `json:"instructions"`
}

// DraftStore is the persistence the Drafter needs.
type DraftStore interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	CreateDraft(ctx context.Context, d *domain.Draft) (int64, error)
	GetDraft(ctx context.Context, id int64) (*domain.Draft, error)
	ListDrafts(ctx context.Context, accountID int64, status domain.ApprovalStatus) ([]domain.Draft, error)
	UpdateDraftStatus(ctx context.Context, id int64, status domain.ApprovalStatus) error
	ClaimDraftSend(ctx context.Context, id int64) (bool, error)
	ReleaseDraftSend(ctx context.Context, id int64) error
	MarkDraftSent(ctx context.Context, id int64, sentMessageID string, at time.Time) error
}

// Drafter generates reply drafts and moves them through review to delivery.
type Drafter struct {
	store   DraftStore
	gen     llm.Generator
	opener  ProviderOpener
	journal *journal.Journal
	logger  *zap.Logger
	Now     Clock
}

// NewDrafter creates a Drafter. gen may be nil when drafting is disabled;
// review and sending still work.
func NewDrafter(st DraftStore, gen llm.Generator, opener ProviderOpener, j *journal.Journal, logger *zap.Logger) *Drafter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{store: st, gen: gen, opener: opener, journal: j, logger: logger}
}

func (req *DraftRequest) normalize() error {
	req.Tone = strings.ToLower(strings.TrimSpace(req.Tone))
	req.Length = strings.ToLower(strings.TrimSpace(req.Length))
	if req.Tone == "" {
		req.Tone = defaultTone
	}
	if req.Length == "" {
		req.Length = defaultLength
	}
	if !slices.Contains(domain.Tones, req.Tone) {
		return fmt.Errorf("%w %q: want one of %s", ErrInvalidTone, req.Tone, strings.Join(domain.Tones, ", "))
	}
	if !slices.Contains(domain.Lengths, req.Length) {
		return fmt.Errorf("%w %q: want one of %s", ErrInvalidLength, req.Length, strings.Join(domain.Lengths, ", "))
	}
	return nil
}

// DraftReply generates a reply to the stored message and saves it pending
// review.
func (d *Drafter) DraftReply(ctx context.Context, messageID int64, req DraftRequest) (*domain.Draft, error) {
	if d.gen == nil {
		return nil, ErrNoGenerator
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	acct, err := d.store.GetAccount(ctx, msg.AccountID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	prompt := replyPrompt(msg, acct, req)
	body, err := d.gen.Generate(ctx, llm.Request{
		System:      draftSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		d.journal.Record(ctx, journal.Entry{Event: domain.EventDraft, Message: "draft generation failed", UserID: acct.UserID, AccountID: acct.ID, Err: err})
		return nil, fmt.Errorf("failed to generate draft: %w", err)
	}

	issues := CheckDraftSafety(body, req.Length)
	id := msg.ID
	draft := &domain.Draft{
		AccountID:         acct.ID,
		OriginalMessageID: &id,
		RecipientEmail:    msg.SenderEmail,
		Subject:           replySubject(msg.Subject),
		BodyText:          body,
		DraftType:         domain.DraftReply,
		Tone:              req.Tone,
		Length:            req.Length,
		AIModelUsed:       d.gen.Model(),
		GenerationPrompt:  prompt,
		AIConfidence:      draftConfidence(issues),
		ApprovalStatus:    domain.ApprovalPending,
		SafetyCheckPassed: len(issues) == 0,
		SafetyIssues:      issues,
	}
	if _, err := d.store.CreateDraft(ctx, draft); err != nil {
		return nil, err
	}

	d.journal.Record(ctx, journal.Entry{
		Event:     domain.EventDraft,
		Message:   "draft generated",
		UserID:    acct.UserID,
		AccountID: acct.ID,
		Duration:  time.Since(start),
		Metadata: map[string]any{
			"draft_id":      draft.ID,
			"message_id":    msg.ID,
			"tone":          req.Tone,
			"length":        req.Length,
			"safety_passed": draft.SafetyCheckPassed,
		},
	})
	return draft, nil
}

const draftSystemPrompt = `You write email replies on behalf of the mailbox owner.
Return only the reply body: no subject line, no markdown, no commentary.
Never invent facts, commitments, prices or dates that are not in the original message.
Never use bracketed placeholders; if a detail is unknown, write around it.
Sign off with the owner's name when it is given.`

func replyPrompt(msg *domain.Message, acct *domain.Account, req DraftRequest) string {
	body := msg.BodyPlain
	if body == "" {
		body = msg.Snippet
	}
	if r := []rune(body); len(r) > maxPromptBody {
		body = string(r[:maxPromptBody])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s, %s reply (at most %d words).\n", req.Tone, req.Length, wordLimits[req.Length])
	if owner := acct.DisplayName; owner != "" {
		fmt.Fprintf(&b, "Mailbox owner: %s <%s>\n", owner, acct.EmailAddress)
	} else {
		fmt.Fprintf(&b, "Mailbox owner: %s\n", acct.EmailAddress)
	}
	if req.Instructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", req.Instructions)
	}
	fmt.Fprintf(&b, "\nOriginal message\nFrom: %s\nSubject: %s\nDate: %s\n\n%s\n",
		msg.Sender().String(), msg.Subject, msg.DateSent.Format(time.RFC1123Z), body)
	return b.String()
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// CheckDraftSafety returns the problems found in a generated draft body.
// An empty result means the draft passed.
func CheckDraftSafety(body, length string) []string {
	var issues []string
	words := len(strings.Fields(body))
	if words == 0 {
		return []string{"draft is empty"}
	}
	if words < minDraftWords {
		issues = append(issues, fmt.Sprintf("draft is too short (%d words)", words))
	}
	if limit, ok := wordLimits[length]; ok && words > limit*3/2 {
		issues = append(issues, fmt.Sprintf("draft is too long for a %s reply (%d words)", length, words))
	}
	if m := placeholderRe.FindString(body); m != "" {
		issues = append(issues, fmt.Sprintf("draft contains an unresolved placeholder %s", m))
	}
	if credentialRe.MatchString(body) || secretTokenRe.MatchString(body) {
		issues = append(issues, "draft appears to contain a credential")
	}
	return issues
}

func draftConfidence(issues []string) float64 {
	return max(0.1, 0.9-0.2*float64(len(issues)))
}

// Get returns one draft.
func (d *Drafter) Get(ctx context.Context, id int64) (*domain.Draft, error) {
	return d.store.GetDraft(ctx, id)
}

func (d *Drafter) List(ctx context.Context, accountID int64, status domain.ApprovalStatus) ([]domain.Draft, error) {
	return d.store.ListDrafts(ctx, accountID, status)
}

func (d *Drafter) Approve(ctx context.Context, id int64) (*domain.Draft, error) {
	return d.review(ctx, id, domain.ApprovalApproved)
}

func (d *Drafter) Reject(ctx context.Context, id int64) (*domain.Draft, error) {
	return d.review(ctx, id, domain.ApprovalRejected)
}

// review moves a pending draft to status. Re-applying the current status is
// a no-op.
func (d *Drafter) review(ctx context.Context, id int64, status domain.ApprovalStatus) (*domain.Draft, error) {
	draft, err := d.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.IsSent {
		return nil, ErrDraftSent
	}
	if draft.ApprovalStatus == status {
		return draft, nil
	}
	if draft.ApprovalStatus != domain.ApprovalPending {
		return nil, fmt.Errorf("draft %d is %s: %w", id, draft.ApprovalStatus, ErrDraftNotPending)
	}
	if err := d.store.UpdateDraftStatus(ctx, id, status); err != nil {
		return nil, err
	}
	draft.ApprovalStatus = status
	d.journal.Record(ctx, journal.Entry{
		Event:     domain.EventDraft,
		Message:   "draft " + string(status),
		AccountID: draft.AccountID,
		Metadata:  map[string]any{"draft_id": id},
	})
	return draft, nil
}

// Send delivers an approved draft through the account's provider.
func (d *Drafter) Send(ctx context.Context, id int64) (*domain.Draft, error) {
	draft, err := d.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.IsSent {
		return nil, ErrDraftSent
	}
	if draft.ApprovalStatus != domain.ApprovalApproved {
		return nil, ErrDraftNotApproved
	}
	acct, err := d.store.GetAccount(ctx, draft.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, fmt.Errorf("account %d: %w", acct.ID, auth.ErrAccountInactive)
	}

	out := &domain.OutgoingMessage{
		From:    domain.Address{Name: acct.DisplayName, Email: acct.EmailAddress},
		To:      []domain.Address{{Email: draft.RecipientEmail}},
		Subject: draft.Subject,
		Body:    draft.BodyText,
	}
	if draft.OriginalMessageID != nil {
		if orig, err := d.store.GetMessage(ctx, *draft.OriginalMessageID); err == nil {
			out.ThreadID = orig.ThreadID
		}
	}

	claimed, err := d.store.ClaimDraftSend(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		current, err := d.store.GetDraft(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.IsSent {
			return nil, ErrDraftSent
		}
		return nil, ErrDraftNotApproved
	}

	sentID, err := d.deliver(ctx, acct, out)
	if err != nil {
		if rerr := d.store.ReleaseDraftSend(ctx, id); rerr != nil {
			d.logger.Error("failed to release draft after send failure", zap.Int64("draft_id", id), zap.Error(rerr))
		}
		d.journal.Record(ctx, journal.Entry{Event: domain.EventDraft, Message: "draft send failed", UserID: acct.UserID, AccountID: acct.ID, Err: err})
		return nil, fmt.Errorf("failed to send draft %d: %w", id, err)
	}

	at := d.Now.now()
	if err := d.store.MarkDraftSent(ctx, id, sentID, at); err != nil {
		return nil, err
	}
	draft.IsSent = true
	draft.SentAt = &at
	draft.SentMessageID = sentID

	d.journal.Record(ctx, journal.Entry{
		Event:     domain.EventDraft,
		Message:   "draft sent",
		UserID:    acct.UserID,
		AccountID: acct.ID,
		Metadata:  map[string]any{"draft_id": id, "sent_message_id": sentID},
	})
	return draft, nil
}

func (d *Drafter) deliver(ctx context.Context, acct *domain.Account, out *domain.OutgoingMessage) (string, error) {
	p, err := d.opener.Provider(ctx, acct)
	if err != nil {
		return "", fmt.Errorf("failed to open mailbox for account %d: %w", acct.ID, err)
	}
	return p.Send(ctx, out)
}
