package app

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/journal"
	"github.com/lu-zhengda/mailpilot/internal/llm"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

const (
	DateLayout = "2006-01-02"

	maxActionItems    = 10
	maxPendingReplies = 10
	maxPromptMessages = 50
	templateModel     = "template"
	deliveryInApp     = "in_app"
)

var (
	actionVerbRe = regexp.MustCompile(`(?i)\b(please|review|confirm|send|schedule|submit|approve|reply|respond|complete|sign|let me know)\b`)
	sentenceRe   = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

type DigestStore interface {
	ListMessages(ctx context.Context, opts store.ListMessageOptions) ([]domain.Message, error)
	UpsertDigest(ctx context.Context, d *domain.DailyDigest) (int64, error)
	GetDigest(ctx context.Context, userID, date string) (*domain.DailyDigest, error)
}

// Digester builds one summary per user per day.
type Digester struct {
	store   DigestStore
	gen     llm.Generator
	journal *journal.Journal
	logger  *zap.Logger
	loc     *time.Location
}

// NewDigester creates a Digester. Without a generator the summary is
// rendered from a fixed template.
func NewDigester(st DigestStore, gen llm.Generator, j *journal.Journal, loc *time.Location, logger *zap.Logger) *Digester {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Digester{store: st, gen: gen, journal: j, loc: loc, logger: logger}
}

func (d *Digester) Get(ctx context.Context, userID, date string) (*domain.DailyDigest, error) {
	return d.store.GetDigest(ctx, userID, date)
}

// Build collects userID's mail for the calendar day containing date and
// stores the digest, replacing any earlier one for that day.
func (d *Digester) Build(ctx context.Context, userID string, date time.Time) (*domain.DailyDigest, error) {
	start := time.Now()
	y, m, day := date.In(d.loc).Date()
	from := time.Date(y, m, day, 0, 0, 0, 0, d.loc)
	until := from.AddDate(0, 0, 1)

	msgs, err := d.store.ListMessages(ctx, store.ListMessageOptions{UserID: userID, Since: from, Until: until})
	if err != nil {
		return nil, fmt.Errorf("failed to collect messages for digest: %w", err)
	}

	dg := &domain.DailyDigest{
		UserID:         userID,
		DigestDate:     from.Format(DateLayout),
		TotalEmails:    len(msgs),
		ActionItems:    ActionItems(msgs),
		PendingReplies: PendingReplies(msgs),
		DeliveryMethod: deliveryInApp,
		AIModelUsed:    templateModel,
	}
	for i := range msgs {
		if isImportant(&msgs[i]) {
			dg.ImportantEmails++
		}
		if !msgs[i].IsRead {
			dg.UnreadEmails++
		}
	}

	dg.SummaryText = templateSummary(dg)
	if d.gen != nil && len(msgs) > 0 {
		text, err := d.gen.Generate(ctx, llm.Request{
			System:      digestSystemPrompt,
			Prompt:      digestPrompt(dg, msgs),
			Temperature: 0.3,
			MaxTokens:   800,
		})
		if err != nil {
			d.logger.Warn("falling back to template digest", zap.String("user_id", userID), zap.Error(err))
		} else {
			dg.SummaryText = text
			dg.AIModelUsed = d.gen.Model()
		}
	}
	html, err := renderDigestHTML(dg)
	if err != nil {
		return nil, err
	}
	dg.SummaryHTML = html
	dg.GenerationTimeSeconds = round3(time.Since(start).Seconds())

	if _, err := d.store.UpsertDigest(ctx, dg); err != nil {
		return nil, err
	}
	d.journal.Record(ctx, journal.Entry{
		Event:    domain.EventDigest,
		Message:  "daily digest built",
		UserID:   userID,
		Duration: time.Since(start),
		Metadata: map[string]any{
			"date":      dg.DigestDate,
			"total":     dg.TotalEmails,
			"important": dg.ImportantEmails,
			"unread":    dg.UnreadEmails,
			"model":     dg.AIModelUsed,
		},
	})
	return dg, nil
}

func isImportant(m *domain.Message) bool {
	return m.IsImportant || m.HasLabel(domain.LabelImportant)
}

// ActionItems returns sentences from subjects and snippets that ask for
// something: an action verb or a question.
func ActionItems(msgs []domain.Message) []string {
	items := []string{}
	seen := map[string]bool{}
	for _, m := range msgs {
		for _, text := range []string{m.Subject, m.Snippet} {
			for _, s := range sentenceRe.FindAllString(text, -1) {
				s = strings.TrimSpace(s)
				if s == "" || seen[strings.ToLower(s)] {
					continue
				}
				if !strings.HasSuffix(s, "?") && !actionVerbRe.MatchString(s) {
					continue
				}
				seen[strings.ToLower(s)] = true
				items = append(items, s)
				if len(items) == maxActionItems {
					return items
				}
			}
		}
	}
	return items
}

// PendingReplies lists unread important messages and messages whose
// subject is a question.
func PendingReplies(msgs []domain.Message) []domain.PendingReply {
	out := []domain.PendingReply{}
	for _, m := range msgs {
		question := strings.HasSuffix(strings.TrimSpace(m.Subject), "?")
		if !(question || (!m.IsRead && isImportant(&m))) {
			continue
		}
		out = append(out, domain.PendingReply{MessageID: m.ID, Subject: m.Subject, SenderEmail: m.SenderEmail})
		if len(out) == maxPendingReplies {
			break
		}
	}
	return out
}

func templateSummary(dg *domain.DailyDigest) string {
	if dg.TotalEmails == 0 {
		return fmt.Sprintf("No email on %s.", dg.DigestDate)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "On %s you received %d emails: %d important, %d unread.",
		dg.DigestDate, dg.TotalEmails, dg.ImportantEmails, dg.UnreadEmails)
	if n := len(dg.PendingReplies); n > 0 {
		fmt.Fprintf(&b, " %d may need a reply.", n)
	}
	if n := len(dg.ActionItems); n > 0 {
		fmt.Fprintf(&b, "\n\nAction items:")
		for _, item := range dg.ActionItems {
			fmt.Fprintf(&b, "\n- %s", item)
		}
	}
	return b.String()
}

const digestSystemPrompt = `You summarize a day of email for its recipient.
Write three to six short plain-text sentences. Lead with what needs action.
Do not list every message and do not invent details.`

func digestPrompt(dg *domain.DailyDigest, msgs []domain.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\nTotal: %d, important: %d, unread: %d\n\nMessages:\n",
		dg.DigestDate, dg.TotalEmails, dg.ImportantEmails, dg.UnreadEmails)
	for i, m := range msgs {
		if i == maxPromptMessages {
			fmt.Fprintf(&b, "(and %d more)\n", len(msgs)-i)
			break
		}
		flags := ""
		if isImportant(&m) {
			flags += " [important]"
		}
		if !m.IsRead {
			flags += " [unread]"
		}
		fmt.Fprintf(&b, "- From %s: %s%s\n  %s\n", m.SenderEmail, m.Subject, flags, m.Snippet)
	}
	return b.String()
}

var digestHTML = template.Must(template.New("digest").Parse(`<h2>Daily digest for {{.DigestDate}}</h2>
<p>{{.TotalEmails}} emails, {{.ImportantEmails}} important, {{.UnreadEmails}} unread.</p>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .ActionItems}}<h3>Action items</h3>
<ul>{{range .ActionItems}}<li>{{.}}</li>{{end}}</ul>
{{end}}{{if .PendingReplies}}<h3>Awaiting reply</h3>
<ul>{{range .PendingReplies}}<li>{{.Subject}} ({{.SenderEmail}})</li>{{end}}</ul>
{{end}}`))

func renderDigestHTML(dg *domain.DailyDigest) (string, error) {
	var paragraphs []string
	for _, p := range strings.Split(dg.SummaryText, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	var buf bytes.Buffer
	err := digestHTML.Execute(&buf, struct {
		*domain.DailyDigest
		Paragraphs []string
	}{dg, paragraphs})
	if err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}
