package app

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/embedding"
	"github.com/lu-zhengda/mailpilot/internal/journal"
	"github.com/lu-zhengda/mailpilot/internal/metrics"
	"github.com/lu-zhengda/mailpilot/internal/store"
	"github.com/lu-zhengda/mailpilot/internal/vector"
)

// SearchType names the strategy a query was answered with.
type SearchType string

const (
	SearchSemantic SearchType = "semantic"
	SearchKeyword  SearchType = "keyword"
	SearchHybrid   SearchType = "hybrid"
	SearchFiltered SearchType = "filtered"
)

const (
	defaultMaxResults = 20
	semanticThreshold = 0.3
	semanticWeight    = 0.6
	keywordWeight     = 0.4
)

// SearchFilters are the constraints extracted from a natural language query.
type SearchFilters struct {
	SenderEmails   []string   `json:"sender_emails,omitempty"`
	DateFrom       *time.Time `json:"date_from,omitempty"`
	DateTo         *time.Time `json:"date_to,omitempty"`
	Labels         []string   `json:"labels,omitempty"`
	HasAttachments *bool      `json:"has_attachments,omitempty"`
	IsImportant    *bool      `json:"is_important,omitempty"`
	Keywords       []string   `json:"keywords,omitempty"`
}

func (f *SearchFilters) empty() bool {
	return len(f.SenderEmails) == 0 && f.DateFrom == nil && f.DateTo == nil &&
		len(f.Labels) == 0 && f.HasAttachments == nil && f.IsImportant == nil
}

// ParsedQuery is the result of ParseQuery.
type ParsedQuery struct {
	Filters SearchFilters
	Cleaned string
	Type    SearchType
}

const emailPattern = `[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`

var (
	fromEmailRe  = regexp.MustCompile(`\bfrom\s+(` + emailPattern + `)`)
	fromWordRe   = regexp.MustCompile(`\bfrom\s+(\w+)`)
	senderRe     = regexp.MustCompile(`\bsender:?\s*(` + emailPattern + `)`)
	monthYearRe  = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	stopWordsRe  = regexp.MustCompile(`\b(about|regarding)\b|\b(re|fw):`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var labelPatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`\binbox\b`), domain.LabelInbox},
	{regexp.MustCompile(`\bsent\b`), domain.LabelSent},
	{regexp.MustCompile(`\bdraft\b`), domain.LabelDraft},
	{regexp.MustCompile(`\bspam\b`), domain.LabelSpam},
	{regexp.MustCompile(`\btrash\b`), domain.LabelTrash},
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

type dateRange func(now time.Time) (from, to time.Time)

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// relativeDates are tried in order; the first match wins.
var relativeDates = []struct {
	re  *regexp.Regexp
	rng dateRange
}{
	{regexp.MustCompile(`\btoday\b`), func(now time.Time) (time.Time, time.Time) {
		return midnight(now), now
	}},
	{regexp.MustCompile(`\byesterday\b`), func(now time.Time) (time.Time, time.Time) {
		day := midnight(now).AddDate(0, 0, -1)
		return day, day.Add(24*time.Hour - time.Second)
	}},
	{regexp.MustCompile(`\blast\s+week\b`), func(now time.Time) (time.Time, time.Time) {
		return now.AddDate(0, 0, -7), now
	}},
	{regexp.MustCompile(`\bthis\s+week\b`), func(now time.Time) (time.Time, time.Time) {
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return midnight(now).AddDate(0, 0, -sinceMonday), now
	}},
	{regexp.MustCompile(`\blast\s+month\b`), func(now time.Time) (time.Time, time.Time) {
		return now.AddDate(0, 0, -30), now
	}},
	{regexp.MustCompile(`\bthis\s+month\b`), func(now time.Time) (time.Time, time.Time) {
		y, m, _ := now.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), now
	}},
	{regexp.MustCompile(`\blast\s+year\b`), func(now time.Time) (time.Time, time.Time) {
		return now.AddDate(0, 0, -365), now
	}},
}

// ParseQuery extracts sender, date, label and flag filters from a natural
// language query such as "invoices from bob@example.com last week" and
// returns the remaining keywords. Relative dates are resolved against now.
func ParseQuery(query string, now time.Time) ParsedQuery {
	q := strings.TrimSpace(strings.ToLower(query))
	var f SearchFilters

	for _, m := range fromEmailRe.FindAllStringSubmatch(q, -1) {
		f.SenderEmails = append(f.SenderEmails, m[1])
	}
	q = fromEmailRe.ReplaceAllString(q, "")
	for _, m := range fromWordRe.FindAllStringSubmatch(q, -1) {
		f.Keywords = append(f.Keywords, m[1])
	}
	q = fromWordRe.ReplaceAllString(q, "")
	for _, m := range senderRe.FindAllStringSubmatch(q, -1) {
		f.SenderEmails = append(f.SenderEmails, m[1])
	}
	q = senderRe.ReplaceAllString(q, "")

	for _, rd := range relativeDates {
		if rd.re.MatchString(q) {
			from, to := rd.rng(now)
			f.DateFrom, f.DateTo = &from, &to
			q = rd.re.ReplaceAllString(q, "")
			break
		}
	}

	if m := monthYearRe.FindStringSubmatch(q); m != nil {
		year, _ := strconv.Atoi(m[2])
		from := time.Date(year, months[m[1]], 1, 0, 0, 0, 0, now.Location())
		to := from.AddDate(0, 1, 0)
		f.DateFrom, f.DateTo = &from, &to
		q = strings.Replace(q, m[0], "", 1)
	}

	if strings.Contains(q, "important") {
		f.IsImportant = ptr(true)
		q = strings.ReplaceAll(q, "important", "")
	}
	if strings.Contains(q, "attachment") {
		f.HasAttachments = ptr(true)
		q = strings.ReplaceAll(q, "attachments", "")
		q = strings.ReplaceAll(q, "attachment", "")
	}

	for _, lp := range labelPatterns {
		if lp.re.MatchString(q) {
			f.Labels = append(f.Labels, lp.label)
			q = lp.re.ReplaceAllString(q, "")
		}
	}

	q = strings.TrimSpace(whitespaceRe.ReplaceAllString(q, " "))
	q = strings.TrimSpace(stopWordsRe.ReplaceAllString(q, ""))

	for _, w := range strings.Fields(q) {
		if utf8.RuneCountInString(w) > 2 {
			f.Keywords = append(f.Keywords, w)
		}
	}

	p := ParsedQuery{Filters: f, Cleaned: q}
	if len(f.Keywords) > 0 {
		p.Cleaned = strings.Join(f.Keywords, " ")
	}

	switch {
	case utf8.RuneCountInString(p.Cleaned) <= 3:
		p.Type = SearchKeyword
	case len(f.SenderEmails) > 0 || f.DateFrom != nil || len(f.Labels) > 0:
		p.Type = SearchFiltered
	default:
		p.Type = SearchHybrid
	}
	return p
}

func ptr[T any](v T) *T { return &v }

// SearchResult is one ranked message.
type SearchResult struct {
	MessageID         int64     `json:"message_id"`
	ExternalMessageID string    `json:"external_message_id"`
	Subject           string    `json:"subject"`
	Snippet           string    `json:"snippet"`
	SenderEmail       string    `json:"sender_email"`
	SenderName        string    `json:"sender_name"`
	DateSent          time.Time `json:"date_sent"`
	RelevanceScore    float64   `json:"relevance_score"`
	SearchType        string    `json:"search_type"`
	HasAttachments    bool      `json:"has_attachments"`
	IsImportant       bool      `json:"is_important"`
	Labels            []string  `json:"labels"`
}

// SearchStatistics counts candidates at each stage of a search.
type SearchStatistics struct {
	KeywordMatches  int `json:"keyword_matches"`
	SemanticMatches int `json:"semantic_matches"`
	FinalResults    int `json:"final_results"`
}

// SearchResponse is the ranked result of a Search call.
type SearchResponse struct {
	Success        bool             `json:"success"`
	Query          string           `json:"query"`
	SearchType     SearchType       `json:"search_type"`
	TotalResults   int              `json:"total_results"`
	Results        []SearchResult   `json:"results"`
	ProcessingTime float64          `json:"processing_time"`
	Statistics     SearchStatistics `json:"statistics"`
	Filters        SearchFilters    `json:"filters"`
	Errors         []string         `json:"errors"`
}

// SearchStore is the persistence the Searcher needs.
type SearchStore interface {
	KeywordSearch(ctx context.Context, accountID int64, terms []string, limit int) ([]domain.Message, error)
	FullTextSearch(ctx context.Context, accountID int64, query string, limit int) ([]domain.Message, error)
	ListMessages(ctx context.Context, opts store.ListMessageOptions) ([]domain.Message, error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
}

// Searcher runs hybrid keyword and semantic search over one account.
type Searcher struct {
	store   SearchStore
	index   vector.Index
	engine  embedding.Engine
	journal *journal.Journal
	logger  *zap.Logger
	loc     *time.Location
	Now     Clock
}

// NewSearcher creates a Searcher. With a nil index or engine only keyword
// search runs. loc resolves relative dates and defaults to UTC.
func NewSearcher(st SearchStore, index vector.Index, engine embedding.Engine, j *journal.Journal, loc *time.Location, logger *zap.Logger) *Searcher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{store: st, index: index, engine: engine, journal: j, loc: loc, logger: logger}
}

// candidate is a message under consideration with its working score.
type candidate struct {
	msg   domain.Message
	score float64
	kind  string
}

// Search answers a natural language query. Failures of individual stages
// are reported in SearchResponse.Errors and do not abort the search.
func (s *Searcher) Search(ctx context.Context, accountID int64, query string, maxResults int) *SearchResponse {
	start := time.Now()
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	parsed := ParseQuery(query, s.Now.now().In(s.loc))
	resp := &SearchResponse{
		Query:      query,
		SearchType: parsed.Type,
		Filters:    parsed.Filters,
		Results:    []SearchResult{},
		Errors:     []string{},
	}

	var queryVec []float32
	if parsed.Type != SearchKeyword && parsed.Cleaned != "" && s.engine != nil && s.index != nil {
		v, err := embedding.EmbedQuery(ctx, s.engine, parsed.Cleaned)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("failed to generate query vector: %v", err))
		} else {
			queryVec = v
		}
	}

	keyword, err := s.keywordSearch(ctx, accountID, parsed, maxResults)
	if err != nil {
		resp.Errors = append(resp.Errors, fmt.Sprintf("keyword search failed: %v", err))
	}
	resp.Statistics.KeywordMatches = len(keyword)

	var semantic []candidate
	if queryVec != nil {
		semantic, err = s.semanticSearch(ctx, accountID, queryVec, maxResults)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("semantic search failed: %v", err))
		}
	}
	resp.Statistics.SemanticMatches = len(semantic)

	// Filters run before fusion truncates to maxResults.
	keyword = keepMatching(keyword, &parsed.Filters)
	semantic = keepMatching(semantic, &parsed.Filters)
	for _, c := range fuse(keyword, semantic, maxResults) {
		resp.Results = append(resp.Results, toResult(c))
	}

	elapsed := time.Since(start)
	resp.TotalResults = len(resp.Results)
	resp.Statistics.FinalResults = len(resp.Results)
	resp.ProcessingTime = round3(elapsed.Seconds())
	resp.Success = len(resp.Errors) == 0

	metrics.RecordSearch(string(parsed.Type), elapsed)
	s.logger.Debug("search complete",
		zap.String("query", query),
		zap.String("type", string(parsed.Type)),
		zap.String("cleaned", parsed.Cleaned),
		zap.Int("keyword", resp.Statistics.KeywordMatches),
		zap.Int("semantic", resp.Statistics.SemanticMatches),
		zap.Int("final", resp.TotalResults),
	)
	entry := journal.Entry{
		Event:     domain.EventSearch,
		Message:   "search completed",
		AccountID: accountID,
		Duration:  elapsed,
		Metadata: map[string]any{
			"query":       query,
			"search_type": string(parsed.Type),
			"results":     resp.TotalResults,
		},
	}
	if !resp.Success {
		entry.Level = journal.LevelWarning
		entry.Metadata["errors"] = resp.Errors
	}
	s.journal.Record(ctx, entry)
	return resp
}

// keywordSearch matches keywords against subject and snippet. When that
// finds nothing the full-text index, which also covers bodies, is tried. A
// query made only of filters browses recent mail instead.
func (s *Searcher) keywordSearch(ctx context.Context, accountID int64, parsed ParsedQuery, limit int) ([]candidate, error) {
	terms := parsed.Filters.Keywords
	if len(terms) == 0 && parsed.Cleaned != "" {
		terms = []string{parsed.Cleaned}
	}

	var (
		msgs []domain.Message
		err  error
	)
	switch {
	case len(terms) > 0:
		msgs, err = s.store.KeywordSearch(ctx, accountID, terms, limit)
		if err == nil && len(msgs) == 0 {
			msgs, err = s.store.FullTextSearch(ctx, accountID, strings.Join(terms, " "), limit)
		}
	case !parsed.Filters.empty():
		opts := store.ListMessageOptions{AccountID: accountID, Limit: limit * 5}
		if parsed.Filters.DateFrom != nil {
			opts.Since = *parsed.Filters.DateFrom
		}
		if parsed.Filters.DateTo != nil {
			opts.Until = parsed.Filters.DateTo.Add(time.Second)
		}
		msgs, err = s.store.ListMessages(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	out := make([]candidate, len(msgs))
	for i, m := range msgs {
		out[i] = candidate{msg: m, score: KeywordScore(m.Subject, m.Snippet, terms), kind: string(SearchKeyword)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out, nil
}

// KeywordScore awards 2 per term found in the subject and 1 per term found
// in the snippet, averaged over the terms.
func KeywordScore(subject, snippet string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	subject = strings.ToLower(subject)
	snippet = strings.ToLower(snippet)
	var score float64
	for _, t := range terms {
		t = strings.ToLower(t)
		if strings.Contains(subject, t) {
			score += 2
		}
		if strings.Contains(snippet, t) {
			score++
		}
	}
	return score / float64(len(terms))
}

func (s *Searcher) semanticSearch(ctx context.Context, accountID int64, vec []float32, limit int) ([]candidate, error) {
	hits, err := s.index.Search(ctx, vec, vector.SearchOptions{
		Limit:          limit,
		ScoreThreshold: semanticThreshold,
		AccountID:      accountID,
	})
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(hits))
	for _, h := range hits {
		m, err := s.store.GetMessage(ctx, h.Payload.MessageID)
		if err != nil {
			s.logger.Warn("skipping vector hit without message",
				zap.Int64("message_id", h.Payload.MessageID), zap.Error(err))
			continue
		}
		out = append(out, candidate{msg: *m, score: h.Score, kind: string(SearchSemantic)})
	}
	return out, nil
}

// fuse merges keyword and semantic candidates. A message found by both gets
// a weighted score and the hybrid type.
func fuse(keyword, semantic []candidate, limit int) []candidate {
	byID := make(map[int64]int)
	var out []candidate
	for _, c := range keyword {
		if i, ok := byID[c.msg.ID]; ok {
			out[i].score = max(out[i].score, c.score)
			out[i].kind = string(SearchHybrid)
			continue
		}
		byID[c.msg.ID] = len(out)
		out = append(out, c)
	}
	for _, c := range semantic {
		if i, ok := byID[c.msg.ID]; ok {
			out[i].score = semanticWeight*c.score + keywordWeight*out[i].score
			out[i].kind = string(SearchHybrid)
			continue
		}
		byID[c.msg.ID] = len(out)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func keepMatching(cands []candidate, f *SearchFilters) []candidate {
	out := cands[:0]
	for _, c := range cands {
		if matchesFilters(&c.msg, f) {
			out = append(out, c)
		}
	}
	return out
}

func matchesFilters(m *domain.Message, f *SearchFilters) bool {
	if len(f.SenderEmails) > 0 {
		sender := strings.ToLower(m.SenderEmail)
		found := false
		for _, s := range f.SenderEmails {
			if strings.Contains(sender, s) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateFrom != nil && m.DateSent.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && m.DateSent.After(*f.DateTo) {
		return false
	}
	if f.IsImportant != nil && *f.IsImportant != (m.IsImportant || m.HasLabel(domain.LabelImportant)) {
		return false
	}
	if f.HasAttachments != nil && *f.HasAttachments != m.HasAttachments {
		return false
	}
	if len(f.Labels) > 0 {
		found := false
		for _, l := range f.Labels {
			if m.HasLabel(l) || m.FolderName == l {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func toResult(c candidate) SearchResult {
	labels := c.msg.Labels
	if labels == nil {
		labels = []string{}
	}
	return SearchResult{
		MessageID:         c.msg.ID,
		ExternalMessageID: c.msg.ExternalMessageID,
		Subject:           c.msg.Subject,
		Snippet:           c.msg.Snippet,
		SenderEmail:       c.msg.SenderEmail,
		SenderName:        c.msg.SenderName,
		DateSent:          c.msg.DateSent,
		RelevanceScore:    round3(c.score),
		SearchType:        c.kind,
		HasAttachments:    c.msg.HasAttachments,
		IsImportant:       c.msg.IsImportant,
		Labels:            labels,
	}
}
