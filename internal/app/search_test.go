package app

import (
	"context"
	"fmt"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/embedding"
	"github.com/lu-zhengda/mailpilot/internal/journal"
)

// Wednesday afternoon.
var searchNow = time.Date(2025, 6, 11, 15, 0, 0, 0, time.UTC)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		query    string
		senders  []string
		keywords []string
		labels   []string
		cleaned  string
		typ      SearchType
	}{
		{
			query:    "emails from bob@example.com about invoices",
			senders:  []string{"bob@example.com"},
			keywords: []string{"emails", "invoices"},
			cleaned:  "emails invoices",
			typ:      SearchFiltered,
		},
		{
			query:    "from John meeting notes",
			keywords: []string{"john", "meeting", "notes"},
			cleaned:  "john meeting notes",
			typ:      SearchHybrid,
		},
		{
			query:    "sender: alice@corp.io report",
			senders:  []string{"alice@corp.io"},
			keywords: []string{"report"},
			cleaned:  "report",
			typ:      SearchFiltered,
		},
		{
			query:    "sent reports",
			keywords: []string{"reports"},
			labels:   []string{domain.LabelSent},
			cleaned:  "reports",
			typ:      SearchFiltered,
		},
		{
			query:    "re: budget regarding q3",
			keywords: []string{"budget"},
			cleaned:  "budget",
			typ:      SearchHybrid,
		},
		{
			query:   "hi",
			cleaned: "hi",
			typ:     SearchKeyword,
		},
		{
			query:   "日本",
			cleaned: "日本",
			typ:     SearchKeyword,
		},
		{
			query:    "東京会議",
			keywords: []string{"東京会議"},
			cleaned:  "東京会議",
			typ:      SearchHybrid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := ParseQuery(tt.query, searchNow)
			if !slices.Equal(p.Filters.SenderEmails, tt.senders) {
				t.Errorf("SenderEmails = %q, want %q", p.Filters.SenderEmails, tt.senders)
			}
			if !slices.Equal(p.Filters.Keywords, tt.keywords) {
				t.Errorf("Keywords = %q, want %q", p.Filters.Keywords, tt.keywords)
			}
			if !slices.Equal(p.Filters.Labels, tt.labels) {
				t.Errorf("Labels = %q, want %q", p.Filters.Labels, tt.labels)
			}
			if p.Cleaned != tt.cleaned {
				t.Errorf("Cleaned = %q, want %q", p.Cleaned, tt.cleaned)
			}
			if p.Type != tt.typ {
				t.Errorf("Type = %q, want %q", p.Type, tt.typ)
			}
		})
	}
}

func TestParseQuery_Dates(t *testing.T) {
	day := func(y int, m time.Month, d, h, min, s int) time.Time {
		return time.Date(y, m, d, h, min, s, 0, time.UTC)
	}
	tests := []struct {
		query    string
		from, to time.Time
	}{
		{"notes today", day(2025, 6, 11, 0, 0, 0), searchNow},
		{"notes yesterday", day(2025, 6, 10, 0, 0, 0), day(2025, 6, 10, 23, 59, 59)},
		{"notes last week", day(2025, 6, 4, 15, 0, 0), searchNow},
		{"notes this week", day(2025, 6, 9, 0, 0, 0), searchNow},
		{"notes last month", day(2025, 5, 12, 15, 0, 0), searchNow},
		{"notes this month", day(2025, 6, 1, 0, 0, 0), searchNow},
		{"notes last year", day(2024, 6, 11, 15, 0, 0), searchNow},
		{"invoices march 2024", day(2024, 3, 1, 0, 0, 0), day(2024, 4, 1, 0, 0, 0)},
		{"invoices december 2024", day(2024, 12, 1, 0, 0, 0), day(2025, 1, 1, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := ParseQuery(tt.query, searchNow)
			if p.Filters.DateFrom == nil || p.Filters.DateTo == nil {
				t.Fatalf("date range not set: %+v", p.Filters)
			}
			if !p.Filters.DateFrom.Equal(tt.from) {
				t.Errorf("DateFrom = %v, want %v", p.Filters.DateFrom, tt.from)
			}
			if !p.Filters.DateTo.Equal(tt.to) {
				t.Errorf("DateTo = %v, want %v", p.Filters.DateTo, tt.to)
			}
			if p.Type != SearchFiltered {
				t.Errorf("Type = %q, want filtered", p.Type)
			}
		})
	}
}

func TestParseQuery_Flags(t *testing.T) {
	p := ParseQuery("important attachments yesterday", searchNow)
	if p.Filters.IsImportant == nil || !*p.Filters.IsImportant {
		t.Error("IsImportant not set")
	}
	if p.Filters.HasAttachments == nil || !*p.Filters.HasAttachments {
		t.Error("HasAttachments not set")
	}
	if len(p.Filters.Keywords) != 0 {
		t.Errorf("Keywords = %q, want none", p.Filters.Keywords)
	}
	if p.Type != SearchKeyword {
		t.Errorf("Type = %q, want keyword", p.Type)
	}
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		subject, snippet string
		terms            []string
		want             float64
	}{
		{"Budget review", "numbers", []string{"budget"}, 2},
		{"Lunch", "budget places", []string{"budget"}, 1},
		{"Budget", "budget", []string{"budget"}, 3},
		{"Budget", "", []string{"budget", "travel"}, 1},
		{"Budget", "", nil, 0},
	}
	for _, tt := range tests {
		if got := KeywordScore(tt.subject, tt.snippet, tt.terms); got != tt.want {
			t.Errorf("KeywordScore(%q, %q, %q) = %v, want %v", tt.subject, tt.snippet, tt.terms, got, tt.want)
		}
	}
}

func TestFuse(t *testing.T) {
	msg := func(id int64) domain.Message { return domain.Message{ID: id} }
	keyword := []candidate{
		{msg: msg(1), score: 2, kind: "keyword"},
		{msg: msg(2), score: 1, kind: "keyword"},
	}
	semantic := []candidate{
		{msg: msg(2), score: 0.9, kind: "semantic"},
		{msg: msg(3), score: 0.5, kind: "semantic"},
	}
	got := fuse(keyword, semantic, 10)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].msg.ID != 1 || got[0].kind != "keyword" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].msg.ID != 2 || got[1].kind != "hybrid" || math.Abs(got[1].score-0.94) > 1e-9 {
		t.Errorf("got[1] = %+v, want hybrid 0.94", got[1])
	}
	if got[2].msg.ID != 3 || got[2].kind != "semantic" {
		t.Errorf("got[2] = %+v", got[2])
	}

	if got := fuse(keyword, semantic, 2); len(got) != 2 {
		t.Errorf("truncated len = %d, want 2", len(got))
	}
}

func TestMatchesFilters(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	m := domain.Message{
		SenderEmail:    "Alice@Corp.io",
		DateSent:       time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		HasAttachments: true,
		Labels:         []string{domain.LabelInbox, domain.LabelImportant},
	}
	tests := []struct {
		name string
		f    SearchFilters
		want bool
	}{
		{"none", SearchFilters{}, true},
		{"sender substring", SearchFilters{SenderEmails: []string{"corp.io"}}, true},
		{"other sender", SearchFilters{SenderEmails: []string{"bob@x.com"}}, false},
		{"in range", SearchFilters{DateFrom: &from, DateTo: &to}, true},
		{"before range", SearchFilters{DateFrom: &to}, false},
		{"important", SearchFilters{IsImportant: ptr(true)}, true},
		{"not important", SearchFilters{IsImportant: ptr(false)}, false},
		{"no attachments", SearchFilters{HasAttachments: ptr(false)}, false},
		{"inbox", SearchFilters{Labels: []string{domain.LabelInbox}}, true},
		{"trash", SearchFilters{Labels: []string{domain.LabelTrash}}, false},
	}
	for _, tt := range tests {
		if got := matchesFilters(&m, &tt.f); got != tt.want {
			t.Errorf("%s: matchesFilters() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSearcher_Search(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	other := newTestAccount(t, db, "u2", "other@example.com")
	ctx := context.Background()

	sent := searchNow.Add(-2 * time.Hour)
	budget := storeMessage(t, db, domain.Message{
		AccountID: acct.ID, ExternalMessageID: "m1", SenderEmail: "alice@corp.io",
		Subject: "Quarterly budget review", Snippet: "numbers attached", DateSent: sent,
		Labels: []string{domain.LabelInbox, domain.LabelImportant}, IsImportant: true,
	})
	lunch := storeMessage(t, db, domain.Message{
		AccountID: acct.ID, ExternalMessageID: "m2", SenderEmail: "bob@example.com",
		Subject: "Lunch plans", Snippet: "budget friendly places", DateSent: sent,
		Labels: []string{domain.LabelInbox},
	})
	storeMessage(t, db, domain.Message{
		AccountID: acct.ID, ExternalMessageID: "m3", SenderEmail: "carol@example.com",
		Subject: "Holiday photos", Snippet: "pictures from the trip", DateSent: sent,
	})
	storeMessage(t, db, domain.Message{
		AccountID: other.ID, ExternalMessageID: "m4", SenderEmail: "dave@example.com",
		Subject: "Budget for another account", Snippet: "budget", DateSent: sent,
	})

	index := db.Vectors("email_vectors")
	engine := embedding.NewHashEngine(256)
	emb := embedding.NewService(db, index, engine, "email_vectors", 10, nil)
	if _, err := emb.ProcessPending(ctx, 100); err != nil {
		t.Fatal(err)
	}

	s := NewSearcher(db, index, engine, journal.New(db, nil), time.UTC, nil)
	s.Now = fixedClock(searchNow)

	resp := s.Search(ctx, acct.ID, "budget", 20)
	if !resp.Success || len(resp.Errors) != 0 {
		t.Fatalf("Success = %v, Errors = %v", resp.Success, resp.Errors)
	}
	if resp.SearchType != SearchHybrid {
		t.Errorf("SearchType = %q, want hybrid", resp.SearchType)
	}
	if resp.TotalResults != 2 || len(resp.Results) != 2 {
		t.Fatalf("results = %+v, want 2", resp.Results)
	}
	if resp.Results[0].MessageID != budget.ID || resp.Results[1].MessageID != lunch.ID {
		t.Errorf("order = %d, %d; want %d, %d", resp.Results[0].MessageID, resp.Results[1].MessageID, budget.ID, lunch.ID)
	}
	for _, r := range resp.Results {
		if r.SearchType != "hybrid" {
			t.Errorf("message %d SearchType = %q, want hybrid", r.MessageID, r.SearchType)
		}
	}
	// 0.6 * cos("budget", "quarterly budget review") + 0.4 * 2
	if got := resp.Results[0].RelevanceScore; math.Abs(got-1.146) > 0.002 {
		t.Errorf("top RelevanceScore = %v, want about 1.146", got)
	}
	if resp.Statistics.KeywordMatches != 2 || resp.Statistics.SemanticMatches != 2 || resp.Statistics.FinalResults != 2 {
		t.Errorf("Statistics = %+v", resp.Statistics)
	}

	filtered := s.Search(ctx, acct.ID, "important budget", 20)
	if filtered.TotalResults != 1 || filtered.Results[0].MessageID != budget.ID {
		t.Errorf("important filter results = %+v", filtered.Results)
	}

	logs, _ := db.ListLogs(ctx, domain.EventSearch, 10)
	if len(logs) != 2 {
		t.Errorf("search logs = %d, want 2", len(logs))
	}
}

func TestSearcher_FilterOnlyReachesOlderMatches(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	var important []int64
	for i := range 2 {
		m := storeMessage(t, db, domain.Message{
			AccountID: acct.ID, ExternalMessageID: fmt.Sprintf("imp-%d", i), SenderEmail: "ceo@corp.io",
			Subject: "Board meeting", DateSent: searchNow.Add(-time.Duration(20+i) * time.Hour),
			Labels: []string{domain.LabelInbox, domain.LabelImportant}, IsImportant: true,
		})
		important = append(important, m.ID)
	}
	for i := range 10 {
		storeMessage(t, db, domain.Message{
			AccountID: acct.ID, ExternalMessageID: fmt.Sprintf("news-%d", i), SenderEmail: "news@example.com",
			Subject: "Newsletter", DateSent: searchNow.Add(-time.Duration(i+1) * time.Hour),
			Labels: []string{domain.LabelInbox},
		})
	}

	s := NewSearcher(db, nil, nil, nil, nil, nil)
	s.Now = fixedClock(searchNow)
	resp := s.Search(context.Background(), acct.ID, "important", 5)
	if !resp.Success {
		t.Fatalf("Errors = %v", resp.Errors)
	}
	var got []int64
	for _, r := range resp.Results {
		got = append(got, r.MessageID)
	}
	if !slices.Equal(got, important) {
		t.Errorf("results = %v, want %v", got, important)
	}
}

func TestSearcher_KeywordOnly(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	storeMessage(t, db, domain.Message{
		AccountID: acct.ID, ExternalMessageID: "m1", SenderEmail: "alice@corp.io",
		Subject: "Invoice 42", Snippet: "due friday", DateSent: searchNow.Add(-time.Hour),
	})

	s := NewSearcher(db, nil, nil, nil, nil, nil)
	s.Now = fixedClock(searchNow)
	resp := s.Search(context.Background(), acct.ID, "invoice from alice@corp.io", 0)
	if !resp.Success {
		t.Fatalf("Errors = %v", resp.Errors)
	}
	if resp.TotalResults != 1 || resp.Results[0].SearchType != "keyword" {
		t.Errorf("results = %+v", resp.Results)
	}
	if resp.Statistics.SemanticMatches != 0 {
		t.Errorf("SemanticMatches = %d, want 0 without an engine", resp.Statistics.SemanticMatches)
	}
}
