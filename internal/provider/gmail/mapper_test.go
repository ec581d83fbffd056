package gmail

import (
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Address
	}{
		{"Priya Raman <priya@acme.io>", domain.Address{Name: "Priya Raman", Email: "priya@acme.io"}},
		{`"Raman, Priya" <priya@acme.io>`, domain.Address{Name: "Raman, Priya", Email: "priya@acme.io"}},
		{"<billing@acme.io>", domain.Address{Email: "billing@acme.io"}},
		{"  ops@acme.io  ", domain.Address{Email: "ops@acme.io"}},
		{"not an address", domain.Address{Email: "not an address"}},
		{"", domain.Address{}},
	}
	for _, tt := range tests {
		if got := parseAddress(tt.in); got != tt.want {
			t.Errorf("parseAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseAddressList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"priya@acme.io", []string{"priya@acme.io"}},
		{`"Raman, Priya" <priya@acme.io>, Ops <ops@acme.io>`, []string{"priya@acme.io", "ops@acme.io"}},
		// Unparseable lists fall back to a comma split.
		{"priya@acme.io, , broken <", []string{"priya@acme.io", "broken <"}},
	}
	for _, tt := range tests {
		got := parseAddressList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("parseAddressList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i].Email != tt.want[i] {
				t.Errorf("parseAddressList(%q)[%d] = %q, want %q", tt.in, i, got[i].Email, tt.want[i])
			}
		}
	}
}

func TestFindHeader(t *testing.T) {
	headers := []*gmailapi.MessagePartHeader{
		{Name: "Message-ID", Value: "<abc@acme.io>"},
		{Name: "Subject", Value: "Q3 invoice"},
		{Name: "Subject", Value: "duplicate"},
	}
	for key, want := range map[string]string{
		"message-id": "<abc@acme.io>",
		"SUBJECT":    "Q3 invoice",
		"Reply-To":   "",
	} {
		if got := findHeader(headers, key); got != want {
			t.Errorf("findHeader(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"Tue, 05 Mar 2024 12:00:00 -0500",
		"Tue, 5 Mar 2024 12:00:00 -0500 (EST)",
		"5 Mar 2024 12:00:00 -0500",
		"2024-03-05T12:00:00-05:00",
	} {
		if got := parseDate(in); !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "   ", "yesterday"} {
		if got := parseDate(in); !got.IsZero() {
			t.Errorf("parseDate(%q) = %v, want zero time", in, got)
		}
	}
}

func TestDecodeBase64URL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple text", "SGVsbG8gV29ybGQ", "Hello World"},
		{"empty", "", ""},
		{"with special chars", "SGVsbG8rV29ybGQ", "Hello+World"},
		{"padded", "SGk=", "Hi"},
		{"invalid", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeBase64URL(tt.input)
			if got != tt.want {
				t.Errorf("decodeBase64URL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name     string
		payload  *gmailapi.MessagePart
		wantText string
		wantHTML string
	}{
		{
			name: "plain text body",
			payload: &gmailapi.MessagePart{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: "SGVsbG8"},
			},
			wantText: "Hello",
			wantHTML: "",
		},
		{
			name: "html body",
			payload: &gmailapi.MessagePart{
				MimeType: "text/html",
				Body:     &gmailapi.MessagePartBody{Data: "PGI-SGk8L2I-"},
			},
			wantText: "",
			wantHTML: "<b>Hi</b>",
		},
		{
			name: "multipart with text and html",
			payload: &gmailapi.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmailapi.MessagePartBody{Data: "SGVsbG8"},
					},
					{
						MimeType: "text/html",
						Body:     &gmailapi.MessagePartBody{Data: "PGI-SGk8L2I-"},
					},
				},
			},
			wantText: "Hello",
			wantHTML: "<b>Hi</b>",
		},
		{
			name:     "nil payload",
			payload:  nil,
			wantText: "",
			wantHTML: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, html := extractBody(tt.payload)
			if text != tt.wantText {
				t.Errorf("extractBody() text = %q, want %q", text, tt.wantText)
			}
			if html != tt.wantHTML {
				t.Errorf("extractBody() html = %q, want %q", html, tt.wantHTML)
			}
		})
	}
}

func TestMapMessage(t *testing.T) {
	msg := &gmailapi.Message{
		Id:           "msg123",
		ThreadId:     "thread456",
		Snippet:      "Hello",
		LabelIds:     []string{"SENT", "IMPORTANT"},
		SizeEstimate: 2048,
		InternalDate: 1704110400000,
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: "Alice <Alice@Example.com>"},
				{Name: "To", Value: "Bob <bob@example.com>"},
				{Name: "Cc", Value: "carol@example.com, dan@example.com"},
				{Name: "Subject", Value: "Test Subject"},
				{Name: "Date", Value: "Mon, 01 Jan 2024 12:00:00 +0000"},
			},
			Body: &gmailapi.MessagePartBody{Data: "SGVsbG8"},
		},
	}

	m := mapMessage(msg)
	if m.ExternalMessageID != "msg123" {
		t.Errorf("ExternalMessageID = %q, want %q", m.ExternalMessageID, "msg123")
	}
	if m.ThreadID != "thread456" {
		t.Errorf("ThreadID = %q, want %q", m.ThreadID, "thread456")
	}
	if m.SenderName != "Alice" || m.SenderEmail != "alice@example.com" {
		t.Errorf("sender = %q <%q>, want Alice <alice@example.com>", m.SenderName, m.SenderEmail)
	}
	if len(m.Recipients) != 1 || m.Recipients[0].Email != "bob@example.com" {
		t.Errorf("Recipients = %v, want [bob@example.com]", m.Recipients)
	}
	if len(m.CC) != 2 {
		t.Errorf("CC = %v, want 2 addresses", m.CC)
	}
	if m.BodyPlain != "Hello" || m.Snippet != "Hello" {
		t.Errorf("BodyPlain = %q, Snippet = %q", m.BodyPlain, m.Snippet)
	}
	if !m.IsRead || !m.IsImportant {
		t.Errorf("IsRead = %v, IsImportant = %v, want true, true", m.IsRead, m.IsImportant)
	}
	if m.FolderName != "SENT" {
		t.Errorf("FolderName = %q, want SENT", m.FolderName)
	}
	if m.MessageFormat != domain.FormatText {
		t.Errorf("MessageFormat = %q, want text", m.MessageFormat)
	}
	if m.SizeBytes != 2048 {
		t.Errorf("SizeBytes = %d, want 2048", m.SizeBytes)
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !m.DateSent.Equal(want) {
		t.Errorf("DateSent = %v, want %v", m.DateSent, want)
	}
	if m.DateReceived == nil || !m.DateReceived.Equal(want) {
		t.Errorf("DateReceived = %v, want %v", m.DateReceived, want)
	}
}

func TestMapMessage_IsRead(t *testing.T) {
	msg := &gmailapi.Message{
		Id:       "msg1",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers:  []*gmailapi.MessagePartHeader{},
			Body:     &gmailapi.MessagePartBody{},
		},
	}
	if mapMessage(msg).IsRead {
		t.Error("expected IsRead = false when UNREAD label present")
	}

	msg.LabelIds = []string{"INBOX"}
	if !mapMessage(msg).IsRead {
		t.Error("expected IsRead = true when UNREAD label absent")
	}
}

func TestMapMessage_DateFallsBackToInternalDate(t *testing.T) {
	msg := &gmailapi.Message{
		Id:           "msg1",
		InternalDate: 1704110400000,
		Payload:      &gmailapi.MessagePart{MimeType: "text/plain"},
	}
	m := mapMessage(msg)
	if m.DateSent.IsZero() || m.DateSent.Year() != 2024 {
		t.Errorf("DateSent = %v, want internal date", m.DateSent)
	}
	if m.FolderName != "INBOX" {
		t.Errorf("FolderName = %q, want INBOX default", m.FolderName)
	}
}

func TestMapMessage_Attachments(t *testing.T) {
	msg := &gmailapi.Message{
		Id: "msg1",
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Headers:  []*gmailapi.MessagePartHeader{},
			Parts: []*gmailapi.MessagePart{
				{
					MimeType: "text/plain",
					Body:     &gmailapi.MessagePartBody{Data: "SGVsbG8"},
				},
				{
					MimeType: "application/pdf",
					Filename: "doc.pdf",
					Body:     &gmailapi.MessagePartBody{AttachmentId: "att123", Size: 1024},
				},
				{
					MimeType: "text/plain",
					Filename: "notes.txt",
					Body:     &gmailapi.MessagePartBody{Data: "bm90ZXM"},
				},
			},
		},
	}
	m := mapMessage(msg)
	if !m.HasAttachments || m.AttachmentCount != 2 {
		t.Errorf("HasAttachments = %v, AttachmentCount = %d, want true, 2", m.HasAttachments, m.AttachmentCount)
	}
	if m.BodyPlain != "Hello" {
		t.Errorf("BodyPlain = %q, want Hello (attachment text must not replace the body)", m.BodyPlain)
	}
	if m.MessageFormat != domain.FormatMultipart {
		t.Errorf("MessageFormat = %q, want multipart", m.MessageFormat)
	}
}

func TestMessageFormat(t *testing.T) {
	tests := []struct {
		mime string
		want domain.MessageFormat
	}{
		{"text/plain", domain.FormatText},
		{"text/html", domain.FormatHTML},
		{"multipart/alternative", domain.FormatMultipart},
		{"application/octet-stream", domain.FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := messageFormat(&gmailapi.MessagePart{MimeType: tt.mime}); got != tt.want {
				t.Errorf("messageFormat(%q) = %q, want %q", tt.mime, got, tt.want)
			}
		})
	}
	if got := messageFormat(nil); got != domain.FormatText {
		t.Errorf("messageFormat(nil) = %q, want text", got)
	}
}

func TestParseDate_Consistency(t *testing.T) {
	// Both formats should parse to the same point in time
	rfc1123z := "Mon, 01 Jan 2024 12:00:00 +0000"
	custom := "Mon, 1 Jan 2024 12:00:00 +0000"

	t1 := parseDate(rfc1123z)
	t2 := parseDate(custom)

	if !t1.Equal(t2) {
		t.Errorf("same datetime in different formats should be equal: %v vs %v", t1, t2)
	}
}

func TestParseAddressList_Content(t *testing.T) {
	input := "Alice <alice@example.com>, bob@example.com"
	addrs := parseAddressList(input)
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(addrs))
	}
	if addrs[0].Name != "Alice" || addrs[0].Email != "alice@example.com" {
		t.Errorf("first address = %+v, want Alice <alice@example.com>", addrs[0])
	}
	if addrs[1].Email != "bob@example.com" {
		t.Errorf("second address email = %q, want %q", addrs[1].Email, "bob@example.com")
	}
}

func TestParseDate_Invalid(t *testing.T) {
	got := parseDate("not a date")
	if !got.IsZero() {
		t.Errorf("parseDate(invalid) = %v, want zero time", got)
	}
}

func TestParseDate_Precision(t *testing.T) {
	got := parseDate("Mon, 01 Jan 2024 15:30:45 -0500")
	expected := time.Date(2024, 1, 1, 15, 30, 45, 0, time.FixedZone("", -5*60*60))
	if !got.Equal(expected) {
		t.Errorf("parseDate() = %v, want %v", got, expected)
	}
}
