package gmail

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

func TestCompose(t *testing.T) {
	now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	raw, err := compose(&domain.OutgoingMessage{
		From:      domain.Address{Name: "Me", Email: "me@example.com"},
		To:        []domain.Address{{Name: "Bob", Email: "bob@example.com"}},
		CC:        []domain.Address{{Email: "carol@example.com"}},
		Subject:   "Re: Lunch?",
		Body:      "Sounds good, see you at noon.",
		InReplyTo: "<abc@mail.gmail.com>",
	})
	if err != nil {
		t.Fatalf("compose() error: %v", err)
	}

	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader() error: %v", err)
	}
	subject, _ := r.Header.Subject()
	if subject != "Re: Lunch?" {
		t.Errorf("Subject = %q, want %q", subject, "Re: Lunch?")
	}
	to, _ := r.Header.AddressList("To")
	if len(to) != 1 || to[0].Address != "bob@example.com" || to[0].Name != "Bob" {
		t.Errorf("To = %v", to)
	}
	cc, _ := r.Header.AddressList("Cc")
	if len(cc) != 1 || cc[0].Address != "carol@example.com" {
		t.Errorf("Cc = %v", cc)
	}
	if got := r.Header.Get("In-Reply-To"); got != "<abc@mail.gmail.com>" {
		t.Errorf("In-Reply-To = %q", got)
	}
	date, _ := r.Header.Date()
	if !date.Equal(now()) {
		t.Errorf("Date = %v, want %v", date, now())
	}

	part, err := r.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error: %v", err)
	}
	body, _ := io.ReadAll(part.Body)
	if strings.TrimSpace(string(body)) != "Sounds good, see you at noon." {
		t.Errorf("body = %q", body)
	}
}

func TestCompose_RequiresRecipient(t *testing.T) {
	if _, err := compose(&domain.OutgoingMessage{Subject: "x", Body: "y"}); err == nil {
		t.Error("compose() without recipients should fail")
	}
}
