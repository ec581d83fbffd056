package gmail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// now is replaced in tests.
var now = time.Now

// compose renders msg as an RFC 5322 text/plain message.
func compose(msg *domain.OutgoingMessage) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("message has no recipients")
	}

	var h mail.Header
	h.SetDate(now())
	h.SetSubject(msg.Subject)
	if msg.From.Email != "" {
		h.SetAddressList("From", toMailAddresses([]domain.Address{msg.From}))
	}
	h.SetAddressList("To", toMailAddresses(msg.To))
	if len(msg.CC) > 0 {
		h.SetAddressList("Cc", toMailAddresses(msg.CC))
	}
	if msg.InReplyTo != "" {
		h.Set("In-Reply-To", msg.InReplyTo)
		h.Set("References", msg.InReplyTo)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func toMailAddresses(addrs []domain.Address) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Name: a.Name, Address: a.Email})
	}
	return out
}
