package gmail

import (
	"encoding/base64"
	"net/mail"
	"slices"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// mapMessage converts a Gmail API message to a domain Message.
func mapMessage(msg *gmailapi.Message) *domain.Message {
	var headers []*gmailapi.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	text, html := extractBody(msg.Payload)
	attachments := countAttachments(msg.Payload)
	from := parseAddress(findHeader(headers, "From"))

	var received *time.Time
	if msg.InternalDate > 0 {
		t := time.UnixMilli(msg.InternalDate).UTC()
		received = &t
	}
	sent := parseDate(findHeader(headers, "Date"))
	if sent.IsZero() && received != nil {
		sent = *received
	}

	return &domain.Message{
		ExternalMessageID: msg.Id,
		ThreadID:          msg.ThreadId,
		SenderEmail:       strings.ToLower(from.Email),
		SenderName:        from.Name,
		Recipients:        parseAddressList(findHeader(headers, "To")),
		CC:                parseAddressList(findHeader(headers, "Cc")),
		BCC:               parseAddressList(findHeader(headers, "Bcc")),
		Subject:           findHeader(headers, "Subject"),
		Snippet:           msg.Snippet,
		BodyPlain:         text,
		BodyHTML:          html,
		DateSent:          sent,
		DateReceived:      received,
		IsRead:            !slices.Contains(msg.LabelIds, domain.LabelUnread),
		IsImportant:       slices.Contains(msg.LabelIds, domain.LabelImportant),
		HasAttachments:    attachments > 0,
		AttachmentCount:   attachments,
		Labels:            msg.LabelIds,
		FolderName:        domain.FolderFromLabels(msg.LabelIds),
		SizeBytes:         msg.SizeEstimate,
		MessageFormat:     messageFormat(msg.Payload),
	}
}

func findHeader(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// parseAddress parses an RFC 5322 address string into a domain Address.
// Falls back to treating the entire string as a bare email if parsing fails.
func parseAddress(s string) domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Address{}
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return domain.Address{Email: s}
	}
	return domain.Address{Name: addr.Name, Email: addr.Address}
}

func parseAddressList(s string) []domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parsed, err := mail.ParseAddressList(s)
	if err != nil {
		var addrs []domain.Address
		for _, p := range strings.Split(s, ",") {
			if a := parseAddress(p); a.Email != "" {
				addrs = append(addrs, a)
			}
		}
		return addrs
	}

	addrs := make([]domain.Address, 0, len(parsed))
	for _, a := range parsed {
		addrs = append(addrs, domain.Address{Name: a.Name, Email: a.Address})
	}
	return addrs
}

var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
	"Mon, 02 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
}

// parseDate returns the zero time when no known header format matches.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// extractBody recursively extracts text/plain and text/html content.
func extractBody(payload *gmailapi.MessagePart) (text, html string) {
	if payload == nil {
		return "", ""
	}

	if len(payload.Parts) > 0 {
		for _, part := range payload.Parts {
			t, h := extractBody(part)
			if text == "" && t != "" {
				text = t
			}
			if html == "" && h != "" {
				html = h
			}
		}
		return text, html
	}

	// Attachments with a text type are not the body.
	if payload.Filename != "" {
		return "", ""
	}
	data := ""
	if payload.Body != nil {
		data = decodeBase64URL(payload.Body.Data)
	}
	switch payload.MimeType {
	case "text/plain":
		return data, ""
	case "text/html":
		return "", data
	}
	return "", ""
}

func countAttachments(part *gmailapi.MessagePart) int {
	if part == nil {
		return 0
	}
	n := 0
	if part.Filename != "" && part.Body != nil {
		n++
	}
	for _, p := range part.Parts {
		n += countAttachments(p)
	}
	return n
}

func messageFormat(payload *gmailapi.MessagePart) domain.MessageFormat {
	if payload == nil {
		return domain.FormatText
	}
	switch {
	case strings.HasPrefix(payload.MimeType, "multipart/"):
		return domain.FormatMultipart
	case payload.MimeType == "text/html":
		return domain.FormatHTML
	default:
		return domain.FormatText
	}
}

// decodeBase64URL decodes Gmail's URL-safe base64 strings, padded or not.
func decodeBase64URL(s string) string {
	if s == "" {
		return ""
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return ""
	}
	return string(data)
}
