package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

type readerKind int

const (
	readingNothing readerKind = iota
	readingMessage
	readingDraft
)

// Messages emitted by readerModel.

type replyMsg struct {
	message *domain.Message
}

type draftActionMsg struct {
	draftID int64
	action  string
}

type closeReaderMsg struct{}

// readerModel shows a message or a draft in a scrollable pane.
type readerModel struct {
	message      *domain.Message
	draft        *domain.Draft
	content      string
	scrollOffset int
	maxScroll    int
	width        int
	height       int
	focused      bool
}

func newReader() readerModel {
	return readerModel{}
}

func (r readerModel) Update(msg tea.Msg) (readerModel, tea.Cmd) {
	if !r.focused || r.Kind() == readingNothing {
		return r, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if r.scrollOffset > 0 {
				r.scrollOffset--
			}

		case key.Matches(msg, keys.Down):
			if r.scrollOffset < r.maxScroll {
				r.scrollOffset++
			}

		case key.Matches(msg, keys.Back):
			return r, func() tea.Msg { return closeReaderMsg{} }

		case key.Matches(msg, keys.Reply):
			if m := r.message; m != nil {
				return r, func() tea.Msg { return replyMsg{message: m} }
			}

		case key.Matches(msg, keys.Approve):
			return r, r.draftAction("approve")

		case key.Matches(msg, keys.Reject):
			return r, r.draftAction("reject")

		case key.Matches(msg, keys.Send):
			return r, r.draftAction("send")
		}
	}

	return r, nil
}

func (r readerModel) draftAction(action string) tea.Cmd {
	if r.draft == nil {
		return nil
	}
	id := r.draft.ID
	return func() tea.Msg { return draftActionMsg{draftID: id, action: action} }
}

func (r readerModel) View() string {
	if r.Kind() == readingNothing || r.width == 0 || r.height == 0 {
		return ""
	}

	lines := strings.Split(r.content, "\n")
	start := min(r.scrollOffset, len(lines))
	end := min(start+max(r.height, 1), len(lines))
	return strings.Join(lines[start:end], "\n")
}

// ShowMessage displays a stored message.
func (r *readerModel) ShowMessage(m *domain.Message) {
	r.message = m
	r.draft = nil
	r.scrollOffset = 0
	r.render()
}

// ShowDraft displays a draft with its review state.
func (r *readerModel) ShowDraft(d *domain.Draft) {
	r.draft = d
	r.message = nil
	r.scrollOffset = 0
	r.render()
}

func (r *readerModel) Close() {
	r.message = nil
	r.draft = nil
	r.content = ""
	r.scrollOffset = 0
	r.maxScroll = 0
}

func (r *readerModel) SetSize(w, h int) {
	r.width = w
	r.height = h
	r.render()
}

// Kind reports what the reader is showing.
func (r readerModel) Kind() readerKind {
	switch {
	case r.draft != nil:
		return readingDraft
	case r.message != nil:
		return readingMessage
	default:
		return readingNothing
	}
}

func (r readerModel) IsVisible() bool {
	return r.Kind() != readingNothing
}

// --- internal helpers ---

func (r *readerModel) render() {
	switch {
	case r.draft != nil:
		r.content = renderDraft(r.draft, r.width)
	case r.message != nil:
		r.content = renderMessage(r.message, r.width)
	default:
		r.content = ""
	}

	lines := strings.Count(r.content, "\n") + 1
	r.maxScroll = max(lines-max(r.height, 1), 0)
	r.scrollOffset = min(r.scrollOffset, r.maxScroll)
}

func header(b *strings.Builder, name, value string) {
	b.WriteString(mutedTextStyle.Render(fmt.Sprintf("%-9s", name+":")))
	b.WriteString(value)
	b.WriteByte('\n')
}

func separator(width int) string {
	return mutedTextStyle.Render(strings.Repeat("─", max(width, 20)))
}

func renderMessage(m *domain.Message, width int) string {
	var b strings.Builder
	header(&b, "From", m.Sender().String())
	header(&b, "To", formatAddresses(m.Recipients))
	if len(m.CC) > 0 {
		header(&b, "CC", formatAddresses(m.CC))
	}
	header(&b, "Date", m.DateSent.Local().Format("Jan 2, 2006 3:04 PM"))
	header(&b, "Subject", m.Subject)
	if len(m.Labels) > 0 {
		header(&b, "Labels", strings.Join(m.Labels, ", "))
	}
	b.WriteString(separator(width))
	b.WriteByte('\n')

	body := m.BodyPlain
	if body == "" && m.BodyHTML != "" {
		body = "[HTML content - plain text not available]\n\n" + m.Snippet
	}
	if body != "" {
		b.WriteByte('\n')
		b.WriteString(body)
	}
	return b.String()
}

func renderDraft(d *domain.Draft, width int) string {
	var b strings.Builder
	status := string(d.ApprovalStatus)
	if d.IsSent {
		status = "sent"
	}
	header(&b, "Draft", fmt.Sprintf("#%d (%s)", d.ID, status))
	header(&b, "To", d.RecipientEmail)
	header(&b, "Subject", d.Subject)
	header(&b, "Style", fmt.Sprintf("%s, %s, confidence %.2f", d.Tone, d.Length, d.AIConfidence))
	if d.SafetyCheckPassed {
		header(&b, "Safety", okStyle.Render("passed"))
	} else {
		header(&b, "Safety", warningStyle.Render(strings.Join(d.SafetyIssues, "; ")))
	}
	b.WriteString(separator(width))
	b.WriteString("\n\n")
	b.WriteString(d.BodyText)
	return b.String()
}

func formatAddresses(addrs []domain.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
