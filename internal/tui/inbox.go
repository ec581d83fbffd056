package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// Messages emitted by inboxModel.

type messageSelectedMsg struct {
	messageID int64
}

type draftSelectedMsg struct {
	draftID int64
}

// listItem is one row of the list pane: a message, a search hit or a draft.
type listItem struct {
	messageID int64
	draftID   int64
	from      string
	subject   string
	date      time.Time
	unread    bool
	// tag is a short right-hand marker such as a relevance score or
	// approval status.
	tag string
}

func messageItems(msgs []domain.Message) []listItem {
	items := make([]listItem, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		items = append(items, listItem{
			messageID: m.ID,
			from:      addressDisplayName(m.Sender()),
			subject:   m.Subject,
			date:      m.DateSent,
			unread:    !m.IsRead,
		})
	}
	return items
}

func resultItems(results []app.SearchResult) []listItem {
	items := make([]listItem, 0, len(results))
	for _, r := range results {
		items = append(items, listItem{
			messageID: r.MessageID,
			from:      addressDisplayName(domain.Address{Name: r.SenderName, Email: r.SenderEmail}),
			subject:   r.Subject,
			date:      r.DateSent,
			tag:       fmt.Sprintf("%.2f", r.RelevanceScore),
		})
	}
	return items
}

func draftItems(drafts []domain.Draft) []listItem {
	items := make([]listItem, 0, len(drafts))
	for i := range drafts {
		d := &drafts[i]
		tag := string(d.ApprovalStatus)
		if d.IsSent {
			tag = "sent"
		} else if !d.SafetyCheckPassed {
			tag = "check"
		}
		items = append(items, listItem{
			draftID: d.ID,
			from:    d.RecipientEmail,
			subject: d.Subject,
			date:    d.CreatedAt,
			tag:     tag,
		})
	}
	return items
}

// inboxModel displays the rows of the active folder.
type inboxModel struct {
	items   []listItem
	cursor  int
	offset  int
	width   int
	height  int
	focused bool
}

func newInbox() inboxModel {
	return inboxModel{}
}

func (m inboxModel) Update(msg tea.Msg) (inboxModel, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustScroll()
			}

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
				m.adjustScroll()
			}

		case key.Matches(msg, keys.Enter):
			return m, m.selectItem()
		}
	}

	return m, nil
}

func (m inboxModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if len(m.items) == 0 {
		return mutedTextStyle.Render("Nothing here")
	}

	var b strings.Builder
	end := min(m.offset+m.visibleRows(), len(m.items))
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			b.WriteByte('\n')
		}
		line := m.renderRow(i)
		if i == m.cursor && m.focused {
			line = selectedStyle.Width(m.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

// SetItems replaces the rows and resets the cursor.
func (m *inboxModel) SetItems(items []listItem) {
	m.items = items
	m.cursor = 0
	m.offset = 0
}

func (m *inboxModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.adjustScroll()
}

// Selected returns the highlighted row.
func (m inboxModel) Selected() (listItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return listItem{}, false
	}
	return m.items[m.cursor], true
}

// --- internal helpers ---

func (m inboxModel) visibleRows() int {
	return max(m.height, 1)
}

func (m *inboxModel) adjustScroll() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

func (m inboxModel) selectItem() tea.Cmd {
	item, ok := m.Selected()
	if !ok {
		return nil
	}
	if item.draftID != 0 {
		return func() tea.Msg { return draftSelectedMsg{draftID: item.draftID} }
	}
	return func() tea.Msg { return messageSelectedMsg{messageID: item.messageID} }
}

func (m inboxModel) renderRow(idx int) string {
	return renderItem(m.items[idx], m.width)
}

// renderItem lays out one row as from, subject, tag and date columns.
func renderItem(item listItem, width int) string {
	date := relativeDate(item.date)
	tag := ""
	if item.tag != "" {
		tag = " " + item.tag
	}

	fromWidth := 18
	dateWidth := len(date)
	subjectWidth := max(width-fromWidth-len(tag)-dateWidth-4, 10)

	fromCol := lipgloss.NewStyle().Width(fromWidth).Render(truncate(item.from, fromWidth))
	subjectCol := lipgloss.NewStyle().Width(subjectWidth).Render(truncate(item.subject, subjectWidth))
	tagCol := scoreStyle.Render(tag)
	dateCol := mutedTextStyle.Width(dateWidth).Render(date)

	line := fromCol + "  " + subjectCol + tagCol + "  " + dateCol
	if item.unread {
		line = unreadStyle.Render(line)
	}
	return line
}

// --- utility functions ---

func addressDisplayName(addr domain.Address) string {
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Email
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func relativeDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
