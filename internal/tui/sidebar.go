package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// folder is one of the fixed views listed in the sidebar.
type folder string

const (
	folderInbox    folder = "inbox"
	folderUnread   folder = "unread"
	folderPending  folder = "pending"
	folderApproved folder = "approved"
)

var folderOrder = []folder{folderInbox, folderUnread, folderPending, folderApproved}

var folderNames = map[folder]string{
	folderInbox:    "Inbox",
	folderUnread:   "Unread",
	folderPending:  "Drafts to review",
	folderApproved: "Approved drafts",
}

// isDraftFolder reports whether f lists drafts rather than messages.
func (f folder) isDraftFolder() bool {
	return f == folderPending || f == folderApproved
}

// folderSelectedMsg is sent when the user selects a folder via Enter.
type folderSelectedMsg struct {
	folder folder
}

// sidebarModel lists the folders and the active account.
type sidebarModel struct {
	cursor       int
	active       folder
	accountEmail string
	width        int
	height       int
	focused      bool
}

func newSidebar() sidebarModel {
	return sidebarModel{active: folderInbox}
}

func (s *sidebarModel) SetSize(w, h int) {
	s.width = w
	s.height = h
}

func (s sidebarModel) Update(msg tea.Msg) (sidebarModel, tea.Cmd) {
	if !s.focused {
		return s, nil
	}

	total := len(folderOrder)
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			s.cursor--
			if s.cursor < 0 {
				s.cursor = total - 1
			}
		case key.Matches(msg, keys.Down):
			s.cursor++
			if s.cursor >= total {
				s.cursor = 0
			}
		case key.Matches(msg, keys.Enter):
			f := folderOrder[s.cursor]
			s.active = f
			return s, func() tea.Msg {
				return folderSelectedMsg{folder: f}
			}
		}
	}

	return s, nil
}

func (s sidebarModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mailpilot"))
	b.WriteString("\n")
	if s.accountEmail != "" {
		b.WriteString(mutedTextStyle.Render(truncate(s.accountEmail, max(s.width, 10))))
	}
	b.WriteString("\n\n")

	for i, f := range folderOrder {
		b.WriteString(s.renderLine(f, i))
		b.WriteString("\n")
	}
	return b.String()
}

func (s sidebarModel) renderLine(f folder, idx int) string {
	prefix := "  "
	if f == s.active {
		prefix = "▶ "
	}

	padded := lipgloss.NewStyle().Width(max(s.width, 10)).Render(prefix + folderNames[f])
	if s.focused && idx == s.cursor {
		return selectedStyle.Render(padded)
	}
	return padded
}
