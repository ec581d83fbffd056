package tui

import "github.com/charmbracelet/lipgloss"

type statusBar struct {
	message      string
	width        int
	isError      bool
	multiAccount bool
	reading      readerKind
}

func newStatusBar() statusBar {
	return statusBar{message: "Ready"}
}

func (s *statusBar) setMessage(msg string) {
	s.message = msg
	s.isError = false
}

func (s *statusBar) setError(msg string) {
	s.message = msg
	s.isError = true
}

func (s statusBar) View() string {
	msgStyle := statusBarStyle
	if s.isError {
		msgStyle = msgStyle.Foreground(errorColor)
	}

	left := s.message
	shortcuts := s.shortcuts()

	gap := max(s.width-lipgloss.Width(left)-lipgloss.Width(shortcuts)-2, 0)

	content := left + lipgloss.NewStyle().Width(gap).Render("") + mutedTextStyle.Render(shortcuts)
	return msgStyle.Width(s.width).Render(content)
}

func (s statusBar) shortcuts() string {
	var base string
	switch s.reading {
	case readingMessage:
		base = "r:draft reply  esc:back"
	case readingDraft:
		base = "a:approve  x:reject  s:send  esc:back"
	default:
		base = "j/k:nav  enter:open  /:search  S:sync  q:quit"
	}
	if s.multiAccount {
		return base + "  @:account"
	}
	return base
}
