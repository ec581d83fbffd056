package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lu-zhengda/mailpilot/internal/app"
)

// Messages emitted by searchModel.

type searchQueryMsg struct {
	query string
}

type closeSearchMsg struct{}

// searchModel takes a natural language query and lists the ranked hits.
type searchModel struct {
	input      textinput.Model
	results    []listItem
	searchType app.SearchType
	warnings   []string
	cursor     int
	searching  bool
	inputMode  bool
	width      int
	height     int
}

func newSearch() searchModel {
	ti := textinput.New()
	ti.Placeholder = `e.g. "unread from alice last week"`
	ti.Prompt = "/ "
	ti.CharLimit = 256
	return searchModel{
		input:     ti,
		inputMode: true,
	}
}

func (s searchModel) Update(msg tea.Msg) (searchModel, tea.Cmd) {
	if !s.searching {
		return s, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Back):
			if !s.inputMode {
				s.inputMode = true
				s.input.Focus()
				return s, nil
			}
			return s, func() tea.Msg { return closeSearchMsg{} }

		case key.Matches(msg, keys.Enter):
			if s.inputMode {
				q := strings.TrimSpace(s.input.Value())
				if q == "" {
					return s, nil
				}
				s.inputMode = false
				s.input.Blur()
				s.cursor = 0
				return s, func() tea.Msg { return searchQueryMsg{query: q} }
			}
			if s.cursor >= len(s.results) {
				return s, nil
			}
			id := s.results[s.cursor].messageID
			return s, func() tea.Msg { return messageSelectedMsg{messageID: id} }

		case !s.inputMode && key.Matches(msg, keys.Up):
			if s.cursor > 0 {
				s.cursor--
			}
			return s, nil

		case !s.inputMode && key.Matches(msg, keys.Down):
			if s.cursor < len(s.results)-1 {
				s.cursor++
			}
			return s, nil
		}
	}

	if s.inputMode {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s searchModel) View() string {
	if !s.searching || s.width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(s.input.View())
	b.WriteByte('\n')

	for _, w := range s.warnings {
		b.WriteString(warningStyle.Render("! " + w))
		b.WriteByte('\n')
	}

	if len(s.results) == 0 {
		if !s.inputMode {
			b.WriteByte('\n')
			b.WriteString(mutedTextStyle.Render("No results"))
		}
		return b.String()
	}

	b.WriteByte('\n')
	b.WriteString(titleStyle.Render(fmt.Sprintf("Results (%d, %s):", len(s.results), s.searchType)))
	b.WriteByte('\n')

	rows := max(s.height-4-len(s.warnings), 1)
	start := 0
	if s.cursor >= rows {
		start = s.cursor - rows + 1
	}
	end := min(start+rows, len(s.results))
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte('\n')
		}
		line := renderItem(s.results[i], s.width)
		if !s.inputMode && i == s.cursor {
			line = selectedStyle.Width(s.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

// Open activates search mode and focuses the text input.
func (s *searchModel) Open() {
	s.searching = true
	s.inputMode = true
	s.input.Focus()
}

// Close deactivates search mode, clearing input and results.
func (s *searchModel) Close() {
	s.searching = false
	s.inputMode = true
	s.input.SetValue("")
	s.input.Blur()
	s.results = nil
	s.warnings = nil
	s.cursor = 0
}

// SetResults shows the outcome of a query.
func (s *searchModel) SetResults(resp *app.SearchResponse) {
	s.results = resultItems(resp.Results)
	s.searchType = resp.SearchType
	s.warnings = resp.Errors
	s.cursor = 0
}

func (s *searchModel) SetSize(w, h int) {
	s.width = w
	s.height = h
	s.input.Width = w - 4
}

func (s searchModel) IsActive() bool {
	return s.searching
}
