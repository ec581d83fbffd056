package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// Messages emitted by composerModel.

type generateDraftMsg struct {
	messageID int64
	req       app.DraftRequest
}

type cancelComposeMsg struct{}

// Field indices within the composer form.
const (
	fieldTone         = 0
	fieldLength       = 1
	fieldInstructions = 2
	fieldCount        = 3
)

// composerModel collects the tone, length and instructions for an AI reply
// to one message.
type composerModel struct {
	toneInput         textinput.Model
	lengthInput       textinput.Model
	instructionsInput textarea.Model

	activeField int
	replyTo     *domain.Message

	width   int
	height  int
	visible bool
}

func newComposer() composerModel {
	tone := textinput.New()
	tone.Placeholder = strings.Join(domain.Tones, " | ")
	tone.CharLimit = 20
	tone.Prompt = ""

	length := textinput.New()
	length.Placeholder = strings.Join(domain.Lengths, " | ")
	length.CharLimit = 20
	length.Prompt = ""

	instructions := textarea.New()
	instructions.Placeholder = "Anything the reply should say (optional)..."
	instructions.SetWidth(40)
	instructions.SetHeight(4)
	instructions.CharLimit = 2000

	return composerModel{
		toneInput:         tone,
		lengthInput:       length,
		instructionsInput: instructions,
	}
}

func (c composerModel) Update(msg tea.Msg) (composerModel, tea.Cmd) {
	if !c.visible {
		return c, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "tab":
			c.activeField = (c.activeField + 1) % fieldCount
			c.updateFocus()
			return c, nil

		case "esc":
			return c, func() tea.Msg { return cancelComposeMsg{} }

		case "ctrl+s":
			if c.replyTo == nil {
				return c, nil
			}
			out := generateDraftMsg{messageID: c.replyTo.ID, req: c.Request()}
			return c, func() tea.Msg { return out }
		}
	}

	var cmd tea.Cmd
	switch c.activeField {
	case fieldTone:
		c.toneInput, cmd = c.toneInput.Update(msg)
	case fieldLength:
		c.lengthInput, cmd = c.lengthInput.Update(msg)
	case fieldInstructions:
		c.instructionsInput, cmd = c.instructionsInput.Update(msg)
	}
	return c, cmd
}

func (c composerModel) View() string {
	if !c.visible {
		return ""
	}

	innerWidth := max(c.width-4, 20)
	labelWidth := 14
	inputWidth := max(innerWidth-labelWidth, 10)

	c.toneInput.Width = inputWidth
	c.lengthInput.Width = inputWidth
	c.instructionsInput.SetWidth(innerWidth)
	c.instructionsInput.SetHeight(max(c.height-12, 3))

	label := func(s string) string {
		return mutedTextStyle.Render(fmt.Sprintf("%-*s", labelWidth, s))
	}

	var rows []string
	if c.replyTo != nil {
		rows = append(rows, label("Replying to:")+truncate(c.replyTo.Sender().String(), inputWidth))
		rows = append(rows, label("Subject:")+truncate(c.replyTo.Subject, inputWidth))
	}
	rows = append(rows, label("Tone:")+c.toneInput.View())
	rows = append(rows, label("Length:")+c.lengthInput.View())
	rows = append(rows, mutedTextStyle.Render(strings.Repeat("─", innerWidth)))
	rows = append(rows, c.instructionsInput.View())
	rows = append(rows, "")
	rows = append(rows, mutedTextStyle.Render("Tab:fields  Ctrl+S:generate  Esc:cancel"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(0, 1).
		Width(c.width - 2)

	return titleStyle.Render(" Draft reply ") + "\n" + boxStyle.Render(strings.Join(rows, "\n"))
}

// Reply opens the form for a reply to m.
func (c *composerModel) Reply(m *domain.Message) {
	c.replyTo = m
	c.clearFields()
	c.visible = true
	c.activeField = fieldTone
	c.updateFocus()
}

func (c *composerModel) Close() {
	c.visible = false
	c.replyTo = nil
	c.clearFields()
}

func (c *composerModel) SetSize(w, h int) {
	c.width = w
	c.height = h
}

func (c composerModel) IsVisible() bool {
	return c.visible
}

// Request builds the draft request from the form. Empty fields fall back
// to the drafter's defaults.
func (c composerModel) Request() app.DraftRequest {
	return app.DraftRequest{
		Tone:         strings.ToLower(strings.TrimSpace(c.toneInput.Value())),
		Length:       strings.ToLower(strings.TrimSpace(c.lengthInput.Value())),
		Instructions: strings.TrimSpace(c.instructionsInput.Value()),
	}
}

// --- internal helpers ---

func (c *composerModel) clearFields() {
	c.toneInput.SetValue("")
	c.lengthInput.SetValue("")
	c.instructionsInput.SetValue("")
}

func (c *composerModel) updateFocus() {
	c.toneInput.Blur()
	c.lengthInput.Blur()
	c.instructionsInput.Blur()

	switch c.activeField {
	case fieldTone:
		c.toneInput.Focus()
	case fieldLength:
		c.lengthInput.Focus()
	case fieldInstructions:
		c.instructionsInput.Focus()
	}
}
