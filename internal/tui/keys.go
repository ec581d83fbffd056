package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up            key.Binding
	Down          key.Binding
	Enter         key.Binding
	Back          key.Binding
	Reply         key.Binding
	Approve       key.Binding
	Reject        key.Binding
	Send          key.Binding
	Sync          key.Binding
	Search        key.Binding
	Tab           key.Binding
	SwitchAccount key.Binding
	Quit          key.Binding
}

var keys = keyMap{
	Up:            key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:          key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Enter:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:          key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Reply:         key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "draft reply")),
	Approve:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve")),
	Reject:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reject")),
	Send:          key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "send")),
	Sync:          key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "sync")),
	Search:        key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Tab:           key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	SwitchAccount: key.NewBinding(key.WithKeys("@"), key.WithHelp("@", "account")),
	Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
