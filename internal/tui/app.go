package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

type pane int

const (
	paneSidebar pane = iota
	paneList
	paneReader
)

const listLimit = 200

// --- async result messages ---

type messagesLoadedMsg struct {
	messages []domain.Message
}

type draftsLoadedMsg struct {
	drafts []domain.Draft
}

type messageLoadedMsg struct {
	message *domain.Message
}

type draftLoadedMsg struct {
	draft  *domain.Draft
	action string
}

type searchResultsMsg struct {
	resp *app.SearchResponse
}

type syncDoneMsg struct {
	result *app.IngestResult
}

type accountSwitchedMsg struct {
	account domain.Account
}

type errMsg struct {
	err error
}

// --- services ---

type MessageStore interface {
	ListMessages(ctx context.Context, opts store.ListMessageOptions) ([]domain.Message, error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
}

type Searcher interface {
	Search(ctx context.Context, accountID int64, query string, maxResults int) *app.SearchResponse
}

type Drafter interface {
	DraftReply(ctx context.Context, messageID int64, req app.DraftRequest) (*domain.Draft, error)
	Get(ctx context.Context, id int64) (*domain.Draft, error)
	List(ctx context.Context, accountID int64, status domain.ApprovalStatus) ([]domain.Draft, error)
	Approve(ctx context.Context, id int64) (*domain.Draft, error)
	Reject(ctx context.Context, id int64) (*domain.Draft, error)
	Send(ctx context.Context, id int64) (*domain.Draft, error)
}

type Syncer interface {
	Run(ctx context.Context, accountID int64, opts app.IngestOptions) (*app.IngestResult, error)
}

// Deps wires the TUI to the application services.
type Deps struct {
	Store     MessageStore
	Searcher  Searcher
	Drafter   Drafter
	Ingestor  Syncer
	Accounts  []domain.Account
	AccountID int64
}

// --- root model ---

type model struct {
	ctx       context.Context
	deps      Deps
	accountID int64

	sidebar  sidebarModel
	inbox    inboxModel
	reader   readerModel
	composer composerModel
	search   searchModel

	activePane pane
	statusBar  statusBar

	width  int
	height int
}

func newModel(ctx context.Context, d Deps) model {
	inbox := newInbox()
	inbox.focused = true

	sidebar := newSidebar()
	for _, a := range d.Accounts {
		if a.ID == d.AccountID {
			sidebar.accountEmail = a.EmailAddress
		}
	}

	sb := newStatusBar()
	sb.multiAccount = len(d.Accounts) > 1

	return model{
		ctx:        ctx,
		deps:       d,
		accountID:  d.AccountID,
		activePane: paneList,
		sidebar:    sidebar,
		inbox:      inbox,
		reader:     newReader(),
		composer:   newComposer(),
		search:     newSearch(),
		statusBar:  sb,
	}
}

func (m model) Init() tea.Cmd {
	return m.loadFolderCmd(folderInbox)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.width = msg.Width
		m.resizeSubModels()
		return m, nil

	// --- async result messages ---
	case messagesLoadedMsg:
		m.inbox.SetItems(messageItems(msg.messages))
		m.statusBar.setMessage(fmt.Sprintf("Loaded %d messages", len(msg.messages)))
		return m, nil

	case draftsLoadedMsg:
		m.inbox.SetItems(draftItems(msg.drafts))
		m.statusBar.setMessage(fmt.Sprintf("Loaded %d drafts", len(msg.drafts)))
		return m, nil

	case messageLoadedMsg:
		m.search.Close()
		m.reader.ShowMessage(msg.message)
		m.openReader()
		m.statusBar.setMessage(msg.message.Subject)
		return m, nil

	case draftLoadedMsg:
		m.composer.Close()
		m.reader.ShowDraft(msg.draft)
		m.openReader()
		if msg.action != "" {
			m.statusBar.setMessage(fmt.Sprintf("Draft %d %s", msg.draft.ID, msg.action))
			if m.sidebar.active.isDraftFolder() {
				return m, m.loadFolderCmd(m.sidebar.active)
			}
		}
		return m, nil

	case searchResultsMsg:
		m.search.SetResults(msg.resp)
		m.statusBar.setMessage(fmt.Sprintf("Found %d results in %.2fs", msg.resp.TotalResults, msg.resp.ProcessingTime))
		return m, nil

	case syncDoneMsg:
		r := msg.result
		m.statusBar.setMessage(fmt.Sprintf("Synced: %d new, %d duplicates", r.EmailsStored, r.Duplicates))
		if !m.sidebar.active.isDraftFolder() {
			return m, m.loadFolderCmd(m.sidebar.active)
		}
		return m, nil

	case accountSwitchedMsg:
		m.accountID = msg.account.ID
		m.sidebar.accountEmail = msg.account.EmailAddress
		m.sidebar.active = folderInbox
		m.sidebar.cursor = 0
		m.closeReader()
		m.statusBar.setMessage(fmt.Sprintf("Switched to %s", msg.account.EmailAddress))
		return m, m.loadFolderCmd(folderInbox)

	case errMsg:
		m.statusBar.setError(fmt.Sprintf("Error: %v", msg.err))
		return m, nil

	// --- sub-model emitted messages ---
	case folderSelectedMsg:
		m.closeReader()
		m.statusBar.setMessage(fmt.Sprintf("Loading %s...", folderNames[msg.folder]))
		return m, m.loadFolderCmd(msg.folder)

	case messageSelectedMsg:
		m.statusBar.setMessage("Loading message...")
		return m, m.loadMessageCmd(msg.messageID)

	case draftSelectedMsg:
		m.statusBar.setMessage("Loading draft...")
		return m, m.loadDraftCmd(msg.draftID)

	case replyMsg:
		m.composer.Reply(msg.message)
		m.resizeComposer()
		return m, nil

	case generateDraftMsg:
		m.statusBar.setMessage("Generating draft...")
		return m, m.generateDraftCmd(msg.messageID, msg.req)

	case cancelComposeMsg:
		m.composer.Close()
		return m, nil

	case draftActionMsg:
		m.statusBar.setMessage(fmt.Sprintf("Draft %d: %s...", msg.draftID, msg.action))
		return m, m.draftActionCmd(msg.draftID, msg.action)

	case closeReaderMsg:
		m.closeReader()
		return m, nil

	case searchQueryMsg:
		m.statusBar.setMessage(fmt.Sprintf("Searching: %s", msg.query))
		return m, m.searchCmd(msg.query)

	case closeSearchMsg:
		m.search.Close()
		m.setFocus(paneList)
		return m, nil

	// --- key events ---
	case tea.KeyMsg:
		if m.composer.IsVisible() {
			var cmd tea.Cmd
			m.composer, cmd = m.composer.Update(msg)
			return m, cmd
		}
		if m.search.IsActive() {
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Search):
			m.search.Open()
			m.resizeSearch()
			return m, nil

		case key.Matches(msg, keys.Sync):
			m.statusBar.setMessage("Syncing...")
			return m, m.syncCmd()

		case key.Matches(msg, keys.Tab):
			switch {
			case m.reader.IsVisible() && m.activePane == paneList:
				m.setFocus(paneReader)
			case m.reader.IsVisible():
				m.setFocus(paneList)
			case m.activePane == paneSidebar:
				m.setFocus(paneList)
			default:
				m.setFocus(paneSidebar)
			}
			return m, nil

		case key.Matches(msg, keys.SwitchAccount):
			if len(m.deps.Accounts) < 2 {
				m.statusBar.setMessage("Only one account connected")
				return m, nil
			}
			return m, m.switchAccountCmd()
		}

		var cmd tea.Cmd
		switch m.activePane {
		case paneSidebar:
			m.sidebar, cmd = m.sidebar.Update(msg)
		case paneList:
			m.inbox, cmd = m.inbox.Update(msg)
		case paneReader:
			m.reader, cmd = m.reader.Update(msg)
		}
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3

	sidebarView := sidebarStyle.
		Width(sidebarWidth).
		Height(contentHeight).
		Render(m.sidebar.View())

	var contentView string
	switch {
	case m.composer.IsVisible():
		contentView = lipgloss.NewStyle().
			Width(contentWidth).
			Height(contentHeight).
			Render(m.composer.View())

	case m.search.IsActive():
		contentView = lipgloss.NewStyle().
			Width(contentWidth).
			Height(contentHeight).
			Render(m.search.View())

	case m.reader.IsVisible():
		listHeight := contentHeight / 3
		readerHeight := contentHeight - listHeight

		listView := listStyle.
			Width(contentWidth).
			Height(listHeight).
			Render(m.inbox.View())
		readerView := readerStyle.
			Width(contentWidth).
			Height(readerHeight).
			Render(m.reader.View())
		contentView = lipgloss.JoinVertical(lipgloss.Left, listView, readerView)

	default:
		contentView = listStyle.
			Width(contentWidth).
			Height(contentHeight).
			Render(m.inbox.View())
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebarView, contentView)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.statusBar.View())
}

// --- focus management ---

func (m *model) setFocus(p pane) {
	m.activePane = p
	m.sidebar.focused = p == paneSidebar
	m.inbox.focused = p == paneList
	m.reader.focused = p == paneReader
}

func (m *model) openReader() {
	m.statusBar.reading = m.reader.Kind()
	m.setFocus(paneReader)
	m.resizeSubModels()
}

func (m *model) closeReader() {
	m.reader.Close()
	m.statusBar.reading = readingNothing
	m.setFocus(paneList)
	m.resizeSubModels()
}

// --- layout helpers ---

func (m model) layoutWidths() (sidebarWidth, contentWidth int) {
	sidebarWidth = max(m.width/5, 20)
	contentWidth = m.width - sidebarWidth - 2
	return
}

func (m *model) resizeSubModels() {
	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3

	// sidebarStyle: border 2h 2v, padding 2h 2v.
	m.sidebar.SetSize(sidebarWidth-4, contentHeight-4)

	// listStyle: border 2h 2v, padding 2h.
	if m.reader.IsVisible() {
		listHeight := contentHeight / 3
		readerHeight := contentHeight - listHeight
		m.inbox.SetSize(contentWidth-4, listHeight-2)
		// readerStyle: border 2h 2v, padding 4h 2v.
		m.reader.SetSize(contentWidth-6, readerHeight-4)
	} else {
		m.inbox.SetSize(contentWidth-4, contentHeight-2)
	}

	m.resizeComposer()
	m.resizeSearch()
}

func (m *model) resizeComposer() {
	_, contentWidth := m.layoutWidths()
	m.composer.SetSize(contentWidth, m.height-3)
}

func (m *model) resizeSearch() {
	_, contentWidth := m.layoutWidths()
	m.search.SetSize(contentWidth, m.height-3)
}

// --- async commands ---

func (m model) loadFolderCmd(f folder) tea.Cmd {
	accountID := m.accountID
	switch f {
	case folderPending, folderApproved:
		status := domain.ApprovalPending
		if f == folderApproved {
			status = domain.ApprovalApproved
		}
		return func() tea.Msg {
			drafts, err := m.deps.Drafter.List(m.ctx, accountID, status)
			if err != nil {
				return errMsg{err: fmt.Errorf("failed to load drafts: %w", err)}
			}
			return draftsLoadedMsg{drafts: drafts}
		}
	}

	return func() tea.Msg {
		msgs, err := m.deps.Store.ListMessages(m.ctx, store.ListMessageOptions{AccountID: accountID, Limit: listLimit})
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to load messages: %w", err)}
		}
		if f == folderUnread {
			unread := msgs[:0]
			for _, msg := range msgs {
				if !msg.IsRead {
					unread = append(unread, msg)
				}
			}
			msgs = unread
		}
		return messagesLoadedMsg{messages: msgs}
	}
}

func (m model) loadMessageCmd(id int64) tea.Cmd {
	accountID := m.accountID
	return func() tea.Msg {
		msg, err := m.deps.Store.GetMessage(m.ctx, id)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to load message: %w", err)}
		}
		if msg.AccountID != accountID {
			return errMsg{err: fmt.Errorf("message %d: %w", id, store.ErrNotFound)}
		}
		return messageLoadedMsg{message: msg}
	}
}

func (m model) loadDraftCmd(id int64) tea.Cmd {
	return func() tea.Msg {
		d, err := m.deps.Drafter.Get(m.ctx, id)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to load draft: %w", err)}
		}
		return draftLoadedMsg{draft: d}
	}
}

func (m model) generateDraftCmd(messageID int64, req app.DraftRequest) tea.Cmd {
	return func() tea.Msg {
		d, err := m.deps.Drafter.DraftReply(m.ctx, messageID, req)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to draft reply: %w", err)}
		}
		return draftLoadedMsg{draft: d, action: "created"}
	}
}

func (m model) draftActionCmd(id int64, action string) tea.Cmd {
	return func() tea.Msg {
		var d *domain.Draft
		var err error
		switch action {
		case "approve":
			d, err = m.deps.Drafter.Approve(m.ctx, id)
		case "reject":
			d, err = m.deps.Drafter.Reject(m.ctx, id)
		case "send":
			d, err = m.deps.Drafter.Send(m.ctx, id)
		default:
			return errMsg{err: fmt.Errorf("unknown action: %s", action)}
		}
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to %s draft: %w", action, err)}
		}
		done := string(d.ApprovalStatus)
		if action == "send" {
			done = "sent"
		}
		return draftLoadedMsg{draft: d, action: done}
	}
}

func (m model) searchCmd(query string) tea.Cmd {
	accountID := m.accountID
	return func() tea.Msg {
		return searchResultsMsg{resp: m.deps.Searcher.Search(m.ctx, accountID, query, 0)}
	}
}

func (m model) syncCmd() tea.Cmd {
	accountID := m.accountID
	return func() tea.Msg {
		res, err := m.deps.Ingestor.Run(m.ctx, accountID, app.IngestOptions{})
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to sync: %w", err)}
		}
		return syncDoneMsg{result: res}
	}
}

func (m model) switchAccountCmd() tea.Cmd {
	accounts := m.deps.Accounts
	for i, a := range accounts {
		if a.ID == m.accountID {
			next := accounts[(i+1)%len(accounts)]
			if next.ID == m.accountID {
				return nil
			}
			return func() tea.Msg { return accountSwitchedMsg{account: next} }
		}
	}
	return nil
}

// Run starts the TUI and blocks until it exits.
func Run(ctx context.Context, d Deps) error {
	prog := tea.NewProgram(
		newModel(ctx, d),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := prog.Run()
	return err
}
