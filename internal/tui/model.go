// Package tui implements the interactive queue view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/queue"
	"github.com/colonyops/triage/internal/triage"
)

// Bus events arrive on a goroutine owned by the event bus; these message
// types carry them onto the Bubble Tea update loop.
type (
	queueMsg        eventbus.QueueReconciledPayload
	notifyMsg       eventbus.NotificationPublishedPayload
	actionFailedMsg eventbus.ActionFailedPayload
	fetchFailedMsg  eventbus.FetchFailedPayload
	actionDoneMsg   struct{ err error }
	clearStatusMsg  struct{}
)

// uiState tracks which input mode the view is in.
type uiState int

const (
	stateNormal uiState = iota
	stateRejectComment
)

// Model is the main Bubble Tea model for the queue view.
type Model struct {
	app     *triage.App
	keys    KeyMap
	table   table.Model
	spinner spinner.Model
	help    help.Model
	comment textinput.Model

	state    uiState
	rejectID queue.ItemID
	events   chan tea.Msg
	snapshot queue.Snapshot
	status   string
	errMsg   string
	lastSync time.Time
	width    int
	syncing  bool
	showHelp bool
}

// New creates the queue model and bridges the event bus into the program.
func New(app *triage.App) *Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	comment := textinput.New()
	comment.Placeholder = "rejection comment"
	comment.CharLimit = 200

	m := &Model{
		app:     app,
		keys:    DefaultKeyMap(),
		spinner: sp,
		help:    help.New(),
		comment: comment,
		events:  make(chan tea.Msg, 64),
		table:   newQueueTable(),
	}

	app.Bus.SubscribeQueueReconciled(func(p eventbus.QueueReconciledPayload) {
		m.push(queueMsg(p))
	})
	app.Bus.SubscribeNotificationPublished(func(p eventbus.NotificationPublishedPayload) {
		m.push(notifyMsg(p))
	})
	app.Bus.SubscribeActionFailed(func(p eventbus.ActionFailedPayload) {
		m.push(actionFailedMsg(p))
	})
	app.Bus.SubscribeFetchFailed(func(p eventbus.FetchFailedPayload) {
		m.push(fetchFailedMsg(p))
	})

	return m
}

// push forwards a bus event to the update loop, dropping when the program
// is not draining fast enough. A dropped redraw is recovered by the next
// reconcile.
func (m *Model) push(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
		log.Debug().Msg("tui event dropped")
	}
}

func newQueueTable() table.Model {
	t := table.New(
		table.WithColumns(queueColumns(80)),
		table.WithFocused(true),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true)
	s.Selected = s.Selected.Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("57"))
	t.SetStyles(s)
	return t
}

func queueColumns(width int) []table.Column {
	// Fixed columns get what they need; the document column absorbs the rest.
	doc := max(width-58, 12)
	return []table.Column{
		{Title: "ID", Width: 8},
		{Title: "CATEGORY", Width: 16},
		{Title: "DOCUMENT", Width: doc},
		{Title: "REQUESTED BY", Width: 14},
		{Title: "AMOUNT", Width: 12},
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.syncing = true
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetColumns(queueColumns(msg.Width))
		m.table.SetHeight(max(msg.Height-6, 3))
		m.help.Width = msg.Width
		return m, nil

	case tea.FocusMsg:
		m.app.Engine.Scheduler().SetVisible(true)
		return m, nil

	case tea.BlurMsg:
		m.app.Engine.Scheduler().SetVisible(false)
		return m, nil

	case queueMsg:
		m.snapshot = msg.Snapshot
		m.lastSync = time.Now()
		m.syncing = false
		m.errMsg = ""
		m.refreshRows()
		return m, m.waitForEvent()

	case notifyMsg:
		m.status = msg.Message
		return m, tea.Batch(m.waitForEvent(), clearStatusAfter(10*time.Second))

	case actionFailedMsg:
		m.errMsg = fmt.Sprintf("action on item %d failed: %s", msg.ID, msg.Reason)
		m.refreshRows()
		return m, m.waitForEvent()

	case fetchFailedMsg:
		cats := make([]string, 0, len(msg.Failed))
		for cat := range msg.Failed {
			cats = append(cats, string(cat))
		}
		m.errMsg = "fetch failed for: " + strings.Join(cats, ", ")
		return m, m.waitForEvent()

	case actionDoneMsg:
		if msg.err != nil {
			// The reason line arrives via actionFailedMsg; nothing to do.
			return m, nil
		}
		m.refreshRows()
		return m, nil

	case clearStatusMsg:
		m.status = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == stateRejectComment {
		return m.handleCommentKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.syncing = true
		m.app.Engine.Scheduler().Poke()
		return m, m.spinner.Tick

	case key.Matches(msg, m.keys.Mute):
		ctx := context.Background()
		muted := !m.app.Engine.Dispatcher().Muted(ctx)
		if err := m.app.Engine.Dispatcher().SetMuted(ctx, muted); err != nil {
			m.errMsg = "persist mute preference failed"
		}
		return m, nil

	case key.Matches(msg, m.keys.Approve):
		if id, ok := m.selectedID(); ok {
			return m, m.applyAction(id, queue.ActionApprove, "")
		}
		return m, nil

	case key.Matches(msg, m.keys.Reject):
		if id, ok := m.selectedID(); ok {
			m.state = stateRejectComment
			m.rejectID = id
			m.comment.SetValue("")
			return m, m.comment.Focus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleCommentKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateNormal
		m.comment.Blur()
		return m, nil
	case "enter":
		comment := strings.TrimSpace(m.comment.Value())
		if comment == "" {
			return m, nil
		}
		m.state = stateNormal
		m.comment.Blur()
		return m, m.applyAction(m.rejectID, queue.ActionReject, comment)
	}

	var cmd tea.Cmd
	m.comment, cmd = m.comment.Update(msg)
	return m, cmd
}

// applyAction runs the optimistic action off the update loop. The snapshot
// already excludes the item before the server answers, so the row vanishes
// on the next reconcile event.
func (m *Model) applyAction(id queue.ItemID, kind queue.ActionKind, comment string) tea.Cmd {
	m.refreshRowsWithout(id)
	return func() tea.Msg {
		err := m.app.Engine.ApplyAction(context.Background(), id, kind, comment)
		return actionDoneMsg{err: err}
	}
}

func (m *Model) selectedID() (queue.ItemID, bool) {
	row := m.table.SelectedRow()
	if row == nil {
		return 0, false
	}
	items := m.snapshot.Items
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(items) {
		return 0, false
	}
	return items[cursor].ID, true
}

func (m *Model) refreshRows() {
	m.table.SetRows(m.rowsFor(m.snapshot.Items))
}

// refreshRowsWithout redraws with one item removed ahead of the engine's
// own reconcile event, so the acted-on row disappears instantly.
func (m *Model) refreshRowsWithout(id queue.ItemID) {
	items := make([]queue.PendingItem, 0, len(m.snapshot.Items))
	for _, it := range m.snapshot.Items {
		if it.ID != id {
			items = append(items, it)
		}
	}
	m.snapshot.Items = items
	m.table.SetRows(m.rowsFor(items))
}

func (m *Model) rowsFor(items []queue.PendingItem) []table.Row {
	rows := make([]table.Row, 0, len(items))
	for _, it := range items {
		id := fmt.Sprintf("%d", it.ID)
		if m.app.Engine.Dispatcher().IsNew(it.ID) {
			id = newBadgeStyle.Render(id + " •")
		}
		rows = append(rows, table.Row{
			id,
			string(it.Category),
			it.DocumentNumber,
			it.RequestedBy,
			fmt.Sprintf("%.2f %s", it.Amount, it.Currency),
		})
	}
	return rows
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("triage — %d pending", len(m.snapshot.Items))
	if m.app.Engine.Dispatcher().Muted(context.Background()) {
		title += mutedStyle.Render("  [muted]")
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	b.WriteString(tableBorderStyle.Render(m.table.View()))
	b.WriteString("\n")

	if m.state == stateRejectComment {
		b.WriteString(notifyStyle.Render("Reject comment (enter to send, esc to cancel): " + m.comment.View()))
		b.WriteString("\n")
	}

	switch {
	case m.errMsg != "":
		b.WriteString(errorStyle.Render(m.errMsg))
	case m.status != "":
		b.WriteString(notifyStyle.Render(m.status))
	case m.syncing:
		b.WriteString(statusStyle.Render(m.spinner.View() + " syncing…"))
	case !m.lastSync.IsZero():
		b.WriteString(statusStyle.Render("synced " + m.lastSync.Format("15:04:05")))
	}
	b.WriteString("\n")

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearStatusMsg{} })
}
