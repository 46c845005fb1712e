package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"trolley/internal/backend"
	"trolley/internal/engine"
	"trolley/internal/model"
)

const (
	opTimeout = 10 * time.Second
	toastTTL  = 3 * time.Second

	// Rows on the items screen start below a header line and a blank
	// line, and leave room for a status line and help line at the
	// bottom. Mouse hit-testing in itemRowAt depends on these.
	itemsTopPad  = 2
	itemsFooterH = 2
)

type appModel struct {
	be    backend.Backend
	lists *engine.Lists

	// items is non-nil only while a list is open.
	items      *engine.Items
	openListID string

	// watcher follows the open screen; watchSeq discards starts that
	// were still in flight when the screen changed.
	watcher  *engine.Watcher
	watchSeq int

	width  int
	height int

	view  view
	modal modalKind

	accountEmail  string
	emailInput    textinput.Model
	passwordInput textinput.Model
	loginFocus    loginFocus
	signupMode    bool
	authBusy      bool
	authErr       string

	listsList    list.Model
	followListID string

	itemRows     []model.Item
	itemCursor   int
	itemOffset   int
	followItemID string
	dragging     bool

	// input backs every text-entry modal; modalForID carries the entity
	// it operates on.
	input        textinput.Model
	modalForID   string
	confirmFocus confirmModalFocus

	toastText  string
	toastIsErr bool
	toastSeq   int
}

func newAppModel(be backend.Backend) appModel {
	m := appModel{
		be:    be,
		lists: engine.NewLists(be),
		view:  viewLogin,
	}

	m.emailInput = textinput.New()
	m.emailInput.Placeholder = "email"
	m.emailInput.CharLimit = 120
	m.emailInput.Width = 36
	m.emailInput.Focus()

	m.passwordInput = textinput.New()
	m.passwordInput.Placeholder = "password"
	m.passwordInput.EchoMode = textinput.EchoPassword
	m.passwordInput.CharLimit = 120
	m.passwordInput.Width = 36

	m.input = textinput.New()
	m.input.CharLimit = 240
	m.input.Width = 40

	m.listsList = newList(nil)
	return m
}

func (m appModel) Init() tea.Cmd {
	return m.checkSessionCmd()
}

func (m appModel) checkSessionCmd() tea.Cmd {
	be := m.be
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		sess, err := be.Session(ctx)
		return sessionCheckedMsg{sess: sess, err: err}
	}
}

func (m appModel) authCmd(email, password string, signup bool) tea.Cmd {
	be := m.be
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		var sess *model.Session
		var err error
		if signup {
			sess, err = be.SignUp(ctx, email, password)
		} else {
			sess, err = be.SignIn(ctx, email, password)
		}
		return authDoneMsg{sess: sess, signup: signup, err: err}
	}
}

// refreshCmd reloads the lists controller and, when a list is open, its
// items controller.
func (m appModel) refreshCmd() tea.Cmd {
	lists, items := m.lists, m.items
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := lists.Refresh(ctx); err != nil {
			return refreshDoneMsg{err: err}
		}
		if items != nil {
			if err := items.Refresh(ctx); err != nil {
				return refreshDoneMsg{err: err}
			}
		}
		return refreshDoneMsg{}
	}
}

// opCmd runs one mutating engine call off the update loop.
func opCmd(note string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opDoneMsg{note: note, err: fn(ctx)}
	}
}

// watchScopes is what the open screen needs to observe.
func (m appModel) watchScopes() []backend.Scope {
	if m.view == viewItems && m.openListID != "" {
		return engine.ItemsScopes(m.openListID)
	}
	return engine.ListsScopes()
}

// dropWatcher closes the live watcher and invalidates any start still
// in flight.
func (m *appModel) dropWatcher() {
	m.watchSeq++
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
}

// startWatch replaces the current watcher with one subscribed for the
// open screen.
func (m *appModel) startWatch() tea.Cmd {
	m.dropWatcher()
	be, scopes, seq := m.be, m.watchScopes(), m.watchSeq
	return func() tea.Msg {
		w, err := engine.Watch(be, scopes...)
		return watchStartedMsg{w: w, err: err, seq: seq}
	}
}

// watchChanges parks on the watcher until the next ping. The update
// loop re-issues it after each ping, keeping exactly one listener; a
// replaced watcher releases its listener through Done.
func watchChanges(w *engine.Watcher) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-w.Changes():
			return changePingMsg{}
		case <-w.Done():
			return nil
		}
	}
}

func (m *appModel) showToast(text string, isErr bool) tea.Cmd {
	m.toastText = text
	m.toastIsErr = isErr
	m.toastSeq++
	seq := m.toastSeq
	return tea.Tick(toastTTL, func(time.Time) tea.Msg {
		return toastExpireMsg{seq: seq}
	})
}

// syncFromControllers rebuilds the visible rows from the engine
// snapshots and restores the cursor onto a followed row, if any.
func (m *appModel) syncFromControllers() {
	lists, counts := m.lists.Snapshot()
	rows := make([]list.Item, 0, len(lists))
	for _, l := range lists {
		rows = append(rows, listRowItem{list: l, counts: counts[l.ID]})
	}
	m.listsList.SetItems(rows)
	if m.followListID != "" {
		for i, l := range lists {
			if l.ID == m.followListID {
				m.listsList.Select(i)
				break
			}
		}
		m.followListID = ""
	}

	if m.items == nil {
		return
	}
	m.itemRows = m.items.Snapshot()
	if m.followItemID != "" {
		for i, it := range m.itemRows {
			if it.ID == m.followItemID {
				m.itemCursor = i
				break
			}
		}
		m.followItemID = ""
	}
	if m.itemCursor > len(m.itemRows)-1 {
		m.itemCursor = len(m.itemRows) - 1
	}
	if m.itemCursor < 0 {
		m.itemCursor = 0
	}
	m.ensureItemVisible()
}

func (m appModel) selectedList() (model.List, bool) {
	row, ok := m.listsList.SelectedItem().(listRowItem)
	if !ok {
		return model.List{}, false
	}
	return row.list, true
}

func (m appModel) selectedItem() (model.Item, bool) {
	if m.itemCursor < 0 || m.itemCursor >= len(m.itemRows) {
		return model.Item{}, false
	}
	return m.itemRows[m.itemCursor], true
}

func (m appModel) itemVisibleRows() int {
	h := m.height - itemsTopPad - itemsFooterH
	if h < 1 {
		h = 1
	}
	return h
}

func (m appModel) checkedCount() int {
	n := 0
	for _, it := range m.itemRows {
		if it.Checked {
			n++
		}
	}
	return n
}

func (m appModel) uncheckedCount() int {
	return len(m.itemRows) - m.checkedCount()
}

// hasSeparator reports whether a divider row sits between the unchecked
// and checked partitions on screen.
func (m appModel) hasSeparator() bool {
	u := m.uncheckedCount()
	return u > 0 && u < len(m.itemRows)
}

// displayCount is the number of screen rows the items occupy, divider
// included.
func (m appModel) displayCount() int {
	n := len(m.itemRows)
	if m.hasSeparator() {
		n++
	}
	return n
}

// displayIndex maps an item index to its screen row. itemOffset and the
// scroll window live in these display coordinates.
func (m appModel) displayIndex(i int) int {
	if m.hasSeparator() && i >= m.uncheckedCount() {
		return i + 1
	}
	return i
}

// itemAtDisplay maps a screen row back to an item index; ok is false on
// the divider.
func (m appModel) itemAtDisplay(d int) (int, bool) {
	if m.hasSeparator() {
		u := m.uncheckedCount()
		if d == u {
			return 0, false
		}
		if d > u {
			d--
		}
	}
	if d < 0 || d >= len(m.itemRows) {
		return 0, false
	}
	return d, true
}

func (m *appModel) ensureItemVisible() {
	vis := m.itemVisibleRows()
	d := m.displayIndex(m.itemCursor)
	if d < m.itemOffset {
		m.itemOffset = d
	}
	if d >= m.itemOffset+vis {
		m.itemOffset = d - vis + 1
	}
	if m.itemOffset < 0 {
		m.itemOffset = 0
	}
}

// itemRowAt maps a terminal row to an index into itemRows.
func (m appModel) itemRowAt(y int) (int, bool) {
	if y < itemsTopPad {
		return 0, false
	}
	d := y - itemsTopPad + m.itemOffset
	if d >= m.itemOffset+m.itemVisibleRows() {
		return 0, false
	}
	return m.itemAtDisplay(d)
}

// listRowAt maps a terminal row to an index into the lists rows. The
// list widget paginates, so the page origin offsets the row.
func (m appModel) listRowAt(y int) (int, bool) {
	if y < itemsTopPad {
		return 0, false
	}
	row := y - itemsTopPad
	p := m.listsList.Paginator
	if row >= p.PerPage {
		return 0, false
	}
	idx := p.Page*p.PerPage + row
	if idx >= len(m.listsList.Items()) {
		return 0, false
	}
	return idx, true
}

// cancelDrag abandons an active drag on whichever screen owns it.
func (m *appModel) cancelDrag() {
	if !m.dragging {
		return
	}
	if m.view == viewItems && m.items != nil {
		m.items.CancelDrag()
	} else {
		m.lists.CancelDrag()
	}
	m.dragging = false
	m.syncFromControllers()
}

func (m *appModel) resize(width, height int) {
	m.width = width
	m.height = height
	m.listsList.SetSize(width, height-itemsTopPad-itemsFooterH)
	m.ensureItemVisible()
}

func (m *appModel) openInputModal(kind modalKind, forID, placeholder string) {
	m.modal = kind
	m.modalForID = forID
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *appModel) closeModal() {
	m.modal = modalNone
	m.modalForID = ""
	m.input.Blur()
	m.input.SetValue("")
}

// resetToLogin drops every signed-in screen state; the controllers keep
// their caches but nothing reads them until the next session.
func (m *appModel) resetToLogin() {
	m.view = viewLogin
	m.closeModal()
	m.items = nil
	m.openListID = ""
	m.itemRows = nil
	m.itemCursor = 0
	m.itemOffset = 0
	m.dragging = false
	m.accountEmail = ""
	m.authBusy = false
	m.passwordInput.SetValue("")
	m.passwordInput.Blur()
	m.loginFocus = loginFocusEmail
	m.emailInput.Focus()
}

func friendlyErr(err error) string {
	switch {
	case errors.Is(err, backend.ErrInvalidCredentials):
		return "wrong email or password"
	case errors.Is(err, backend.ErrEmailNotConfirmed):
		return "confirm your email first"
	case errors.Is(err, backend.ErrEmailTaken):
		return "that email already has an account"
	case errors.Is(err, backend.ErrAccountNotFound):
		return "no account with that email"
	case errors.Is(err, backend.ErrNotAuthorized):
		return "you are not a member of that list"
	case errors.Is(err, backend.ErrNotFound):
		return "already gone"
	case errors.Is(err, backend.ErrNotAuthenticated):
		return "signed out"
	}
	return err.Error()
}
