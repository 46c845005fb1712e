package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"trolley/internal/backend"
	"trolley/internal/engine"
	"trolley/internal/model"
)

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case sessionCheckedMsg:
		if msg.err != nil {
			m.authErr = friendlyErr(msg.err)
			return m, nil
		}
		if msg.sess == nil {
			return m, nil
		}
		return m.enterSession(msg.sess)

	case authDoneMsg:
		m.authBusy = false
		if msg.err != nil {
			m.authErr = friendlyErr(msg.err)
			return m, nil
		}
		if msg.sess == nil {
			// Account created but not yet usable.
			m.signupMode = false
			m.authErr = ""
			return m, m.showToast("check your inbox to confirm the account", false)
		}
		return m.enterSession(msg.sess)

	case sessionSwitchedMsg:
		if msg.sess == nil && m.view != viewLogin {
			m.dropWatcher()
			m.resetToLogin()
			m.authErr = "signed out"
		}
		return m, nil

	case watchStartedMsg:
		if msg.seq != m.watchSeq {
			// The screen changed while this start was in flight.
			if msg.w != nil {
				msg.w.Close()
			}
			return m, nil
		}
		if msg.err != nil {
			return m, m.showToast("live updates unavailable: "+msg.err.Error(), true)
		}
		m.watcher = msg.w
		return m, watchChanges(msg.w)

	case changePingMsg:
		cmds := []tea.Cmd{m.refreshCmd()}
		if m.watcher != nil {
			cmds = append(cmds, watchChanges(m.watcher))
		}
		return m, tea.Batch(cmds...)

	case refreshDoneMsg:
		if msg.err != nil {
			return m.handleOpErr(msg.err)
		}
		m.syncFromControllers()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			return m.handleOpErr(msg.err)
		}
		m.syncFromControllers()
		if msg.note != "" {
			return m, m.showToast(msg.note, false)
		}
		return m, nil

	case toastExpireMsg:
		if msg.seq == m.toastSeq {
			m.toastText = ""
		}
		return m, nil

	case tea.MouseMsg:
		return m.updateMouse(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		// Any keypress during a mouse drag abandons it; esc does only
		// that.
		if m.dragging {
			m.cancelDrag()
			if msg.String() == "esc" {
				return m, nil
			}
		}
		if m.modal != modalNone {
			return m.updateModal(msg)
		}
		switch m.view {
		case viewLogin:
			return m.updateLogin(msg)
		case viewLists:
			return m.updateLists(msg)
		case viewItems:
			return m.updateItems(msg)
		}
	}
	return m, nil
}

func (m appModel) enterSession(sess *model.Session) (tea.Model, tea.Cmd) {
	m.view = viewLists
	m.accountEmail = sess.Account.Email
	m.authErr = ""
	m.authBusy = false
	m.passwordInput.SetValue("")
	cmds := []tea.Cmd{m.refreshCmd()}
	if m.watcher == nil {
		cmds = append(cmds, m.startWatch())
	}
	return m, tea.Batch(cmds...)
}

func (m appModel) handleOpErr(err error) (tea.Model, tea.Cmd) {
	if errors.Is(err, backend.ErrNotAuthenticated) {
		m.dropWatcher()
		m.resetToLogin()
		m.authErr = "session expired, sign in again"
		return m, nil
	}
	// The engine already restored its snapshot; repaint from it.
	m.syncFromControllers()
	return m, m.showToast(friendlyErr(err), true)
}

func (m appModel) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		if m.loginFocus == loginFocusEmail {
			m.loginFocus = loginFocusPassword
			m.emailInput.Blur()
			m.passwordInput.Focus()
		} else {
			m.loginFocus = loginFocusEmail
			m.passwordInput.Blur()
			m.emailInput.Focus()
		}
		return m, nil
	case "ctrl+s":
		m.signupMode = !m.signupMode
		m.authErr = ""
		return m, nil
	case "enter":
		if m.authBusy {
			return m, nil
		}
		email := strings.TrimSpace(m.emailInput.Value())
		password := m.passwordInput.Value()
		if email == "" || password == "" {
			m.authErr = "email and password are both required"
			return m, nil
		}
		m.authBusy = true
		m.authErr = ""
		return m, m.authCmd(email, password, m.signupMode)
	}

	var cmd tea.Cmd
	if m.loginFocus == loginFocusEmail {
		m.emailInput, cmd = m.emailInput.Update(msg)
	} else {
		m.passwordInput, cmd = m.passwordInput.Update(msg)
	}
	return m, cmd
}

func (m appModel) updateLists(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "enter", "l", "right":
		l, ok := m.selectedList()
		if !ok {
			return m, nil
		}
		return m.openItems(l.ID)
	case "a":
		m.openInputModal(modalNewList, "", "name")
		return m, nil
	case "e":
		if l, ok := m.selectedList(); ok {
			m.openInputModal(modalRenameList, l.ID, "name")
			m.input.SetValue(l.Name)
			m.input.CursorEnd()
		}
		return m, nil
	case "i":
		if l, ok := m.selectedList(); ok {
			m.openInputModal(modalSetListIcon, l.ID, "emoji")
			m.input.SetValue(l.Icon)
			m.input.CursorEnd()
		}
		return m, nil
	case "s":
		if l, ok := m.selectedList(); ok {
			m.openInputModal(modalShareList, l.ID, "email")
		}
		return m, nil
	case "x", "delete":
		if l, ok := m.selectedList(); ok {
			m.modal = modalConfirmDeleteList
			m.modalForID = l.ID
			m.confirmFocus = confirmFocusCancel
		}
		return m, nil
	case "K", "shift+up":
		return m.moveSelectedList(-1)
	case "J", "shift+down":
		return m.moveSelectedList(1)
	case "o":
		be := m.be
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			if err := be.SignOut(ctx); err != nil {
				return opDoneMsg{err: err}
			}
			return sessionSwitchedMsg{}
		}
	case "r":
		return m, m.refreshCmd()
	}

	var cmd tea.Cmd
	m.listsList, cmd = m.listsList.Update(msg)
	return m, cmd
}

func (m appModel) moveSelectedList(delta int) (tea.Model, tea.Cmd) {
	l, ok := m.selectedList()
	if !ok {
		return m, nil
	}
	m.followListID = l.ID
	lists := m.lists
	return m, opCmd("", func(ctx context.Context) error {
		return lists.MoveStep(ctx, l.ID, delta)
	})
}

func (m appModel) openItems(listID string) (tea.Model, tea.Cmd) {
	m.openListID = listID
	m.items = engine.NewItems(m.be, listID)
	m.itemRows = nil
	m.itemCursor = 0
	m.itemOffset = 0
	m.dragging = false
	m.view = viewItems
	return m, tea.Batch(m.refreshCmd(), m.startWatch())
}

func (m *appModel) closeItems() {
	m.items = nil
	m.openListID = ""
	m.itemRows = nil
	m.view = viewLists
}

func (m appModel) updateItems(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "backspace", "h", "left":
		m.closeItems()
		return m, tea.Batch(m.refreshCmd(), m.startWatch())
	case "up", "k", "ctrl+p":
		if m.itemCursor > 0 {
			m.itemCursor--
			m.ensureItemVisible()
		}
		return m, nil
	case "down", "j", "ctrl+n":
		if m.itemCursor < len(m.itemRows)-1 {
			m.itemCursor++
			m.ensureItemVisible()
		}
		return m, nil
	case "g", "home":
		m.itemCursor = 0
		m.ensureItemVisible()
		return m, nil
	case "G", "end":
		if len(m.itemRows) > 0 {
			m.itemCursor = len(m.itemRows) - 1
			m.ensureItemVisible()
		}
		return m, nil
	case " ", "enter":
		it, ok := m.selectedItem()
		if !ok {
			return m, nil
		}
		m.followItemID = it.ID
		items := m.items
		return m, opCmd("", func(ctx context.Context) error {
			return items.Toggle(ctx, it.ID)
		})
	case "a":
		m.openInputModal(modalNewItem, "", "text")
		return m, nil
	case "e":
		if it, ok := m.selectedItem(); ok {
			m.openInputModal(modalEditItemText, it.ID, "text")
			m.input.SetValue(it.Text)
			m.input.CursorEnd()
		}
		return m, nil
	case "u":
		if it, ok := m.selectedItem(); ok {
			m.openInputModal(modalEditItemURL, it.ID, "https://")
			m.input.SetValue(it.URL)
			m.input.CursorEnd()
		}
		return m, nil
	case "x", "delete":
		if it, ok := m.selectedItem(); ok {
			m.modal = modalConfirmDeleteItem
			m.modalForID = it.ID
			m.confirmFocus = confirmFocusCancel
		}
		return m, nil
	case "C":
		if m.checkedCount() > 0 {
			m.modal = modalConfirmClearChecked
			m.confirmFocus = confirmFocusCancel
		}
		return m, nil
	case "s":
		m.openInputModal(modalShareList, m.openListID, "email")
		return m, nil
	case "i":
		if l, ok := m.lists.Get(m.openListID); ok {
			m.openInputModal(modalSetListIcon, l.ID, "emoji")
			m.input.SetValue(l.Icon)
			m.input.CursorEnd()
		}
		return m, nil
	case "I":
		m.openInputModal(modalAttachIconFile, m.openListID, "path/to/icon.png")
		return m, nil
	case "b":
		m.openInputModal(modalAttachBgFile, m.openListID, "path/to/background.jpg")
		return m, nil
	case "K", "shift+up":
		return m.moveSelectedItem(-1)
	case "J", "shift+down":
		return m.moveSelectedItem(1)
	case "r":
		return m, m.refreshCmd()
	}
	return m, nil
}

func (m appModel) moveSelectedItem(delta int) (tea.Model, tea.Cmd) {
	it, ok := m.selectedItem()
	if !ok {
		return m, nil
	}
	m.followItemID = it.ID
	items := m.items
	return m, opCmd("", func(ctx context.Context) error {
		return items.MoveStep(ctx, it.ID, delta)
	})
}

func (m appModel) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modal.isConfirm() {
		return m.updateConfirmModal(msg)
	}

	switch msg.String() {
	case "esc", "ctrl+g":
		m.closeModal()
		return m, nil
	case "enter":
		return m.submitInputModal()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) submitInputModal() (tea.Model, tea.Cmd) {
	val := strings.TrimSpace(m.input.Value())
	kind, forID := m.modal, m.modalForID
	lists, items := m.lists, m.items
	m.closeModal()

	switch kind {
	case modalNewList:
		if val == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			_, err := lists.Create(ctx, val, "")
			return opDoneMsg{err: err}
		}
	case modalRenameList:
		if val == "" {
			return m, nil
		}
		return m, opCmd("", func(ctx context.Context) error {
			return lists.Rename(ctx, forID, val)
		})
	case modalSetListIcon:
		// Empty input clears the icon back to the default glyph.
		return m, opCmd("", func(ctx context.Context) error {
			return lists.SetIcon(ctx, forID, val)
		})
	case modalShareList:
		if val == "" {
			return m, nil
		}
		return m, opCmd("shared with "+val, func(ctx context.Context) error {
			return lists.Share(ctx, forID, val)
		})
	case modalAttachIconFile:
		return m.submitMedia(forID, engine.MediaIcon, val)
	case modalAttachBgFile:
		return m.submitMedia(forID, engine.MediaBackground, val)
	case modalNewItem:
		if val == "" || items == nil {
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			_, err := items.Add(ctx, val)
			return opDoneMsg{err: err}
		}
	case modalEditItemText:
		if val == "" || items == nil {
			return m, nil
		}
		cur, ok := items.Get(forID)
		if !ok {
			return m, nil
		}
		m.followItemID = forID
		return m, opCmd("", func(ctx context.Context) error {
			return items.Edit(ctx, forID, val, cur.URL)
		})
	case modalEditItemURL:
		if items == nil {
			return m, nil
		}
		cur, ok := items.Get(forID)
		if !ok {
			return m, nil
		}
		m.followItemID = forID
		return m, opCmd("", func(ctx context.Context) error {
			return items.Edit(ctx, forID, cur.Text, val)
		})
	}
	return m, nil
}

// submitMedia attaches an image from disk, or, on an empty path, asks
// whether to remove the current one.
func (m appModel) submitMedia(listID string, kind engine.MediaKind, path string) (tea.Model, tea.Cmd) {
	if path == "" {
		if kind == engine.MediaIcon {
			m.modal = modalConfirmResetIcon
		} else {
			m.modal = modalConfirmResetBg
		}
		m.modalForID = listID
		m.confirmFocus = confirmFocusCancel
		return m, nil
	}
	lists := m.lists
	return m, opCmd("image attached", func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return lists.AttachImage(ctx, listID, kind, filepath.Base(path), f)
	})
}

func (m appModel) updateConfirmModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+g", "n":
		m.closeModal()
		return m, nil
	case "tab", "shift+tab", "left", "right":
		if m.confirmFocus == confirmFocusConfirm {
			m.confirmFocus = confirmFocusCancel
		} else {
			m.confirmFocus = confirmFocusConfirm
		}
		return m, nil
	case "y":
		return m.applyConfirm()
	case "enter":
		if m.confirmFocus == confirmFocusConfirm {
			return m.applyConfirm()
		}
		m.closeModal()
		return m, nil
	}
	return m, nil
}

func (m appModel) applyConfirm() (tea.Model, tea.Cmd) {
	kind, forID := m.modal, m.modalForID
	lists, items := m.lists, m.items
	m.closeModal()

	switch kind {
	case modalConfirmDeleteList:
		return m, opCmd("list deleted", func(ctx context.Context) error {
			return lists.Delete(ctx, forID)
		})
	case modalConfirmResetIcon:
		return m, opCmd("icon image removed", func(ctx context.Context) error {
			return lists.ResetImage(ctx, forID, engine.MediaIcon)
		})
	case modalConfirmResetBg:
		return m, opCmd("background removed", func(ctx context.Context) error {
			return lists.ResetImage(ctx, forID, engine.MediaBackground)
		})
	case modalConfirmDeleteItem:
		if items == nil {
			return m, nil
		}
		return m, opCmd("", func(ctx context.Context) error {
			return items.Delete(ctx, forID)
		})
	case modalConfirmClearChecked:
		if items == nil {
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			n, err := items.ClearChecked(ctx)
			if err != nil {
				return opDoneMsg{err: err}
			}
			return opDoneMsg{note: fmt.Sprintf("cleared %d checked", n)}
		}
	}
	return m, nil
}

// Mouse handling: press grabs the row under the pointer, motion
// previews the reorder through the controller, release persists it.
// The wheel moves the cursor.
func (m appModel) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.modal != modalNone {
		return m, nil
	}
	switch m.view {
	case viewLists:
		return m.updateListsMouse(msg)
	case viewItems:
		if m.items != nil {
			return m.updateItemsMouse(msg)
		}
	}
	return m, nil
}

func (m appModel) updateListsMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.listsList.CursorUp()
		case tea.MouseButtonWheelDown:
			m.listsList.CursorDown()
		case tea.MouseButtonLeft:
			idx, ok := m.listRowAt(msg.Y)
			if !ok {
				return m, nil
			}
			m.listsList.Select(idx)
			if row, ok := m.listsList.Items()[idx].(listRowItem); ok && m.lists.BeginDrag(row.list.ID) {
				m.dragging = true
			}
		}
		return m, nil

	case tea.MouseActionMotion:
		if !m.dragging {
			return m, nil
		}
		idx, ok := m.listRowAt(msg.Y)
		if !ok {
			return m, nil
		}
		row, ok := m.listsList.Items()[idx].(listRowItem)
		if !ok {
			return m, nil
		}
		m.lists.DragOver(row.list.ID)
		if id, ok := m.lists.Dragging(); ok {
			m.followListID = id
		}
		m.syncFromControllers()
		return m, nil

	case tea.MouseActionRelease:
		if !m.dragging {
			return m, nil
		}
		m.dragging = false
		lists := m.lists
		return m, opCmd("", func(ctx context.Context) error {
			return lists.EndDrag(ctx)
		})
	}
	return m, nil
}

func (m appModel) updateItemsMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			if m.itemCursor > 0 {
				m.itemCursor--
				m.ensureItemVisible()
			}
		case tea.MouseButtonWheelDown:
			if m.itemCursor < len(m.itemRows)-1 {
				m.itemCursor++
				m.ensureItemVisible()
			}
		case tea.MouseButtonLeft:
			idx, ok := m.itemRowAt(msg.Y)
			if !ok {
				return m, nil
			}
			m.itemCursor = idx
			m.ensureItemVisible()
			if m.items.BeginDrag(m.itemRows[idx].ID) {
				m.dragging = true
			}
		}
		return m, nil

	case tea.MouseActionMotion:
		if !m.dragging {
			return m, nil
		}
		idx, ok := m.itemRowAt(msg.Y)
		if !ok {
			return m, nil
		}
		m.items.DragOver(m.itemRows[idx].ID)
		m.syncFromControllers()
		if id, ok := m.items.Dragging(); ok {
			for i, it := range m.itemRows {
				if it.ID == id {
					m.itemCursor = i
					m.ensureItemVisible()
					break
				}
			}
		}
		return m, nil

	case tea.MouseActionRelease:
		if !m.dragging {
			return m, nil
		}
		m.dragging = false
		items := m.items
		return m, opCmd("", func(ctx context.Context) error {
			return items.EndDrag(ctx)
		})
	}
	return m, nil
}
