package tui

import (
	"trolley/internal/engine"
	"trolley/internal/model"
)

type view int

const (
	viewLogin view = iota
	viewLists
	viewItems
)

type modalKind int

const (
	modalNone modalKind = iota
	modalNewList
	modalRenameList
	modalSetListIcon
	modalShareList
	modalAttachIconFile
	modalAttachBgFile
	modalConfirmDeleteList
	modalConfirmResetIcon
	modalConfirmResetBg
	modalNewItem
	modalEditItemText
	modalEditItemURL
	modalConfirmDeleteItem
	modalConfirmClearChecked
)

func (k modalKind) isConfirm() bool {
	switch k {
	case modalConfirmDeleteList, modalConfirmDeleteItem, modalConfirmClearChecked,
		modalConfirmResetIcon, modalConfirmResetBg:
		return true
	}
	return false
}

type loginFocus int

const (
	loginFocusEmail loginFocus = iota
	loginFocusPassword
)

type confirmModalFocus int

const (
	confirmFocusConfirm confirmModalFocus = iota
	confirmFocusCancel
)

// sessionCheckedMsg reports the stored-session lookup done at startup.
type sessionCheckedMsg struct {
	sess *model.Session
	err  error
}

// authDoneMsg reports a sign-in or sign-up attempt. A nil sess with a
// nil err means the account still needs email confirmation.
type authDoneMsg struct {
	sess   *model.Session
	signup bool
	err    error
}

// sessionSwitchedMsg arrives from the backend's session listener when
// another part of the process signs in or out.
type sessionSwitchedMsg struct {
	sess *model.Session
}

// refreshDoneMsg reports a controller reload from the backend.
type refreshDoneMsg struct {
	err error
}

// opDoneMsg reports a mutating engine call. note, when set, is shown as
// a toast.
type opDoneMsg struct {
	note string
	err  error
}

// watchStartedMsg reports the realtime subscription attempt. seq ties
// it to the screen that requested it; a mismatch means the screen
// changed while the start was in flight.
type watchStartedMsg struct {
	w   *engine.Watcher
	err error
	seq int
}

// changePingMsg arrives whenever the watcher signals that something the
// session can see changed; it carries no payload, the response is
// always a refresh.
type changePingMsg struct{}

// toastExpireMsg clears the toast identified by seq. A newer toast
// bumps the sequence, so stale expirations fall through.
type toastExpireMsg struct {
	seq int
}
