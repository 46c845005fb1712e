package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"trolley/internal/model"
)

func (m appModel) View() string {
	if m.width == 0 {
		return ""
	}
	if m.modal != modalNone {
		return m.placeCentered(m.renderModal())
	}
	switch m.view {
	case viewLogin:
		return m.placeCentered(m.renderLogin())
	case viewLists:
		return m.renderLists()
	case viewItems:
		return m.renderItems()
	}
	return ""
}

func (m appModel) placeCentered(s string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func (m appModel) renderLogin() string {
	mode := "sign in"
	switchHint := "ctrl+s: create an account instead"
	if m.signupMode {
		mode = "create account"
		switchHint = "ctrl+s: sign in instead"
	}

	lines := []string{
		m.emailInput.View(),
		m.passwordInput.View(),
		"",
	}
	switch {
	case m.authBusy:
		lines = append(lines, styleMuted().Render("working..."))
	case m.authErr != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(colorDanger).Render(m.authErr))
	default:
		lines = append(lines, "")
	}
	lines = append(lines, "", styleMuted().Render("enter: "+mode+"   "+switchHint+"   esc: quit"))

	return renderModalBox(m.width, "trolley "+mode, strings.Join(lines, "\n"))
}

func (m appModel) renderLists() string {
	header := lipgloss.NewStyle().Bold(true).Render("trolley")
	if m.accountEmail != "" {
		header += "  " + styleMuted().Render(m.accountEmail)
	}

	body := m.listsList.View()
	if len(m.listsList.Items()) == 0 {
		body = styleMuted().Render(" No lists yet. Press a to start one.")
	}

	help := "enter: open   a: new   e: rename   i: icon   s: share   K/J/drag: move   x: delete   o: sign out   r: refresh   q: quit"
	return header + "\n\n" + body + "\n" + m.renderFooter(help)
}

func (m appModel) renderItems() string {
	name := "list"
	glyph := "▫"
	if l, ok := m.lists.Get(m.openListID); ok {
		name = l.Name
		glyph = listGlyph(l)
	}
	header := lipgloss.NewStyle().Bold(true).Render(glyph+" "+name) + "  " +
		styleMuted().Render(fmt.Sprintf("%d of %d left", m.uncheckedCount(), len(m.itemRows)))

	vis := m.itemVisibleRows()
	total := m.displayCount()
	rows := make([]string, 0, vis)
	for d := m.itemOffset; d < total && d < m.itemOffset+vis; d++ {
		if i, ok := m.itemAtDisplay(d); ok {
			rows = append(rows, m.renderItemRow(m.itemRows[i], i == m.itemCursor))
		} else {
			rows = append(rows, m.renderSeparator())
		}
	}
	if len(m.itemRows) == 0 {
		rows = append(rows, styleMuted().Render(" Nothing here yet. Press a to add an item."))
	}
	for len(rows) < vis {
		rows = append(rows, "")
	}

	help := "space: toggle   a: add   e: edit   u: link   K/J/drag: move   s: share   i/I: icon   b: bg   C: clear   x: delete   esc: back   q: quit"
	return header + "\n\n" + strings.Join(rows, "\n") + "\n" + m.renderFooter(help)
}

func (m appModel) renderSeparator() string {
	line := fmt.Sprintf(" ── %d done ──", m.checkedCount())
	return styleMuted().Render(padToWidth(line, m.width))
}

func (m appModel) renderItemRow(it model.Item, selected bool) string {
	box := "[ ] "
	if it.Checked {
		box = "[x] "
	}
	line := " " + box + it.Text
	if it.URL != "" {
		line += " ↗"
	}
	line = padToWidth(line, m.width)

	st := lipgloss.NewStyle()
	if it.Checked {
		st = styleMuted().Strikethrough(true)
	}
	if selected {
		st = st.Background(colorSelectedBg).Foreground(colorSelectedFg)
		if m.dragging {
			st = st.Background(colorAccent).Foreground(ac("255", "235"))
		}
	}
	return st.Render(line)
}

// renderFooter stacks the toast line over the key help. The toast line
// stays reserved even when empty so rows don't jump.
func (m appModel) renderFooter(help string) string {
	status := ""
	if m.toastText != "" {
		st := lipgloss.NewStyle().Foreground(colorAccent)
		if m.toastIsErr {
			st = lipgloss.NewStyle().Foreground(colorDanger)
		}
		status = st.Render(m.toastText)
	}
	return status + "\n" + styleMuted().Render(help)
}

func (m appModel) renderModal() string {
	switch m.modal {
	case modalConfirmDeleteList:
		name := m.modalForID
		if l, ok := m.lists.Get(m.modalForID); ok {
			name = l.Name
		}
		return renderConfirmModal(m.width, "Delete list",
			fmt.Sprintf("Delete %q and everything on it?", name),
			"Delete", "Keep", m.confirmFocus)
	case modalConfirmDeleteItem:
		text := m.modalForID
		if m.items != nil {
			if it, ok := m.items.Get(m.modalForID); ok {
				text = it.Text
			}
		}
		return renderConfirmModal(m.width, "Delete item",
			fmt.Sprintf("Delete %q?", text), "Delete", "Keep", m.confirmFocus)
	case modalConfirmClearChecked:
		return renderConfirmModal(m.width, "Clear checked",
			fmt.Sprintf("Delete the %d checked items?", m.checkedCount()),
			"Clear", "Keep", m.confirmFocus)
	case modalConfirmResetIcon:
		return renderConfirmModal(m.width, "Icon image",
			"Remove the custom icon image?", "Remove", "Keep", m.confirmFocus)
	case modalConfirmResetBg:
		return renderConfirmModal(m.width, "Background image",
			"Remove the background image?", "Remove", "Keep", m.confirmFocus)
	}
	return renderInputModal(m.width, modalTitle(m.modal), m.input, modalHint(m.modal))
}
