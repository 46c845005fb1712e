package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

// modalBodyWidth clamps the modal's inner width to something readable
// regardless of terminal size.
func modalBodyWidth(width int) int {
	w := width - 10
	if w > 64 {
		w = 64
	}
	if w < 24 {
		w = 24
	}
	return w
}

// renderModalBox draws a titled panel. The caller centers it.
func renderModalBox(width int, title, body string) string {
	bodyW := modalBodyWidth(width)
	header := lipgloss.NewStyle().
		Bold(true).
		Width(bodyW + 2).
		Padding(0, 1).
		Foreground(colorSurfaceFg).
		Background(colorControlBg).
		Render(title)
	content := lipgloss.NewStyle().
		Width(bodyW + 2).
		Padding(1, 1).
		Foreground(colorSurfaceFg).
		Background(colorSurfaceBg).
		Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, content)
}

func renderInputModal(width int, title string, input textinput.Model, hint string) string {
	bodyW := modalBodyWidth(width)
	parts := []string{input.View()}
	if hint != "" {
		parts = append(parts, "", styleMuted().Width(bodyW).Render(hint))
	}
	parts = append(parts, "", styleMuted().Width(bodyW).Render("enter: save   esc: cancel"))
	return renderModalBox(width, title, strings.Join(parts, "\n"))
}

func renderConfirmModal(width int, title, body, confirmLabel, cancelLabel string, focus confirmModalFocus) string {
	btnBase := lipgloss.NewStyle().Padding(0, 2).Background(colorControlBg).Foreground(colorSurfaceFg)
	btnActive := lipgloss.NewStyle().Padding(0, 2).Background(colorAccent).Foreground(ac("255", "235")).Bold(true)

	confirm := btnBase.Render(confirmLabel)
	cancel := btnBase.Render(cancelLabel)
	if focus == confirmFocusConfirm {
		confirm = btnActive.Render(confirmLabel)
	} else {
		cancel = btnActive.Render(cancelLabel)
	}

	bodyW := modalBodyWidth(width)
	msg := lipgloss.NewStyle().Width(bodyW).Render(body)
	buttons := lipgloss.JoinHorizontal(lipgloss.Top, confirm, "   ", cancel)
	help := styleMuted().Width(bodyW).Render("tab: focus   enter: select   esc: cancel")
	return renderModalBox(width, title, msg+"\n\n"+buttons+"\n\n"+help)
}

func modalTitle(kind modalKind) string {
	switch kind {
	case modalNewList:
		return "New list"
	case modalRenameList:
		return "Rename list"
	case modalSetListIcon:
		return "List icon"
	case modalShareList:
		return "Share list"
	case modalAttachIconFile:
		return "Icon image"
	case modalAttachBgFile:
		return "Background image"
	case modalNewItem:
		return "New item"
	case modalEditItemText:
		return "Edit item"
	case modalEditItemURL:
		return "Item link"
	}
	return ""
}

func modalHint(kind modalKind) string {
	switch kind {
	case modalSetListIcon:
		return "An emoji works best. Leave empty to go back to the default."
	case modalShareList:
		return "The address must already have an account."
	case modalAttachIconFile, modalAttachBgFile:
		return "Path to an image file. Leave empty to remove the current one."
	case modalEditItemURL:
		return "Leave empty to remove the link."
	}
	return ""
}
