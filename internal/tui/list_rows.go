package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"trolley/internal/model"
)

// listRowItem is one row on the lists screen.
type listRowItem struct {
	list   model.List
	counts model.ListCounts
}

func (r listRowItem) FilterValue() string { return r.list.Name }

// listGlyph picks the one-cell marker shown before a list name. Custom
// icon images can't render in a terminal, so they get a stand-in.
func listGlyph(l model.List) string {
	if l.IconImageURL != nil {
		return "🖼"
	}
	if l.Icon != "" {
		return l.Icon
	}
	return "▫"
}

// rowDelegate renders single-line rows. The stock delegate spends three
// lines per entry; lists here are dense enough that one is plenty.
type rowDelegate struct {
	normal   lipgloss.Style
	selected lipgloss.Style
	muted    lipgloss.Style
}

func newRowDelegate() rowDelegate {
	return rowDelegate{
		normal:   lipgloss.NewStyle(),
		selected: lipgloss.NewStyle().Background(colorSelectedBg).Foreground(colorSelectedFg),
		muted:    styleMuted(),
	}
}

func (d rowDelegate) Height() int  { return 1 }
func (d rowDelegate) Spacing() int { return 0 }

func (d rowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d rowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, ok := item.(listRowItem)
	if !ok {
		return
	}

	line := " " + listGlyph(row.list) + " " + row.list.Name
	if row.counts.Total > 0 {
		line += d.muted.Render(fmt.Sprintf("  %d/%d", row.counts.Unchecked, row.counts.Total))
	}

	width := m.Width()
	if width <= 0 {
		width = xansi.StringWidth(line)
	}
	line = padToWidth(line, width)

	st := d.normal
	if index == m.Index() {
		st = d.selected
	}
	fmt.Fprint(w, st.Render(line))
}

// padToWidth pads or truncates a styled line to exactly width cells.
func padToWidth(s string, width int) string {
	if w := xansi.StringWidth(s); w < width {
		for i := w; i < width; i++ {
			s += " "
		}
		return s
	}
	return xansi.Cut(s, 0, width)
}

// newList builds a list.Model stripped down to bare rows; the screens
// draw their own headers and help lines.
func newList(items []list.Item) list.Model {
	l := list.New(items, newRowDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetKeys("q")
	l.KeyMap.CursorUp.SetKeys(append(l.KeyMap.CursorUp.Keys(), "ctrl+p")...)
	l.KeyMap.CursorDown.SetKeys(append(l.KeyMap.CursorDown.Keys(), "ctrl+n")...)
	return l
}
