// Package tui is the interactive terminal client. It speaks to the
// engine controllers only; everything the keyboard and mouse do maps
// onto the same operations the CLI exposes.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"trolley/internal/backend"
	"trolley/internal/model"
)

// Run starts the full-screen client on be and blocks until the user
// quits.
func Run(be backend.Backend) error {
	applyColorProfilePreference()
	applyThemePreference()

	p := tea.NewProgram(newAppModel(be),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// A sign-out from anywhere in the process drops the UI back to the
	// login screen.
	cancel := be.OnSessionChange(func(s *model.Session) {
		p.Send(sessionSwitchedMsg{sess: s})
	})
	defer cancel()

	final, err := p.Run()
	if fm, ok := final.(appModel); ok && fm.watcher != nil {
		fm.watcher.Close()
	}
	return err
}
