// Package main provides the a4a CLI entry point.
// This file launches the interactive chat interface using bubbletea.
package main

import (
	"a4achat/cmd/a4a/chat"
	"a4achat/internal/history"
	"a4achat/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
)

// runInteractiveChat assembles the backend services and hands the
// terminal to the bubbletea program until the user quits.
func runInteractiveChat() error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	// Chat still works without the local archive; persistence is off
	// when the store cannot open.
	store, err := history.Open(a.historyDBPath())
	if err != nil {
		logging.HistoryError("open store: %v", err)
		store = nil
	}

	m, err := chat.New(chat.Options{
		Config:     a.cfg,
		ConfigPath: a.cfgPath,
		Client:     a.client,
		Session:    a.session,
		History:    store,
		Version:    version,
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, runErr := p.Run()
	m.Shutdown()
	return runErr
}
