package main

import (
	"a4achat/cmd/a4a/ui"
	"a4achat/internal/history"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd lists recent exchanges from the local archive
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent exchanges from the local archive",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	store, err := history.Open(a.historyDBPath())
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	turns, err := store.Recent(historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(turns) == 0 {
		fmt.Println("No chat history yet.")
		return nil
	}

	table := ui.NewTable("Recent Exchanges", []string{"When", "Model", "Prompt", "Tokens", "Tok/s"})
	for _, t := range turns {
		table.AddRow(
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
			t.Model,
			truncate(t.Prompt, 48),
			fmt.Sprintf("%d", t.Tokens),
			fmt.Sprintf("%.1f", t.TokensPerSecond),
		)
	}
	fmt.Print(table.View(ui.DefaultStyles()))
	return nil
}

// truncate flattens newlines and shortens s to max runes.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
