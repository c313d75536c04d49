package main

import (
	"a4achat/cmd/a4a/ui"
	"fmt"

	"github.com/spf13/cobra"
)

// modelsCmd lists the gateway model catalogue
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the community model catalogue",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	models, err := a.client.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("The gateway reports no models.")
		return nil
	}

	table := ui.NewTable("Community Models", []string{"ID", "Category", "Owner", "Description"})
	for _, m := range models {
		marker := m.ID
		if m.ID == a.cfg.Chat.Model {
			marker = "* " + m.ID
		}
		table.AddRow(marker, m.Category, m.OwnedBy, truncate(m.Description, 56))
	}
	fmt.Print(table.View(ui.DefaultStyles()))
	fmt.Println("* = default model from config")
	return nil
}
