package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragqa/internal/app"
	"ragqa/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:         "chat",
	Short:       "Ask questions in an interactive terminal UI",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{logToFile: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := app.Bootstrap(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		summary := fmt.Sprintf("%d passages · %s · logs in %s", rt.Corpus.Len(), rt.Encoder.Name(), cfg.Logging.File)
		m := tui.New(cmd.Context(), rt.Pipeline, summary)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
