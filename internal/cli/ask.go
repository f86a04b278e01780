package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragqa/internal/app"
)

var showContext bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and exit",
	Example: `  ragqa ask "What is the capital of France?"
  ragqa ask --show-context "Who wrote Hamlet?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := app.Bootstrap(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		res := rt.Pipeline.Answer(cmd.Context(), strings.Join(args, " "))
		out := cmd.OutOrStdout()
		if showContext && res.Retrieval != nil {
			fmt.Fprintln(out, "Retrieved:")
			for _, n := range res.Retrieval.Neighbors {
				fmt.Fprintf(out, "  #%d  distance=%.4f\n", n.Index, n.Distance)
			}
			fmt.Fprintf(out, "Context (%d words):\n%s\n\n", res.Retrieval.Words, res.Retrieval.Context)
		}
		fmt.Fprintln(out, res.Answer)
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved passages and context block")
	rootCmd.AddCommand(askCmd)
}
