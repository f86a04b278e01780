package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragqa/internal/config"
	"ragqa/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.AppConfig
	logger   *zap.Logger
)

// logToFile marks commands that own the terminal, so logs must not go to stderr.
const logToFile = "log-to-file"

var rootCmd = &cobra.Command{
	Use:   "ragqa",
	Short: "Question answering over a fixed knowledge base",
	Long: `ragqa answers natural-language questions from a fixed corpus of passages.
Each question is embedded, matched against precomputed passage embeddings,
and answered by a language model that only sees the closest passages.

Example usage:
  ragqa corpus build "docs/**/*.txt" -o knowledge_base/corpus.csv
  ragqa embed                       # Encode the corpus once
  ragqa serve                       # Chat page on :5000
  ragqa ask "What is the capital of France?"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, _, err = config.LoadDefault()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if cmd.Annotations[logToFile] == "true" && cfg.Logging.File == "" {
			cfg.Logging.File = filepath.Join(os.TempDir(), "ragqa.log")
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ragqa.yaml, then ~/.config/ragqa/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}
