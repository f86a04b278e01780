package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragqa/internal/chunker"
)

var (
	corpusOutput    string
	corpusSentences int
	corpusOverlap   int
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Prepare the passage table",
}

var corpusBuildCmd = &cobra.Command{
	Use:   "build <glob>...",
	Short: "Split text files into passages and write a CSV corpus",
	Example: `  ragqa corpus build "notes/**/*.txt" -o knowledge_base/corpus.csv
  ragqa corpus build a.txt b.md --sentences 3 --overlap 1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCorpusBuild,
}

func init() {
	corpusBuildCmd.Flags().StringVarP(&corpusOutput, "output", "o", "", "CSV path (overrides corpus.path)")
	corpusBuildCmd.Flags().IntVar(&corpusSentences, "sentences", 5, "sentences per passage")
	corpusBuildCmd.Flags().IntVar(&corpusOverlap, "overlap", 1, "sentences shared by consecutive passages")
	corpusCmd.AddCommand(corpusBuildCmd)
	rootCmd.AddCommand(corpusCmd)
}

func runCorpusBuild(cmd *cobra.Command, args []string) error {
	out := cfg.Corpus.Path
	if corpusOutput != "" {
		out = corpusOutput
	}

	files, err := expandGlobs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files match %v", args)
	}

	ch := chunker.NewSentenceChunker(corpusSentences, corpusOverlap)
	var rows [][]string
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, p := range ch.Chunk(chunker.Document{ID: path, Content: string(data)}) {
			rows = append(rows, []string{p.ID, p.Text})
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("no passages found in %d files", len(files))
	}

	if err := writeCSV(out, []string{"Source", cfg.Corpus.TextColumn}, rows); err != nil {
		return err
	}
	logger.Info("corpus written", zap.String("path", out), zap.Int("files", len(files)), zap.Int("passages", len(rows)))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d passages from %d files to %s\n", len(rows), len(files), out)
	return nil
}

func expandGlobs(patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
