package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragqa/internal/app"
	"ragqa/internal/corpus"
	"ragqa/internal/domain"
	"ragqa/internal/embedstore"
)

var (
	embedOutput    string
	embedFormat    string
	embedBatchSize int
	embedRetries   int
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Encode every corpus passage and write the embedding store",
	Long: `Encode every corpus passage with the configured encoder and write the
embedding store the server loads at startup. Re-run it whenever the corpus
or the encoder settings change.`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().StringVarP(&embedOutput, "output", "o", "", "store path (overrides embeddings.path)")
	embedCmd.Flags().StringVar(&embedFormat, "format", "", "store format: json or bolt (default from the file extension)")
	embedCmd.Flags().IntVar(&embedBatchSize, "batch-size", 32, "passages encoded per batch")
	embedCmd.Flags().IntVar(&embedRetries, "retries", 5, "retries per remote encoder call")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	out, format := cfg.Embeddings.Path, cfg.Embeddings.Format
	if embedOutput != "" {
		out, format = embedOutput, embedFormat
	} else if embedFormat != "" {
		format = embedFormat
	}
	if embedBatchSize <= 0 {
		embedBatchSize = 32
	}

	c, err := corpus.Load(cfg.Corpus.Path, cfg.Corpus.TextColumn, cfg.Corpus.Sheet)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	enc, err := app.NewEncoder(cmd.Context(), cfg.Encoder, embedRetries)
	if err != nil {
		return fmt.Errorf("build encoder: %w", err)
	}

	bar := progressbar.NewOptions(c.Len(),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	start := time.Now()
	passages := c.Passages()
	vectors := make([][]float32, 0, len(passages))
	for i := 0; i < len(passages); i += embedBatchSize {
		batch := passages[i:min(i+embedBatchSize, len(passages))]
		vecs, err := encodeBatch(cmd, enc, batch)
		if err != nil {
			return fmt.Errorf("encode passages %d-%d: %w", i, i+len(batch)-1, err)
		}
		vectors = append(vectors, vecs...)
		_ = bar.Add(len(batch))
	}
	_ = bar.Finish()

	store := &embedstore.Store{Model: enc.Name(), Dimension: enc.Dimension(), Vectors: vectors}
	if err := embedstore.Save(out, format, store); err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}
	logger.Info("embeddings written",
		zap.String("path", out),
		zap.Int("vectors", len(vectors)),
		zap.Int("dimension", store.Dimension),
		zap.Duration("took", time.Since(start)))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d embeddings (%d dimensions) to %s\n", len(vectors), store.Dimension, out)
	return nil
}

func encodeBatch(cmd *cobra.Command, enc domain.Encoder, texts []string) ([][]float32, error) {
	if be, ok := enc.(domain.BatchEncoder); ok {
		return be.EncodeBatch(cmd.Context(), texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := enc.Encode(cmd.Context(), t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
