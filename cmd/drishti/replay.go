package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/session"
)

var replayCmd = &cobra.Command{
	Use:   "replay <samples.ndjson>",
	Short: "Run a recorded frame sequence through the liveness checks",
	Long: `Replay newline-delimited frame samples through a verification session
using the configured liveness thresholds. Useful for tuning thresholds
offline. With --embedding the session also matches the given vector
against the enrolled gallery.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().String("embedding", "", "JSON file holding the embedding to match after a live verdict")
	replayCmd.Flags().Int("max-frames", 0, "Override liveness max frames")
	replayCmd.Flags().Bool("stop-when-satisfied", false, "End as soon as liveness is satisfied")
}

// fixedExtractor returns the same embedding for any region.
type fixedExtractor identity.Embedding

func (e fixedExtractor) Extract(ctx context.Context, region image.Image) (identity.Embedding, error) {
	return identity.Embedding(e).Clone(), nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	samples, err := session.DecodeSamples(f)
	f.Close()
	if err != nil {
		return err
	}

	sc := sessionConfig(cfg)
	sc.Timeout = 0
	if n, _ := cmd.Flags().GetInt("max-frames"); n > 0 {
		sc.Liveness.MaxFrames = n
	}
	if cmd.Flags().Changed("stop-when-satisfied") {
		sc.Liveness.StopWhenSatisfied, _ = cmd.Flags().GetBool("stop-when-satisfied")
	}
	if err := sc.Liveness.Validate(); err != nil {
		return err
	}

	var (
		extractor session.Extractor
		region    image.Image
		gallery   identity.Snapshot
	)
	if path, _ := cmd.Flags().GetString("embedding"); path != "" {
		emb, err := readEmbedding(path)
		if err != nil {
			return err
		}
		extractor = fixedExtractor(emb)
		region = image.NewGray(image.Rect(0, 0, 1, 1))

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		entries, err := st.LoadGallery()
		st.Close()
		if err != nil {
			return err
		}
		g, err := identity.NewGallery(entries)
		if err != nil {
			return err
		}
		gallery = g.Snapshot()
	}

	orch := session.New(sc, extractor)
	res, err := orch.Run(cmd.Context(), session.NewReplaySource(samples, region), gallery)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d samples replayed\n", len(samples))
	return nil
}

func readEmbedding(path string) (identity.Embedding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var emb identity.Embedding
	if err := json.Unmarshal(data, &emb); err != nil {
		return nil, fmt.Errorf("parse embedding %s: %w", path, err)
	}
	if len(emb) == 0 {
		return nil, fmt.Errorf("embedding %s is empty", path)
	}
	return emb, nil
}
