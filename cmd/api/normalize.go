package main

import (
	"fmt"
	"os"

	"github.com/dunamismax/earthworm/internal/config"
	"github.com/dunamismax/earthworm/internal/pipeline"
	"github.com/spf13/cobra"
)

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize <input> <output>",
		Short: "Downsize and re-encode an image exactly as the bridge would",
		Args:  cobra.ExactArgs(2),
		RunE:  runNormalize,
	}
	cmd.Flags().Int("max-width", 0, "Maximum output width (defaults to MAX_IMAGE_WIDTH)")
	cmd.Flags().Int("max-height", 0, "Maximum output height (defaults to MAX_IMAGE_HEIGHT)")
	cmd.Flags().Int("quality", 0, "JPEG quality 1-100 (defaults to IMAGE_QUALITY)")
	return cmd
}

func runNormalize(cmd *cobra.Command, args []string) error {
	opts := imageOptions(config.Load())
	if v, _ := cmd.Flags().GetInt("max-width"); v > 0 {
		opts.MaxWidth = v
	}
	if v, _ := cmd.Flags().GetInt("max-height"); v > 0 {
		opts.MaxHeight = v
	}
	if v, _ := cmd.Flags().GetInt("quality"); v > 0 {
		opts.Quality = v
	}

	input, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if err := pipeline.Startup(); err != nil {
		return fmt.Errorf("start image pipeline: %w", err)
	}
	defer pipeline.Shutdown()

	normalizer, err := pipeline.NewNormalizer(opts)
	if err != nil {
		return err
	}

	result, err := normalizer.Normalize(cmd.Context(), input)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", args[0], err)
	}

	if err := os.WriteFile(args[1], result.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s %dx%d bytes=%d (input bytes=%d)\n",
		args[1], result.Width, result.Height, len(result.Data), len(input))
	return nil
}
