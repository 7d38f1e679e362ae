package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"filigram/internal/config"
	"filigram/internal/processor"
	"filigram/internal/tui"
)

var (
	wmOutputDir     string
	wmText          string
	wmColor         []int
	wmScale         []float64
	wmFont          string
	wmExcludeDirs   []string
	wmExcludePrefix []string
	wmExtensions    []string
	wmExcludeGlobs  []string
	wmWorkers       int
	wmOnCopyError   string
	wmClean         bool
	wmNoProgress    bool
)

var watermarkCmd = &cobra.Command{
	Use:   "watermark [flags] <input>",
	Short: "Mirror a directory tree with watermarked images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		if wmOutputDir == "" {
			return errors.New("--output is required")
		}

		cfg := applyWatermarkFlags(cmd, settings)
		opts, err := cfg.Options()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if wmClean {
			if contains(wmOutputDir, input) {
				return errors.New("--clean refuses to remove a directory that contains the input")
			}
			zerolog.Ctx(ctx).Info().Str("path", wmOutputDir).Msg("removing previous output")
			if err := os.RemoveAll(wmOutputDir); err != nil {
				return errors.Errorf("cleaning output: %w", err)
			}
		}

		var summary processor.Summary
		if wmNoProgress {
			summary, err = processor.Run(ctx, input, wmOutputDir, opts, nil)
		} else {
			summary, err = runWithProgress(ctx, cmd, input, opts)
		}
		if err != nil {
			return err
		}

		rows := []tui.SummaryRow{
			{Label: "Entries processed", Value: fmt.Sprintf("%d", summary.Entries)},
			{Label: "Directories", Value: fmt.Sprintf("%d", summary.Directories)},
			{Label: "Watermarked", Value: fmt.Sprintf("%d", summary.Watermarked)},
			{Label: "Copied", Value: fmt.Sprintf("%d", summary.Copied)},
			{Label: "Failed", Value: fmt.Sprintf("%d", summary.Failed)},
			{Label: "Metadata errors", Value: fmt.Sprintf("%d", summary.MetadataErrors)},
			{Label: "Elapsed", Value: summary.Elapsed.Round(time.Millisecond).String()},
		}
		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))

		outPath := wmOutputDir
		if abs, absErr := filepath.Abs(wmOutputDir); absErr == nil {
			outPath = abs
		}
		fmt.Fprintf(os.Stdout, "Output written to: %s\n", outPath)
		if summary.Failed > 0 {
			fmt.Fprintln(os.Stdout, tui.WarnStyle.Render("Some entries failed; see the log for details."))
		}
		return nil
	},
}

// runWithProgress drives the pipeline behind the progress view. Quitting the
// view early (ctrl+c) cancels the run.
func runWithProgress(ctx context.Context, cmd *cobra.Command, input string, opts processor.Options) (processor.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Keep log lines from tearing through the progress view.
	if !cmd.Flags().Changed("log-level") {
		logger := zerolog.Ctx(ctx).Level(zerolog.WarnLevel)
		ctx = logger.WithContext(ctx)
	}

	sink := tui.NewSink()
	program := tea.NewProgram(
		tui.NewModel("filigram", sink.Updates()),
		tea.WithOutput(os.Stderr),
		tea.WithContext(ctx),
	)

	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		final, err := program.Run()
		switch {
		case err != nil && ctx.Err() == nil:
			zerolog.Ctx(ctx).Warn().Err(err).Msg("progress display unavailable")
		case err == nil:
			if m, ok := final.(tui.Model); ok && m.Interrupted() {
				cancel()
			}
		}
		// Keep draining so the pipeline never blocks on the sink.
		for range sink.Updates() {
		}
	}()

	summary, err := processor.Run(ctx, input, wmOutputDir, opts, sink)
	sink.Close()
	<-uiDone
	return summary, err
}

// contains reports whether path lies within (or is) dir.
func contains(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return true
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// applyWatermarkFlags overlays explicitly set flags on the loaded config.
func applyWatermarkFlags(cmd *cobra.Command, cfg config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("text") {
		cfg.Watermark.Text = wmText
	}
	if flags.Changed("color") {
		cfg.Watermark.Color = wmColor
	}
	if flags.Changed("scale") {
		switch len(wmScale) {
		case 1:
			cfg.Watermark.Scale.X, cfg.Watermark.Scale.Y = wmScale[0], wmScale[0]
		case 2:
			cfg.Watermark.Scale.X, cfg.Watermark.Scale.Y = wmScale[0], wmScale[1]
		default:
			// Validation rejects this.
			cfg.Watermark.Scale.X, cfg.Watermark.Scale.Y = 0, 0
		}
	}
	if flags.Changed("font") {
		cfg.Watermark.Font = wmFont
	}
	if flags.Changed("exclude-dir") {
		cfg.Rules.ExcludedDirs = wmExcludeDirs
	}
	if flags.Changed("exclude-prefix") {
		cfg.Rules.ExcludedFilePrefixes = wmExcludePrefix
	}
	if flags.Changed("ext") {
		cfg.Rules.AllowedExtensions = wmExtensions
	}
	if flags.Changed("exclude-glob") {
		cfg.Rules.ExcludedGlobs = wmExcludeGlobs
	}
	if flags.Changed("workers") {
		cfg.Workers = wmWorkers
	}
	if flags.Changed("on-copy-error") {
		cfg.OnCopyError = wmOnCopyError
	}
	return cfg
}

func init() {
	flags := watermarkCmd.Flags()
	flags.StringVarP(&wmOutputDir, "output", "o", "", "destination folder for the mirrored tree")
	flags.StringVar(&wmText, "text", "", "watermark text")
	flags.IntSliceVar(&wmColor, "color", nil, "watermark color as r,g,b,a (0..255)")
	flags.Float64SliceVar(&wmScale, "scale", nil, "glyph scale as s or x,y in pixels")
	flags.StringVar(&wmFont, "font", "", "TTF/OTF font file (default: embedded Go Bold)")
	flags.StringSliceVar(&wmExcludeDirs, "exclude-dir", nil, "directory names whose contents are copied, not watermarked")
	flags.StringSliceVar(&wmExcludePrefix, "exclude-prefix", nil, "file name prefixes that are copied, not watermarked")
	flags.StringSliceVar(&wmExtensions, "ext", nil, "extensions eligible for watermarking")
	flags.StringSliceVar(&wmExcludeGlobs, "exclude-glob", nil, "doublestar patterns (relative to input) that are copied, not watermarked")
	flags.IntVarP(&wmWorkers, "workers", "w", 0, "parallel file workers (0 = number of CPUs)")
	flags.StringVar(&wmOnCopyError, "on-copy-error", "skip", "what to do when a plain copy fails: skip or abort")
	flags.BoolVar(&wmClean, "clean", false, "remove the output directory before running")
	flags.BoolVar(&wmNoProgress, "no-progress", false, "disable the progress display")

	rootCmd.AddCommand(watermarkCmd)
}
