package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"filigram/internal/config"
)

var (
	rootLogLevel   string
	rootConfigPath string

	// settings holds the file config (or defaults) once the root pre-run has
	// loaded it. Subcommand flags are applied on top.
	settings config.Config
)

var rootCmd = &cobra.Command{
	Use:           "filigram",
	Short:         "filigram - watermark every image in a directory tree",
	Long:          "filigram mirrors a directory tree, stamping a rotated text watermark on eligible images, copying everything else verbatim and carrying EXIF and ICC metadata across.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(rootLogLevel)
		if err != nil {
			return errors.Errorf("invalid --log-level %q: %w", rootLogLevel, err)
		}
		logger := newLogger(level)
		ctx := logger.WithContext(cmd.Context())
		cmd.SetContext(ctx)

		settings = config.Default()
		if rootConfigPath != "" {
			settings, err = config.Load(ctx, rootConfigPath)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func newLogger(level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c", "", "path to a YAML config file")
}
