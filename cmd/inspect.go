package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"filigram/internal/metadata"
	"filigram/internal/tui"
	"filigram/pkg/imgutil"
)

var inspectTags bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Report EXIF and ICC metadata of a file or every image in a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		root := args[0]

		info, err := os.Stat(root)
		if err != nil {
			return errors.Errorf("inspect: %w", err)
		}

		paths := []string{root}
		if info.IsDir() {
			paths, err = collectImages(ctx, root)
			if err != nil {
				return err
			}
		}

		withMetadata := 0
		for i, path := range paths {
			report, err := metadata.Inspect(path)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("cannot inspect")
				continue
			}
			if report.HasMetadata() {
				withMetadata++
			}
			if i > 0 {
				fmt.Fprintln(os.Stdout)
			}
			printReport(report)
		}

		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, tui.RenderSummary([]tui.SummaryRow{
			{Label: "Images inspected", Value: fmt.Sprintf("%d", len(paths))},
			{Label: "With EXIF or ICC", Value: fmt.Sprintf("%d", withMetadata)},
		}))
		return nil
	},
}

// collectImages lists the images under root whose content matches their
// extension. Mislabelled files are logged and left out.
func collectImages(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		want := imgutil.KindFromExt(path)
		if !d.Type().IsRegular() || want == imgutil.KindUnknown {
			return nil
		}
		got, err := imgutil.SniffFile(path)
		if err != nil || got != want {
			zerolog.Ctx(ctx).Warn().Str("path", path).Str("ext", want.String()).Str("content", got.String()).Msg("skipping mislabelled image")
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", root, err)
	}
	return paths, nil
}

func printReport(report metadata.Report) {
	fmt.Fprintf(os.Stdout, "%s %s\n", inspectFileStyle.Render(report.Path), tui.DimStyle.Render(report.Kind.String()))
	if !report.HasMetadata() {
		fmt.Fprintf(os.Stdout, "  %s %s\n", inspectBulletStyle.Render("-"), tui.DimStyle.Render("none"))
		return
	}
	fmt.Fprintf(os.Stdout, "  %s %s\n", inspectBulletStyle.Render("-"), inspectValueStyle.Render(fmt.Sprintf("EXIF: %d bytes", report.ExifSize)))
	fmt.Fprintf(os.Stdout, "  %s %s\n", inspectBulletStyle.Render("-"), inspectValueStyle.Render(fmt.Sprintf("ICC: %d bytes", report.ICCSize)))
	if !inspectTags {
		return
	}
	for _, tag := range report.Tags {
		fmt.Fprintf(os.Stdout, "    %s %s\n",
			inspectCategoryStyle.Render(tag.IFD+"/"+tag.Name+":"),
			inspectValueStyle.Render(tag.Value),
		)
	}
}

var (
	inspectFileStyle     = tui.HeadingStyle
	inspectCategoryStyle = lipgloss.NewStyle().Foreground(tui.ColorAccent)
	inspectValueStyle    = lipgloss.NewStyle().Foreground(tui.ColorInk)
	inspectBulletStyle   = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	inspectCmd.Flags().BoolVarP(&inspectTags, "tags", "t", false, "list decoded EXIF tags")

	rootCmd.AddCommand(inspectCmd)
}
