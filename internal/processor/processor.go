// Package processor mirrors an input tree into an output tree, watermarking
// eligible images and copying everything else verbatim.
package processor

import (
	"context"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"filigram/internal/fsutil"
	"filigram/internal/metadata"
	"filigram/internal/watermark"
)

// Run watermarks every eligible file under inputDir into the same relative
// path under outputDir. The directory skeleton is created completely before
// any file is written. Watermark and metadata failures are logged and counted;
// copy failures follow opts.OnCopyError. sink may be nil.
func Run(ctx context.Context, inputDir, outputDir string, opts Options, sink ProgressSink) (Summary, error) {
	started := time.Now()
	summary := Summary{}
	log := zerolog.Ctx(ctx)

	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		return summary, errors.Errorf("%w: %s", ErrNotADirectory, inputDir)
	}

	absRoot, err := filepath.Abs(inputDir)
	if err != nil {
		return summary, errors.Errorf("%w: %s", ErrFilesystem, err)
	}
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return summary, errors.Errorf("%w: %s", ErrFilesystem, err)
	}
	if filepath.Clean(absOut) == filepath.Clean(absRoot) {
		return summary, errors.Errorf("%w: output directory resolves to input directory %s", ErrFilesystem, absRoot)
	}

	mark, err := watermark.Build(opts.Watermark)
	if err != nil {
		return summary, errors.Errorf("building watermark: %w", err)
	}

	entries, err := collectEntries(absRoot, absOut)
	if err != nil {
		return summary, err
	}
	summary.Entries = len(entries)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tracker := newTracker(sink, uint64(len(entries)))

	var dirs, files []Entry
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	summary.Directories = len(dirs)

	log.Debug().
		Str("input", absRoot).
		Str("output", absOut).
		Int("directories", len(dirs)).
		Int("files", len(files)).
		Int("workers", workers).
		Msg("walk complete")

	if err := createDirectories(ctx, dirs, absOut, workers, tracker); err != nil {
		summary.Elapsed = time.Since(started)
		return summary, err
	}

	err = processFiles(ctx, files, absOut, mark, opts, workers, tracker, &summary)
	summary.Elapsed = time.Since(started)
	if err != nil {
		return summary, err
	}

	tracker.finish()

	log.Info().
		Uint64("entries", tracker.processed()).
		Int("watermarked", summary.Watermarked).
		Int("copied", summary.Copied).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.Elapsed).
		Msg("run complete")

	return summary, nil
}

// collectEntries walks root up front so the total is known before any work
// starts. The root itself is included. An output directory nested inside
// root is not descended into.
func collectEntries(root, outputDir string) ([]Entry, error) {
	outputInsideRoot := isWithin(outputDir, root)

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() && outputInsideRoot && isWithin(path, outputDir) {
			return fs.SkipDir
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: path, RelPath: rel, IsDir: isDirEntry(path, d)})
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("%w: walking %s: %s", ErrFilesystem, root, err)
	}
	return entries, nil
}

// isDirEntry follows symlinks, so a link to a directory is mirrored as a
// directory. Its target is not descended into. Dangling links stay files and
// surface as copy errors.
func isDirEntry(path string, d fs.DirEntry) bool {
	if d.IsDir() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func createDirectories(ctx context.Context, dirs []Entry, outputDir string, workers int, tracker *tracker) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			target := filepath.Join(outputDir, dir.RelPath)
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Errorf("%w: creating %s: %s", ErrFilesystem, target, err)
			}
			tracker.step()
			return nil
		})
	}

	return g.Wait()
}

func processFiles(ctx context.Context, files []Entry, outputDir string, mark image.Image, opts Options, workers int, tracker *tracker, summary *Summary) error {
	log := zerolog.Ctx(ctx)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan Entry)
	results := make(chan Result)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			worker(workCtx, jobs, results, outputDir, mark, opts, tracker)
		}()
	}

	var fatal error
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for res := range results {
			if res.Err != nil {
				summary.Failed++
				log.Error().Err(res.Err).Str("path", res.Entry.Path).Msg("file failed")
				if res.Fatal && fatal == nil {
					fatal = res.Err
					cancel()
				}
				continue
			}

			switch res.Action {
			case ActionWatermark:
				summary.Watermarked++
			case ActionCopy:
				summary.Copied++
			}
			if res.MetadataErr != nil {
				summary.MetadataErrors++
				log.Error().Err(res.MetadataErr).Str("path", res.Entry.Path).Msg("metadata not preserved")
			}
		}
	}()

	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-workCtx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)
	<-collectorDone

	if fatal != nil {
		return fatal
	}
	return ctx.Err()
}

func worker(ctx context.Context, jobs <-chan Entry, results chan<- Result, outputDir string, mark image.Image, opts Options, tracker *tracker) {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			return
		}
		results <- processFile(ctx, job, outputDir, mark, opts)
		tracker.step()
	}
}

func processFile(ctx context.Context, job Entry, outputDir string, mark image.Image, opts Options) Result {
	log := zerolog.Ctx(ctx)
	res := Result{Entry: job}
	target := filepath.Join(outputDir, job.RelPath)

	if opts.Rules.IsEligible(job.RelPath) {
		res.Action = ActionWatermark
		log.Debug().Str("path", job.Path).Msg("watermarking")

		if err := watermark.Composite(job.Path, target, mark); err != nil {
			res.Err = err
			return res
		}
		res.MetadataErr = metadata.Transplant(ctx, job.Path, target)
		return res
	}

	res.Action = ActionCopy
	log.Debug().Str("path", job.Path).Msg("copying")
	if err := copyFile(job.Path, target); err != nil {
		res.Err = errors.Errorf("%w: %s: %s", ErrCopy, job.Path, err)
		res.Fatal = opts.OnCopyError == CopyErrorAbort
	}
	return res
}

// copyFile goes through a temporary file so a failed copy leaves nothing at
// dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("not a regular file: %s", info.Mode().Type())
	}

	return fsutil.WriteAtomic(dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
