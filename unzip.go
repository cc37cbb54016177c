package zipr

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/nguyengg/zipr/zipfile"
	"golang.org/x/sync/errgroup"
)

// UnzipOptions customises Unzip.
type UnzipOptions struct {
	// MaxConcurrency caps the number of goroutines extracting file entries at the same time.
	//
	// Defaults to runtime.NumCPU if not positive.
	MaxConcurrency int

	// ProgressReporter is called as entries are extracted; it must be safe for concurrent use. Nil disables
	// reporting.
	ProgressReporter ProgressReporter
}

// Unzip extracts the ZIP archive at name into dir.
//
// The destination directory and any missing ancestors are created first, so dir not existing is never an error.
// Directory entries are then created in archive order, and file entries extracted in parallel, synthesizing any
// parent directories their names imply even when the archive carries no entries for them. File permission bits
// recovered from the archive are restored with os.Chmod; directory modes are not restored.
//
// Every entry name is validated before anything is written: a name that would escape dir fails the whole call with
// ErrInsecurePath. A file that fails mid-write has its partial output removed, and the first failing entry aborts
// the remaining extraction.
func Unzip(ctx context.Context, name, dir string, optFns ...func(*UnzipOptions)) error {
	opts := &UnzipOptions{MaxConcurrency: runtime.NumCPU()}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = runtime.NumCPU()
	}

	src, err := zipfile.OpenReader(name)
	if err != nil {
		return fmt.Errorf(`open archive "%s" error: %w`, name, err)
	}
	defer src.Close()

	targets := make([]string, len(src.File))
	for i, f := range src.File {
		if targets[i], err = secureJoin(dir, f.Name); err != nil {
			return err
		}
	}

	if err = os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf(`create destination directory "%s" error: %w`, dir, err)
	}

	for i, f := range src.File {
		if !f.IsDir() {
			continue
		}

		if err = os.MkdirAll(targets[i], 0755); err != nil {
			return fmt.Errorf(`create directory "%s" error: %w`, targets[i], err)
		}

		if pr := opts.ProgressReporter; pr != nil {
			pr(f.Name, 0, true)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrency)

	for i, f := range src.File {
		if f.IsDir() {
			continue
		}

		g.Go(func() error {
			return extractFile(ctx, f, targets[i], opts.ProgressReporter)
		})
	}

	return g.Wait()
}

// extractFile writes one file entry to target, restoring its permission bits on success and removing the partial
// file on failure.
func extractFile(ctx context.Context, f *zipfile.File, target string, pr ProgressReporter) error {
	if parent := filepath.Dir(target); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fmt.Errorf(`create directory "%s" error: %w`, parent, err)
		}
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf(`create file "%s" error: %w`, target, err)
	}

	var w io.Writer = dst
	if pr != nil {
		w = io.MultiWriter(dst, &progressWriter{name: f.Name, pr: pr})
	}

	if _, err = CopyBufferWithContext(ctx, w, src, nil); err != nil {
		_, _ = dst.Close(), os.Remove(target)
		return fmt.Errorf(`extract entry "%s" error: %w`, f.Name, err)
	}

	if err = dst.Close(); err != nil {
		_ = os.Remove(target)
		return fmt.Errorf(`close file "%s" error: %w`, target, err)
	}

	if err = os.Chmod(target, f.Mode().Perm()); err != nil {
		return fmt.Errorf(`restore permissions of "%s" error: %w`, target, err)
	}

	if pr != nil {
		pr(f.Name, 0, true)
	}

	return nil
}

// progressWriter reports written byte counts as they pass through, leaving the done call to the extraction loop.
type progressWriter struct {
	name string
	pr   ProgressReporter
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.pr(w.name, int64(len(p)), false)
	return len(p), nil
}
