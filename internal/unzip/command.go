// Package unzip implements the "zipr unzip" subcommand.
package unzip

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipr"
	"github.com/nguyengg/zipr/internal"
	"github.com/nguyengg/zipr/util"
	"github.com/nguyengg/zipr/zipfile"
)

// Command extracts a ZIP archive into a directory.
type Command struct {
	Dir            flags.Filename `short:"d" long:"directory" description:"directory to extract into, created along with any missing ancestors; default to a new directory named after the archive"`
	MaxConcurrency int            `short:"P" long:"max-concurrency" description:"use up to max-concurrency number of goroutines to extract files in parallel; default to number of CPUs"`
	Args           struct {
		Archive flags.Filename `positional-arg-name:"archive" description:"the ZIP archive to extract" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	// a first pass over the central directory sizes the progress bar.
	name := string(c.Args.Archive)
	src, err := zipfile.OpenReader(name)
	if err != nil {
		return fmt.Errorf(`open archive "%s" error: %w`, name, err)
	}

	var total int64
	n := len(src.File)
	for _, f := range src.File {
		total += int64(f.UncompressedSize)
	}
	_ = src.Close()

	// without -d, extract into a brand-new "<stem>/" (or "<stem>-1/", etc. on collision) next to the archive.
	dir := string(c.Dir)
	if dir == "" {
		stem, _ := util.StemAndExt(name)
		if dir, err = util.MkExclDir(filepath.Dir(name), stem, 0755); err != nil {
			return err
		}
	}

	bar := internal.DefaultBytes(total, "extracting")
	err = zipr.Unzip(ctx, name, dir, func(opts *zipr.UnzipOptions) {
		opts.MaxConcurrency = c.MaxConcurrency
		opts.ProgressReporter = func(_ string, written int64, _ bool) {
			_ = bar.Add64(written)
		}
	})
	_ = bar.Close()
	if err != nil {
		return err
	}

	log.Printf(`extracted %d entries to "%s"`, n, util.DirBase(dir))
	return nil
}
