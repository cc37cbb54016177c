// Package zip implements the "zipr zip" subcommand.
package zip

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipr"
	"github.com/nguyengg/zipr/codec"
	"github.com/nguyengg/zipr/internal"
	"github.com/nguyengg/zipr/util"
	"golang.org/x/time/rate"
)

// Command archives files and directories into a single ZIP file.
type Command struct {
	Output         flags.Filename `short:"o" long:"output" description:"name of the archive to create; by default the name derives from the first path with a .zip extension, never overwriting an existing file"`
	Method         string         `short:"m" long:"method" description:"compression method: stored, deflate, bzip2, zstd, or xz" default:"deflate"`
	MaxConcurrency int            `short:"P" long:"max-concurrency" description:"use up to max-concurrency number of goroutines to compress files in parallel; default to number of CPUs"`
	Args           struct {
		Paths []flags.Filename `positional-arg-name:"path" description:"the files or directories to archive" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	method, err := codec.ParseMethod(c.Method)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	sources := make([]string, len(c.Args.Paths))
	for i, p := range c.Args.Paths {
		sources[i] = string(p)
	}

	// the default output name is reserved with an exclusive create so that concurrent invocations never clobber
	// each other; zipr.Zip then truncates into the reserved file.
	name := string(c.Output)
	if name == "" {
		stem, _ := util.StemAndExt(filepath.Base(sources[0]))
		f, err := util.OpenExclFile(".", stem, ".zip", 0666)
		if err != nil {
			return err
		}

		name = f.Name()
		_ = f.Close()
	}

	sometimes := rate.Sometimes{Interval: time.Second}
	var count int
	var written int64

	err = zipr.Zip(ctx, name, sources, func(opts *zipr.ZipOptions) {
		opts.Method = method
		opts.MaxConcurrency = c.MaxConcurrency
		opts.ProgressReporter = func(entryName string, n int64, done bool) {
			if written += n; !done {
				return
			}

			count++
			sometimes.Do(func() {
				log.Printf("%sadded (%s so far)", internal.EntryTag(count, entryName), humanize.Bytes(uint64(written)))
			})
		}
	})
	if err != nil {
		return err
	}

	log.Printf(`added %d entries (%s) to "%s"`, count, humanize.Bytes(uint64(written)), name)
	return nil
}
