package zipr

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"runtime"

	"github.com/nguyengg/zipr/codec"
	"github.com/nguyengg/zipr/internal/executor"
	"github.com/nguyengg/zipr/zipfile"
)

// ZipOptions customises Zip.
type ZipOptions struct {
	// Method selects the compression method for file entries.
	//
	// The zero value is codec.Default (DEFLATE). Directory entries are always Stored.
	Method codec.Method

	// MaxConcurrency caps the number of goroutines compressing entry payloads at the same time.
	//
	// Defaults to runtime.NumCPU if not positive. Regardless of how many workers run, entries appear in the
	// archive in collection order.
	MaxConcurrency int

	// ProgressReporter is called once per entry as it is added to the archive. Nil disables reporting.
	ProgressReporter ProgressReporter
}

// Zip archives the given source paths into a single ZIP file created at name.
//
// A file source is archived under its base name; a directory source is archived under "<base>/..." preserving
// relative structure, including a lone "<base>/" entry for an empty directory. POSIX permission bits are stored in
// the archive's external file attributes and restored by Unzip.
//
// An existing file at name is truncated. If Zip returns an error, the partial file at name has been removed: Zip
// never reports success over a partially written archive.
func Zip(ctx context.Context, name string, sources []string, optFns ...func(*ZipOptions)) error {
	opts := &ZipOptions{Method: codec.Default, MaxConcurrency: runtime.NumCPU()}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = runtime.NumCPU()
	}

	if _, err := codec.For(opts.Method); err != nil {
		return err
	}

	// collection errors must surface before the destination file is even created.
	entries, err := collect(sources)
	if err != nil {
		return err
	}

	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf(`create archive "%s" error: %w`, name, err)
	}

	if err = writeEntries(ctx, f, entries, opts); err == nil {
		err = f.Close()
	} else {
		_ = f.Close()
	}
	if err != nil {
		_ = os.Remove(name)
		return fmt.Errorf(`write archive "%s" error: %w`, name, err)
	}

	return nil
}

// zipJob carries one entry through the compression pool to the serial writer.
type zipJob struct {
	e    entry
	fh   *zipfile.FileHeader
	data []byte
	err  error
	done chan struct{}
}

// writeEntries compresses entry payloads on a bounded pool and writes them to dst strictly in collection order.
//
// The jobs channel buffer bounds how many compressed payloads can sit in memory ahead of the writer.
func writeEntries(ctx context.Context, dst io.Writer, entries []entry, opts *ZipOptions) error {
	ex := executor.New(opts.MaxConcurrency)

	// the submitter must be told to stop and must have stopped before the executor can be closed, otherwise an
	// early writer error races a task submission against Close.
	stop := make(chan struct{})
	submitterDone := make(chan struct{})
	defer func() {
		close(stop)
		<-submitterDone
		_ = ex.Close()
	}()

	jobs := make(chan *zipJob, opts.MaxConcurrency)
	go func() {
		defer close(jobs)
		defer close(submitterDone)

		for _, e := range entries {
			j := &zipJob{e: e, done: make(chan struct{})}

			select {
			case jobs <- j:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}

			ex.Execute(func() {
				defer close(j.done)
				j.run(ctx, opts.Method)
			})
		}
	}()

	w := zipfile.NewWriter(dst)
	for j := range jobs {
		<-j.done
		if j.err != nil {
			return j.err
		}

		if j.e.dir {
			if err := w.CreateDir(j.fh); err != nil {
				return err
			}
		} else if err := w.CreateRaw(j.fh, j.data); err != nil {
			return err
		}

		if pr := opts.ProgressReporter; pr != nil {
			pr(j.fh.Name, int64(j.fh.UncompressedSize), true)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return w.Close()
}

// run builds the entry's file header and, for file entries, its compressed payload and CRC-32.
func (j *zipJob) run(ctx context.Context, method codec.Method) {
	fh := &zipfile.FileHeader{Name: j.e.name, Modified: j.e.modified}
	fh.SetMode(j.e.mode)
	j.fh = fh

	if j.e.dir {
		return
	}

	fh.Method = method
	c, err := codec.For(method)
	if err != nil {
		j.err = err
		return
	}

	src, err := os.Open(j.e.path)
	if err != nil {
		j.err = fmt.Errorf(`open file "%s" error: %w`, j.e.path, err)
		return
	}
	defer src.Close()

	var buf bytes.Buffer
	enc, err := c.NewEncoder(&buf)
	if err != nil {
		j.err = fmt.Errorf("create %s encoder error: %w", method, err)
		return
	}

	crc := crc32.NewIEEE()
	n, err := CopyBufferWithContext(ctx, io.MultiWriter(enc, crc), src, nil)
	if err != nil {
		_ = enc.Close()
		j.err = fmt.Errorf(`compress file "%s" error: %w`, j.e.path, err)
		return
	}
	if err = enc.Close(); err != nil {
		j.err = fmt.Errorf("close %s encoder error: %w", method, err)
		return
	}

	fh.CRC32 = crc.Sum32()
	fh.UncompressedSize = uint64(n)
	j.data = buf.Bytes()
}
