package zipfile

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"github.com/nguyengg/zipr/codec"
)

// countWriter tracks how many bytes have been written so that record offsets are known without seeking.
type countWriter struct {
	w io.Writer
	n uint64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

// Writer writes a ZIP archive to a stream.
//
// Entries appear in the order the Create methods are called: each call appends a local file header followed by the
// entry payload. Close then appends the central directory and the end of central directory record. Because every
// payload is sized before its header is written, the archive never uses data descriptors, and identical inputs
// always produce byte-identical archives.
type Writer struct {
	cw     *countWriter
	dir    []*header
	closed bool
}

type header struct {
	*FileHeader
	offset uint64
}

// NewWriter returns a Writer that writes a ZIP archive to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: &countWriter{w: w}}
}

// CreateRaw appends an entry whose payload has already been compressed with fh.Method.
//
// fh.CRC32 and fh.UncompressedSize must describe the original uncompressed contents; fh.CompressedSize is set to
// len(compressed). The file name is not validated so callers are responsible for producing relative,
// forward-slash-separated names.
func (w *Writer) CreateRaw(fh *FileHeader, compressed []byte) error {
	if w.closed {
		return errors.New("zip writer is closed")
	}

	if len(fh.Name) > uint16Max {
		return fmt.Errorf("file name too long: %d bytes", len(fh.Name))
	}

	fh.CompressedSize = uint64(len(compressed))
	if fh.CompressedSize > uint32Max || fh.UncompressedSize > uint32Max {
		return fmt.Errorf("%w: entry %q exceeds 4 GiB", ErrZip64, fh.Name)
	}

	offset := w.cw.n
	if offset > uint32Max {
		return fmt.Errorf("%w: entry %q starts beyond 4 GiB", ErrZip64, fh.Name)
	}

	if hasNonASCII(fh.Name) {
		fh.Flags |= flagUTF8
	}

	if err := marshalLocalFileHeader(w.cw, fh); err != nil {
		return err
	}

	if _, err := w.cw.Write(compressed); err != nil {
		return fmt.Errorf("write entry payload error: %w", err)
	}

	w.dir = append(w.dir, &header{FileHeader: fh, offset: offset})
	return nil
}

// Create appends an entry by compressing the contents of r with fh.Method.
//
// The CRC-32 checksum and both sizes are computed here, overwriting whatever fh carries. The compressed payload is
// buffered in memory because its size must be known before the local file header can be written.
func (w *Writer) Create(fh *FileHeader, r io.Reader) error {
	c, err := codec.For(fh.Method)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc, err := c.NewEncoder(&buf)
	if err != nil {
		return fmt.Errorf("create %s encoder error: %w", fh.Method, err)
	}

	crc := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(enc, crc), r)
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("compress entry %q error: %w", fh.Name, err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("close %s encoder error: %w", fh.Method, err)
	}

	fh.CRC32 = crc.Sum32()
	fh.UncompressedSize = uint64(n)
	return w.CreateRaw(fh, buf.Bytes())
}

// CreateDir appends a directory entry.
//
// A trailing slash is added to fh.Name if missing. Directory entries have an empty payload and are always Stored.
func (w *Writer) CreateDir(fh *FileHeader) error {
	if !strings.HasSuffix(fh.Name, "/") {
		fh.Name += "/"
	}

	fh.Method = codec.Stored
	fh.CRC32, fh.UncompressedSize = 0, 0
	return w.CreateRaw(fh, nil)
}

// Close writes the central directory and the end of central directory record. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	if w.closed {
		return errors.New("zip writer is closed")
	}
	w.closed = true

	if len(w.dir) > uint16Max {
		return fmt.Errorf("%w: too many entries (%d)", ErrZip64, len(w.dir))
	}

	cdOffset := w.cw.n
	if cdOffset > uint32Max {
		return fmt.Errorf("%w: central directory starts beyond 4 GiB", ErrZip64)
	}

	for _, h := range w.dir {
		if err := marshalCDFileHeader(w.cw, h.FileHeader, h.offset); err != nil {
			return err
		}
	}

	cdSize := w.cw.n - cdOffset
	if cdSize > uint32Max {
		return fmt.Errorf("%w: central directory exceeds 4 GiB", ErrZip64)
	}

	return marshalEOCDRecord(w.cw, uint16(len(w.dir)), uint32(cdSize), uint32(cdOffset))
}
