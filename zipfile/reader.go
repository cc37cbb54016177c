package zipfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"

	"github.com/nguyengg/zipr/codec"
)

// Reader provides access to the entries of a ZIP archive.
type Reader struct {
	// File lists the archive's entries in central directory order.
	File []*File
	// Comment is the archive comment from the end of central directory record.
	Comment string

	r    io.ReaderAt
	size int64
}

// File provides access to one entry of an open archive.
type File struct {
	FileHeader

	r            io.ReaderAt
	size         int64
	headerOffset int64
}

// NewReader reads the archive structure from r, which must span size bytes.
//
// The end of central directory record is located by scanning backwards from the end, then the central directory it
// points at is read in full. The central directory is authoritative for entry metadata; an entry's local file
// header is only consulted by File.Open to locate its payload.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	if size < eocdFixedSize {
		return nil, ErrNoEOCD
	}

	rec, pos, err := findEOCD(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}

	// 0xffff and 0xffffffff are only ZIP64 markers when a ZIP64 locator precedes the record; without one they
	// are ordinary maximal values, e.g. an archive holding exactly 65535 entries.
	if rec.DiskNumber == uint16Max || rec.CDCount == uint16Max || rec.CDSize == uint32Max || rec.CDOffset == uint32Max {
		if hasZip64Locator(r, pos) {
			return nil, fmt.Errorf("%w: end of central directory record has ZIP64 markers", ErrZip64)
		}
	}
	if rec.DiskNumber != 0 || rec.CDDiskOffset != 0 || rec.CDCountOnDisk != rec.CDCount {
		return nil, fmt.Errorf("%w: multi-volume archives are not supported", ErrFormat)
	}

	cdOffset, cdSize := int64(rec.CDOffset), int64(rec.CDSize)
	if cdOffset+cdSize > size {
		return nil, fmt.Errorf("%w: central directory at offset %d with size %d extends past end of archive (%d bytes)", ErrFormat, cdOffset, cdSize, size)
	}

	z := &Reader{
		File:    make([]*File, 0, rec.CDCount),
		Comment: rec.Comment,
		r:       r,
		size:    size,
	}

	src := bufio.NewReader(io.NewSectionReader(r, cdOffset, cdSize))
	read := func(p []byte) (int, error) {
		return io.ReadFull(src, p)
	}

	var b [cdfhFixedSize]byte
	for i := 0; i < int(rec.CDCount); i++ {
		if _, err = io.ReadFull(src, b[:]); err != nil {
			return nil, fmt.Errorf("%w: read central directory record %d of %d: %v", ErrFormat, i+1, rec.CDCount, err)
		}

		fh, offset, err := unmarshalCDFileHeader(b, read)
		if err != nil {
			return nil, err
		}

		z.File = append(z.File, &File{FileHeader: fh, r: r, size: size, headerOffset: offset})
	}

	return z, nil
}

// hasZip64Locator reports whether a ZIP64 end of central directory locator sits immediately before the EOCD record
// found at eocdOffset.
func hasZip64Locator(r io.ReaderAt, eocdOffset int64) bool {
	if eocdOffset < zip64LocFixedSize {
		return false
	}

	var b [4]byte
	if _, err := r.ReadAt(b[:], eocdOffset-zip64LocFixedSize); err != nil {
		return false
	}

	return binary.LittleEndian.Uint32(b[:]) == zip64LocSig
}

// ReadCloser is a Reader that owns the underlying os.File.
type ReadCloser struct {
	f *os.File
	Reader
}

// OpenReader opens the ZIP archive specified by name and returns a ReadCloser.
func OpenReader(name string) (*ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	z, err := NewReader(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &ReadCloser{f: f, Reader: *z}, nil
}

// Close closes the underlying file.
func (rc *ReadCloser) Close() error {
	return rc.f.Close()
}

// Open returns an io.ReadCloser that yields the entry's uncompressed contents.
//
// The local file header is read first to locate the payload because its name and extra field lengths may
// legitimately differ from the central directory's. The contents are verified against the entry's
// UncompressedSize and CRC32 as they stream through; the read that reaches end of payload reports ErrFormat on a
// size mismatch or ErrChecksum on a CRC-32 mismatch.
func (f *File) Open() (io.ReadCloser, error) {
	var b [lfhFixedSize]byte
	if _, err := f.r.ReadAt(b[:], f.headerOffset); err != nil {
		return nil, fmt.Errorf("%w: read local file header of entry %q at offset %d: %v", ErrFormat, f.Name, f.headerOffset, err)
	}

	nameLen, extraLen, err := unmarshalLocalFileHeader(b)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", f.Name, err)
	}

	dataOffset := f.headerOffset + lfhFixedSize + int64(nameLen) + int64(extraLen)
	if dataOffset+int64(f.CompressedSize) > f.size {
		return nil, fmt.Errorf("%w: entry %q payload extends past end of archive", ErrFormat, f.Name)
	}

	c, err := codec.For(f.Method)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", f.Name, err)
	}

	dec, err := c.NewDecoder(io.NewSectionReader(f.r, dataOffset, int64(f.CompressedSize)))
	if err != nil {
		return nil, fmt.Errorf("entry %q: create %s decoder error: %w", f.Name, f.Method, err)
	}

	return &checksumReader{rc: dec, hash: crc32.NewIEEE(), f: f}, nil
}

// checksumReader verifies the uncompressed contents against the central directory metadata as they stream through.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	n    uint64
	f    *File
	err  error
}

func (r *checksumReader) Read(p []byte) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}

	n, err = r.rc.Read(p)
	r.hash.Write(p[:n])

	if r.n += uint64(n); r.n > r.f.UncompressedSize {
		err = fmt.Errorf("%w: entry %q yields more than the declared %d bytes", ErrFormat, r.f.Name, r.f.UncompressedSize)
	} else if errors.Is(err, io.EOF) {
		if r.n != r.f.UncompressedSize {
			err = fmt.Errorf("%w: entry %q yields %d bytes, declared %d", ErrFormat, r.f.Name, r.n, r.f.UncompressedSize)
		} else if r.hash.Sum32() != r.f.CRC32 {
			err = fmt.Errorf("%w: entry %q", ErrChecksum, r.f.Name)
		}
	}

	r.err = err
	return n, err
}

func (r *checksumReader) Close() error {
	return r.rc.Close()
}
