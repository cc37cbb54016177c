package zipfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// EOCDRecord models the end of central directory record of a ZIP archive.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCDRecord struct {
	// DiskNumber is the number of this disk (or 0xffff for ZIP64).
	DiskNumber uint16
	// CDDiskOffset is the disk where the central directory starts (or 0xffff for ZIP64).
	CDDiskOffset uint16
	// CDCountOnDisk is the number of central directory records on this disk (or 0xffff for ZIP64).
	CDCountOnDisk uint16
	// CDCount is the total number of central directory records (or 0xffff for ZIP64).
	CDCount uint16
	// CDSize is the size in bytes of the central directory (or 0xffffffff for ZIP64).
	CDSize uint32
	// CDOffset is the offset of the start of the central directory, relative to start of archive (or 0xffffffff
	// for ZIP64).
	CDOffset uint32
	// Comment is the comment section of the EOCD.
	Comment string
}

// maxEOCDScan bounds the backward search. The record is 22 bytes plus a comment of at most 64 KiB so there is no
// point scanning further back than that.
const maxEOCDScan = eocdFixedSize + uint16Max

// findEOCD searches the given src backwards for the EOCD record, also returning the record's offset within src.
func findEOCD(src io.ReadSeeker) (r EOCDRecord, pos int64, err error) {
	var (
		// two buffers are used.
		// buf is the fixed-size read buffer to be used with src.
		// b is the variable-sized buffer that accumulates data from previous reads.
		// after each read, buf is prepended to b so that the signature search on b is easy.
		buf     = make([]byte, 16*1024)
		b       = make([]byte, 0)
		bufSize = int64(len(buf))
		offset  int64
	)

	// the first seek is only for the last 22 bytes so that we can get an accurate assessment of the file size
	// from the offset (size = offset + 22).
	if offset, err = src.Seek(-eocdFixedSize, io.SeekEnd); err != nil {
		return r, 0, fmt.Errorf("find EOCD: set read offset at %d from end error: %w", -eocdFixedSize, err)
	}

	// if the file is minuscule enough to fit in buf then just read all of it at once.
	if offset+eocdFixedSize < bufSize {
		if offset, err = src.Seek(0, io.SeekStart); err != nil {
			return r, 0, fmt.Errorf("find EOCD: set read offset at 0 from start error: %w", err)
		}
	} else if offset, err = src.Seek(-bufSize, io.SeekEnd); err != nil {
		return r, 0, fmt.Errorf("find EOCD: set read offset at %d from end error: %w", -bufSize, err)
	}

	for {
		switch n, err := io.ReadFull(src, buf); {
		case err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF):
			return r, 0, fmt.Errorf("find EOCD: read error: %w", err)
		default:
			b = append(make([]byte, n), b...)
			copy(b, buf[:n])

			if len(b) < eocdFixedSize {
				return r, 0, fmt.Errorf("%w: need at least %d bytes, got %d", ErrFormat, eocdFixedSize, len(b))
			}

			// only the freshly prepended bytes need searching, plus 3 in case the signature straddles
			// the boundary with the previous read. a candidate only counts if the full fixed-size
			// record fits and its comment length field does not run past end of file; a stray
			// signature inside an archive comment fails one of those checks and the search keeps
			// going backward. both rejections depend only on the distance to end of file, so a
			// rejected candidate never needs revisiting on later reads.
			for hi := min(n+3, len(b)); hi > 0; {
				i := bytes.LastIndex(b[:hi], eocdSigBytes)
				if i < 0 {
					break
				}
				hi = i + 3

				if i+eocdFixedSize > len(b) {
					continue
				}
				if commentLen := int(binary.LittleEndian.Uint16(b[i+eocdFixedSize-2 : i+eocdFixedSize])); i+eocdFixedSize+commentLen > len(b) {
					continue
				}

				if r, err = unmarshalEOCDRecord(([eocdFixedSize]byte)(b[i:i+eocdFixedSize]), func(c []byte) (int, error) {
					return copy(c, b[i+eocdFixedSize:]), nil
				}); err != nil {
					return r, 0, fmt.Errorf("find EOCD: %w", err)
				}

				return r, offset + int64(i), nil
			}
		}

		// if we're already at start of file or past the longest possible comment, stop reading.
		if offset == 0 || int64(len(b)) >= maxEOCDScan {
			return r, 0, ErrNoEOCD
		}

		// the trick is to make sure buf never overlaps data already in b by reducing buf size if needed.
		if offset < bufSize {
			buf = make([]byte, offset)
			offset = 0
		} else {
			offset -= bufSize
		}

		// move offset to prepare for next read.
		if offset, err = src.Seek(offset, io.SeekStart); err != nil {
			return r, 0, fmt.Errorf("find EOCD: set read offset at %d from start error: %w", offset, err)
		}
	}
}

// marshalEOCDRecord writes the end of central directory record. No comment is ever written.
func marshalEOCDRecord(w io.Writer, count uint16, cdSize, cdOffset uint32) error {
	if err := binary.Write(w, binary.LittleEndian, struct {
		Signature     uint32
		DiskNumber    uint16
		CDDiskOffset  uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}{
		Signature:     eocdSig,
		CDCountOnDisk: count,
		CDCount:       count,
		CDSize:        cdSize,
		CDOffset:      cdOffset,
	}); err != nil {
		return fmt.Errorf("marshal end of central directory record error: %w", err)
	}

	return nil
}

// unmarshalEOCDRecord decodes the 22-byte slice as an EOCDRecord.
// read will always be called to retrieve the variable-size comment. if there is no comment, read will be passed an
// empty slice.
func unmarshalEOCDRecord(b [eocdFixedSize]byte, read func(b []byte) (int, error)) (r EOCDRecord, err error) {
	data := &struct {
		Signature     uint32
		DiskNumber    uint16
		CDDiskOffset  uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}{}

	if !bytes.Equal(eocdSigBytes, b[:4]) {
		return r, fmt.Errorf("%w: mismatched signature, got 0x%x, expected 0x%x", ErrFormat, b[:4], eocdSigBytes)
	}

	if err = binary.Read(bytes.NewReader(b[:]), binary.LittleEndian, data); err != nil {
		return r, fmt.Errorf("%w: unmarshal error: %v", ErrFormat, err)
	}

	r = EOCDRecord{
		DiskNumber:    data.DiskNumber,
		CDDiskOffset:  data.CDDiskOffset,
		CDCountOnDisk: data.CDCountOnDisk,
		CDCount:       data.CDCount,
		CDSize:        data.CDSize,
		CDOffset:      data.CDOffset,
	}

	comment := make([]byte, data.CommentLength)
	switch readN, err := read(comment); {
	case err != nil && !errors.Is(err, io.EOF):
		return r, fmt.Errorf("%w: read comment error: %v", ErrFormat, err)
	case readN < int(data.CommentLength):
		return r, fmt.Errorf("%w: read comment error: needs at least %d bytes, got %d", ErrFormat, data.CommentLength, readN)
	default:
		r.Comment = string(comment)
	}

	return r, nil
}
