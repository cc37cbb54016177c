package zipfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nguyengg/zipr/codec"
)

// marshalLocalFileHeader writes the local file header for fh, including the variable-size file name that follows
// the fixed-size part. No extra field is ever written.
//
// The caller must have validated that the sizes fit in 32 bits.
func marshalLocalFileHeader(w io.Writer, fh *FileHeader) error {
	modDate, modTime := timeToMsDosTime(fh.Modified)

	if err := binary.Write(w, binary.LittleEndian, struct {
		Signature        uint32
		ReaderVersion    uint16
		Flags            uint16
		Method           uint16
		ModifiedTime     uint16
		ModifiedDate     uint16
		CRC32            uint32
		CompressedSize   uint32
		UncompressedSize uint32
		FileNameLength   uint16
		ExtraFieldLength uint16
	}{
		Signature:        lfhSig,
		ReaderVersion:    versionNeeded(fh.Method),
		Flags:            fh.Flags,
		Method:           uint16(fh.Method),
		ModifiedTime:     modTime,
		ModifiedDate:     modDate,
		CRC32:            fh.CRC32,
		CompressedSize:   uint32(fh.CompressedSize),
		UncompressedSize: uint32(fh.UncompressedSize),
		FileNameLength:   uint16(len(fh.Name)),
	}); err != nil {
		return fmt.Errorf("marshal local file header error: %w", err)
	}

	if _, err := io.WriteString(w, fh.Name); err != nil {
		return fmt.Errorf("write file name error: %w", err)
	}

	return nil
}

// unmarshalLocalFileHeader parses the fixed-size part of a local file header, returning the lengths of the
// variable-size file name and extra field that follow it. The central directory record is authoritative for all
// other metadata so only the signature is verified here.
func unmarshalLocalFileHeader(b [lfhFixedSize]byte) (nameLen, extraLen uint16, err error) {
	if !bytes.Equal(lfhSigBytes, b[:4]) {
		return 0, 0, fmt.Errorf("%w: mismatched local file header signature, got 0x%x, expected 0x%x", ErrFormat, b[:4], lfhSigBytes)
	}

	nameLen = binary.LittleEndian.Uint16(b[26:28])
	extraLen = binary.LittleEndian.Uint16(b[28:30])
	return
}

// marshalCDFileHeader writes the central directory record for fh whose local file header was written at the given
// offset. No extra field or comment is ever written.
func marshalCDFileHeader(w io.Writer, fh *FileHeader, offset uint64) error {
	modDate, modTime := timeToMsDosTime(fh.Modified)

	if err := binary.Write(w, binary.LittleEndian, struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		CommentLength     uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		LocalHeaderOffset uint32
	}{
		Signature:         cdfhSig,
		CreatorVersion:    creatorUnix<<8 | 20,
		ReaderVersion:     versionNeeded(fh.Method),
		Flags:             fh.Flags,
		Method:            uint16(fh.Method),
		ModifiedTime:      modTime,
		ModifiedDate:      modDate,
		CRC32:             fh.CRC32,
		CompressedSize:    uint32(fh.CompressedSize),
		UncompressedSize:  uint32(fh.UncompressedSize),
		FileNameLength:    uint16(len(fh.Name)),
		ExternalAttrs:     fh.ExternalAttrs,
		LocalHeaderOffset: uint32(offset),
	}); err != nil {
		return fmt.Errorf("marshal central directory record error: %w", err)
	}

	if _, err := io.WriteString(w, fh.Name); err != nil {
		return fmt.Errorf("write file name error: %w", err)
	}

	return nil
}

// unmarshalCDFileHeader parses one central directory record: the fixed-size part comes from b while read is used
// to consume the variable-size file name, extra field, and comment that follow. Extra field and comment are
// tolerated but discarded. offset is the position of the entry's local file header within the archive.
func unmarshalCDFileHeader(b [cdfhFixedSize]byte, read func(b []byte) (int, error)) (fh FileHeader, offset int64, err error) {
	if !bytes.Equal(cdfhSigBytes, b[:4]) {
		err = fmt.Errorf("%w: mismatched central directory signature, got 0x%x, expected 0x%x", ErrFormat, b[:4], cdfhSigBytes)
		return
	}

	data := struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		CommentLength     uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		LocalHeaderOffset uint32
	}{}
	if err = binary.Read(bytes.NewReader(b[:]), binary.LittleEndian, &data); err != nil {
		err = fmt.Errorf("%w: unmarshal central directory record: %v", ErrFormat, err)
		return
	}

	n, m := int(data.FileNameLength), int(data.ExtraFieldLength)
	nmk := make([]byte, n+m+int(data.CommentLength))
	if readN, readErr := read(nmk); readErr != nil {
		err = fmt.Errorf("%w: read central directory record: expected to read %d bytes, got %d: %v", ErrFormat, len(nmk), readN, readErr)
		return
	}

	if data.CompressedSize == uint32Max || data.UncompressedSize == uint32Max || data.LocalHeaderOffset == uint32Max {
		err = fmt.Errorf("%w: entry %q", ErrZip64, string(nmk[:n]))
		return
	}

	fh = FileHeader{
		Name:             string(nmk[:n]),
		Flags:            data.Flags,
		Method:           codec.Method(data.Method),
		Modified:         msDosTimeToTime(data.ModifiedDate, data.ModifiedTime),
		CRC32:            data.CRC32,
		CompressedSize:   uint64(data.CompressedSize),
		UncompressedSize: uint64(data.UncompressedSize),
		ExternalAttrs:    data.ExternalAttrs,
	}
	return fh, int64(data.LocalHeaderOffset), nil
}
