// Package zipfile implements the ZIP file format: serialising archive entries into the binary layout (local file
// headers, central directory, end-of-central-directory record) and parsing that layout back.
//
// The package supports the classic 32-bit format only. Archives or entries that require ZIP64 are rejected with
// ErrZip64 rather than written or read incorrectly.
package zipfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/nguyengg/zipr/codec"
)

const (
	lfhSig  = 0x04034b50
	cdfhSig = 0x02014b50
	eocdSig = 0x06054b50

	// zip64LocSig marks the ZIP64 end of central directory locator that sits immediately before the EOCD record
	// in a ZIP64 archive.
	zip64LocSig = 0x07064b50

	// fixed-size parts of each record, signature included.
	lfhFixedSize      = 30
	cdfhFixedSize     = 46
	eocdFixedSize     = 22
	zip64LocFixedSize = 20

	// creatorUnix is the "version made by" host system indicating Unix external attributes.
	creatorUnix = 3

	// flagUTF8 is general purpose bit 11, set when the file name is encoded in UTF-8.
	flagUTF8 = 0x800

	// msdosDir is the MS-DOS directory attribute in the low byte of the external attributes.
	msdosDir = 0x10

	// Unix file type bits stored in the high 16 bits of the external attributes.
	sIFDIR = 0x4000
	sIFREG = 0x8000

	uint16Max = 0xffff
	uint32Max = 0xffffffff
)

var (
	lfhSigBytes  = putUint32(lfhSig)
	cdfhSigBytes = putUint32(cdfhSig)
	eocdSigBytes = putUint32(eocdSig)
)

func putUint32(v uint32) (b []byte) {
	b = make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

var (
	// ErrFormat is returned when the archive's binary structure is malformed: mismatched signature, truncated
	// record, or inconsistent size/offset fields.
	ErrFormat = errors.New("invalid ZIP format")

	// ErrNoEOCD is returned when no end-of-central-directory signature was found.
	ErrNoEOCD = fmt.Errorf("%w: end of central directory not found; most likely not a ZIP file", ErrFormat)

	// ErrChecksum is returned when an entry's uncompressed contents fail CRC-32 verification.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrZip64 is returned for archives or entries that require ZIP64 support.
	ErrZip64 = errors.New("zip64 archives are not supported")
)

// FileHeader describes one file or directory entry within a ZIP archive.
type FileHeader struct {
	// Name is the archive-relative path of the entry.
	//
	// It must use forward slashes regardless of host conventions and must be relative: no leading slash and no
	// drive letter. Directory entries have a trailing slash and an empty payload.
	Name string

	// Flags holds the general purpose bit flags.
	Flags uint16

	// Method is the compression method of the entry payload.
	Method codec.Method

	// Modified is the modification time of the entry.
	//
	// The on-wire encoding is MS-DOS date/time with a 2-second resolution, so the value read back may differ from
	// the value written by up to 2 seconds.
	Modified time.Time

	// CRC32 is the IEEE CRC-32 checksum of the uncompressed contents.
	CRC32 uint32

	// CompressedSize and UncompressedSize are the payload byte counts.
	CompressedSize   uint64
	UncompressedSize uint64

	// ExternalAttrs encodes the Unix mode in its high 16 bits and MS-DOS attributes in its low byte.
	ExternalAttrs uint32
}

// IsDir reports whether the entry is a directory entry, indicated by a trailing slash in its name.
func (h *FileHeader) IsDir() bool {
	return strings.HasSuffix(h.Name, "/")
}

// Mode returns the POSIX permission bits recovered from the external attributes.
//
// If the high 16 bits carry no permission bits (archive was not made on Unix), the mode defaults to 0755 for
// directories and 0644 for files. Directory entries additionally have fs.ModeDir set.
func (h *FileHeader) Mode() fs.FileMode {
	mode := fs.FileMode(h.ExternalAttrs >> 16 & 0o777)
	if mode == 0 {
		if h.IsDir() {
			mode = 0o755
		} else {
			mode = 0o644
		}
	}

	if h.IsDir() {
		mode |= fs.ModeDir
	}

	return mode
}

// SetMode encodes the given file mode into the external attributes using the Unix convention: full Unix mode
// (file type and permission bits) in the high 16 bits, MS-DOS directory attribute in the low byte for directories.
func (h *FileHeader) SetMode(mode fs.FileMode) {
	m := uint32(mode.Perm())
	if mode.IsDir() {
		m |= sIFDIR
	} else {
		m |= sIFREG
	}

	h.ExternalAttrs = m << 16
	if mode.IsDir() {
		h.ExternalAttrs |= msdosDir
	}
}

// versionNeeded returns the "version needed to extract" for the given compression method per the ZIP specification.
func versionNeeded(m codec.Method) uint16 {
	switch m {
	case codec.Deflated:
		return 20
	case codec.BZip2:
		return 46
	case codec.Zstandard, codec.XZ:
		return 63
	default:
		return 10
	}
}

// hasNonASCII reports whether the name needs the UTF-8 flag.
func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return true
		}
	}

	return false
}
