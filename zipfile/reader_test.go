package zipfile

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nguyengg/zipr/codec"
	"github.com/stretchr/testify/assert"
)

func readEntry(t *testing.T, f *File) ([]byte, error) {
	t.Helper()

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// writeSingleRaw builds a one-entry archive carrying exactly the metadata in fh, bypassing all bookkeeping that
// Create would do.
func writeSingleRaw(t *testing.T, fh *FileHeader, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.CreateRaw(fh, payload); err != nil {
		t.Fatalf("CreateRaw(%s) error = %v", fh.Name, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func TestOpenReader_StdlibWrittenArchive(t *testing.T) {
	name := filepath.Join(t.TempDir(), "stdlib.zip")
	f, err := os.Create(name)
	assert.NoErrorf(t, err, "Create(%s) error = %v", name, err)

	zw := zip.NewWriter(f)

	fh := &zip.FileHeader{Name: "docs/readme.md", Method: zip.Deflate, Modified: testModified}
	fh.SetMode(0o640)
	fw, err := zw.CreateHeader(fh)
	assert.NoErrorf(t, err, "CreateHeader(%s) error = %v", fh.Name, err)
	_, err = fw.Write([]byte("# zipr\n\na zip archiver\n"))
	assert.NoErrorf(t, err, "Write() error = %v", err)

	dh := &zip.FileHeader{Name: "docs/", Modified: testModified}
	dh.SetMode(fs.ModeDir | 0o750)
	_, err = zw.CreateHeader(dh)
	assert.NoErrorf(t, err, "CreateHeader(%s) error = %v", dh.Name, err)

	eh := &zip.FileHeader{Name: "empty.txt", Method: zip.Store, Modified: testModified}
	eh.SetMode(0o644)
	_, err = zw.CreateHeader(eh)
	assert.NoErrorf(t, err, "CreateHeader(%s) error = %v", eh.Name, err)

	assert.NoError(t, zw.Close())
	assert.NoError(t, f.Close())

	r, err := OpenReader(name)
	assert.NoErrorf(t, err, "OpenReader(%s) error = %v", name, err)
	defer r.Close()

	assert.Len(t, r.File, 3)

	byName := make(map[string]*File, len(r.File))
	for _, f := range r.File {
		byName[f.Name] = f
	}

	if f := byName["docs/readme.md"]; assert.NotNil(t, f) {
		got, err := readEntry(t, f)
		assert.NoErrorf(t, err, "read %s error = %v", f.Name, err)
		assert.Equal(t, "# zipr\n\na zip archiver\n", string(got))
		assert.Equal(t, codec.Deflated, f.Method)
		assert.Equal(t, fs.FileMode(0o640), f.Mode())
		assert.WithinDuration(t, testModified, f.Modified, 2*time.Second)
		assert.False(t, f.IsDir())
	}

	if d := byName["docs/"]; assert.NotNil(t, d) {
		assert.True(t, d.IsDir())
		assert.Equal(t, fs.ModeDir|0o750, d.Mode())
	}

	if f := byName["empty.txt"]; assert.NotNil(t, f) {
		got, err := readEntry(t, f)
		assert.NoErrorf(t, err, "read %s error = %v", f.Name, err)
		assert.Empty(t, got)
	}
}

func TestRoundTripAllMethods(t *testing.T) {
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)

	for _, m := range []codec.Method{codec.Stored, codec.Deflated, codec.BZip2, codec.Zstandard, codec.XZ} {
		t.Run(m.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf)

			fh := &FileHeader{Name: "data.bin", Method: m, Modified: testModified}
			fh.SetMode(0o644)
			err := w.Create(fh, bytes.NewReader(content))
			assert.NoErrorf(t, err, "Create(%s) error = %v", fh.Name, err)

			err = w.Close()
			assert.NoErrorf(t, err, "Close() error = %v", err)

			r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			assert.NoErrorf(t, err, "NewReader() error = %v", err)
			if !assert.Len(t, r.File, 1) {
				return
			}

			f := r.File[0]
			assert.Equal(t, m, f.Method)
			assert.Equal(t, uint64(len(content)), f.UncompressedSize)
			if m == codec.Stored {
				assert.Equal(t, f.UncompressedSize, f.CompressedSize)
			}

			got, err := readEntry(t, f)
			assert.NoErrorf(t, err, "read %s error = %v", f.Name, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestNewReader_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	assert.Empty(t, r.File)
}

func TestNewReader_Garbage(t *testing.T) {
	b := bytes.Repeat([]byte("certainly not a zip file. "), 100)
	_, err := NewReader(bytes.NewReader(b), int64(len(b)))
	assert.ErrorIs(t, err, ErrNoEOCD)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewReader(bytes.NewReader([]byte("PK")), 2)
	assert.ErrorIs(t, err, ErrNoEOCD)
}

func TestNewReader_LongComment(t *testing.T) {
	// a comment longer than one read chunk forces the backward EOCD scan through several iterations.
	comment := strings.Repeat("zipr trailing comment ", 1200)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	assert.NoError(t, zw.SetComment(comment))

	fw, err := zw.Create("a.txt")
	assert.NoErrorf(t, err, "Create(%s) error = %v", "a.txt", err)
	_, err = fw.Write([]byte("hi"))
	assert.NoErrorf(t, err, "Write() error = %v", err)
	assert.NoError(t, zw.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	assert.Equal(t, comment, r.Comment)
	assert.Len(t, r.File, 1)
}

func TestNewReader_SignatureInComment(t *testing.T) {
	// signature bytes inside the archive comment, including right at the very end of the file, are not records;
	// the backward scan must skip them and land on the real one.
	comment := "PK\x05\x06 appears right away and again at the very end: PK\x05\x06"

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	assert.NoError(t, zw.SetComment(comment))

	fw, err := zw.Create("a.txt")
	assert.NoErrorf(t, err, "Create(%s) error = %v", "a.txt", err)
	_, err = fw.Write([]byte("hi"))
	assert.NoErrorf(t, err, "Write() error = %v", err)
	assert.NoError(t, zw.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	assert.Equal(t, comment, r.Comment)
	assert.Len(t, r.File, 1)
}

func TestNewReader_TruncatedSignatureAtEnd(t *testing.T) {
	// the EOCD signature with fewer than 22 bytes of file left after it cannot be a record.
	b := append(bytes.Repeat([]byte{'x'}, 40), eocdSigBytes...)
	_, err := NewReader(bytes.NewReader(b), int64(len(b)))
	assert.ErrorIs(t, err, ErrNoEOCD)
}

func TestReader_CorruptCRC(t *testing.T) {
	content := []byte("payload whose checksum will not match")
	b := writeSingleRaw(t, &FileHeader{
		Name:             "bad.bin",
		Method:           codec.Stored,
		Modified:         testModified,
		CRC32:            crc32.ChecksumIEEE(content) + 1,
		UncompressedSize: uint64(len(content)),
	}, content)

	r, err := NewReader(bytes.NewReader(b), int64(len(b)))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	if !assert.Len(t, r.File, 1) {
		return
	}

	_, err = readEntry(t, r.File[0])
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestReader_SizeMismatch(t *testing.T) {
	content := []byte("declared size is one byte longer than the payload")
	b := writeSingleRaw(t, &FileHeader{
		Name:             "short.bin",
		Method:           codec.Stored,
		Modified:         testModified,
		CRC32:            crc32.ChecksumIEEE(content),
		UncompressedSize: uint64(len(content)) + 1,
	}, content)

	r, err := NewReader(bytes.NewReader(b), int64(len(b)))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	if !assert.Len(t, r.File, 1) {
		return
	}

	_, err = readEntry(t, r.File[0])
	assert.ErrorIs(t, err, ErrFormat)
	assert.NotErrorIs(t, err, ErrChecksum)
}

func TestReader_Truncated(t *testing.T) {
	content := []byte("this archive is about to lose its tail")
	b := writeSingleRaw(t, &FileHeader{
		Name:             "a.txt",
		Method:           codec.Stored,
		Modified:         testModified,
		CRC32:            crc32.ChecksumIEEE(content),
		UncompressedSize: uint64(len(content)),
	}, content)

	// losing the tail loses the EOCD record.
	short := b[:len(b)-10]
	_, err := NewReader(bytes.NewReader(short), int64(len(short)))
	assert.ErrorIs(t, err, ErrNoEOCD)

	// cutting out part of the central directory while keeping the EOCD record makes the directory extend past
	// the end of the archive.
	i := bytes.Index(b, cdfhSigBytes)
	if !assert.NotEqual(t, -1, i) {
		return
	}
	cut := append([]byte{}, b[:i+10]...)
	cut = append(cut, b[len(b)-eocdFixedSize:]...)
	_, err = NewReader(bytes.NewReader(cut), int64(len(cut)))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestReader_Zip64MarkerRejected(t *testing.T) {
	content := []byte("pretend this entry needs zip64")
	b := writeSingleRaw(t, &FileHeader{
		Name:             "a.txt",
		Method:           codec.Stored,
		Modified:         testModified,
		CRC32:            crc32.ChecksumIEEE(content),
		UncompressedSize: uint64(len(content)),
	}, content)

	// the compressed size field sits 20 bytes into the central directory record.
	i := bytes.Index(b, cdfhSigBytes)
	if !assert.NotEqual(t, -1, i) {
		return
	}
	binary.LittleEndian.PutUint32(b[i+20:], uint32Max)

	_, err := NewReader(bytes.NewReader(b), int64(len(b)))
	assert.ErrorIs(t, err, ErrZip64)
}

func TestNewReader_MaxEntries(t *testing.T) {
	// exactly 65535 entries is still a classic archive; the count field holding 0xffff is not a ZIP64 marker on
	// its own.
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < uint16Max; i++ {
		fh := &FileHeader{Name: fmt.Sprintf("d/%05d", i), Method: codec.Stored, Modified: testModified}
		if err := w.CreateRaw(fh, nil); err != nil {
			t.Fatalf("CreateRaw(%s) error = %v", fh.Name, err)
		}
	}
	assert.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	assert.Len(t, r.File, uint16Max)
	assert.Equal(t, "d/00000", r.File[0].Name)
	assert.Equal(t, "d/65534", r.File[uint16Max-1].Name)
}

func TestNewReader_Zip64LocatorRejected(t *testing.T) {
	// a ZIP64 locator right before an EOCD record full of marker values identifies a real ZIP64 archive.
	var buf bytes.Buffer
	assert.NoError(t, binary.Write(&buf, binary.LittleEndian, struct {
		Signature  uint32
		DiskNumber uint32
		Offset     uint64
		TotalDisks uint32
	}{Signature: zip64LocSig, TotalDisks: 1}))
	assert.NoError(t, binary.Write(&buf, binary.LittleEndian, struct {
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
		DiskNumber:    uint16Max,
		CDDiskOffset:  uint16Max,
		CDCountOnDisk: uint16Max,
		CDCount:       uint16Max,
		CDSize:        uint32Max,
		CDOffset:      uint32Max,
	}))

	_, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.ErrorIs(t, err, ErrZip64)
}

func TestReader_UnsupportedMethod(t *testing.T) {
	content := []byte("compressed with something exotic")
	b := writeSingleRaw(t, &FileHeader{
		Name:             "exotic.bin",
		Method:           codec.Method(14),
		Modified:         testModified,
		CRC32:            crc32.ChecksumIEEE(content),
		UncompressedSize: uint64(len(content)),
	}, content)

	r, err := NewReader(bytes.NewReader(b), int64(len(b)))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	if !assert.Len(t, r.File, 1) {
		return
	}

	_, err = r.File[0].Open()
	assert.ErrorIs(t, err, codec.ErrUnsupported)
}

func TestReader_PayloadOffsetFromLocalHeader(t *testing.T) {
	// craft an archive whose local file header carries an extra field that the central directory record does
	// not, so the payload can only be located by reading the local header.
	content := []byte("local header extra field must be honoured")

	var buf bytes.Buffer
	err := binary.Write(&buf, binary.LittleEndian, struct {
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
		ReaderVersion:    10,
		CRC32:            crc32.ChecksumIEEE(content),
		CompressedSize:   uint32(len(content)),
		UncompressedSize: uint32(len(content)),
		FileNameLength:   uint16(len("a.txt")),
		ExtraFieldLength: 4,
	})
	assert.NoErrorf(t, err, "binary.Write() error = %v", err)
	buf.WriteString("a.txt")
	buf.Write([]byte{0x99, 0x99, 0x00, 0x00}) // 4-byte extra field: id 0x9999, length 0
	buf.Write(content)

	cdOffset := buf.Len()
	err = marshalCDFileHeader(&buf, &FileHeader{
		Name:             "a.txt",
		Method:           codec.Stored,
		Modified:         testModified,
		CRC32:            crc32.ChecksumIEEE(content),
		CompressedSize:   uint64(len(content)),
		UncompressedSize: uint64(len(content)),
	}, 0)
	assert.NoErrorf(t, err, "marshalCDFileHeader() error = %v", err)

	err = marshalEOCDRecord(&buf, 1, uint32(buf.Len()-cdOffset), uint32(cdOffset))
	assert.NoErrorf(t, err, "marshalEOCDRecord() error = %v", err)

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "NewReader() error = %v", err)
	if !assert.Len(t, r.File, 1) {
		return
	}

	got, err := readEntry(t, r.File[0])
	assert.NoErrorf(t, err, "read %s error = %v", "a.txt", err)
	assert.Equal(t, content, got)
}
