package zipfile

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/nguyengg/zipr/codec"
	"github.com/stretchr/testify/assert"
)

var testModified = time.Date(2024, 3, 15, 10, 30, 42, 0, time.UTC)

// readStdlibEntry decompresses one entry with archive/zip, which also verifies the CRC-32 on its own.
func readStdlibEntry(t *testing.T, f *zip.File) []byte {
	t.Helper()

	rc, err := f.Open()
	assert.NoErrorf(t, err, "Open(%s) error = %v", f.Name, err)

	b, err := io.ReadAll(rc)
	_ = rc.Close()
	assert.NoErrorf(t, err, "ReadAll(%s) error = %v", f.Name, err)
	return b
}

func TestWriter_StdlibReadsOutput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	fh := &FileHeader{Name: "a.txt", Method: codec.Deflated, Modified: testModified}
	fh.SetMode(0o644)
	err := w.Create(fh, strings.NewReader("hello world\n"))
	assert.NoErrorf(t, err, "Create(%s) error = %v", "a.txt", err)

	dir := &FileHeader{Name: "sub/", Modified: testModified}
	dir.SetMode(fs.ModeDir | 0o755)
	err = w.CreateDir(dir)
	assert.NoErrorf(t, err, "CreateDir(%s) error = %v", "sub/", err)

	stored := bytes.Repeat([]byte("zipr"), 256)
	fh = &FileHeader{Name: "sub/héllo.txt", Method: codec.Stored, Modified: testModified}
	fh.SetMode(0o600)
	err = w.Create(fh, bytes.NewReader(stored))
	assert.NoErrorf(t, err, "Create(%s) error = %v", "sub/héllo.txt", err)

	err = w.Close()
	assert.NoErrorf(t, err, "Close() error = %v", err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "zip.NewReader() error = %v", err)
	assert.Len(t, zr.File, 3)

	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}

	if f := byName["a.txt"]; assert.NotNil(t, f) {
		assert.Equal(t, "hello world\n", string(readStdlibEntry(t, f)))
		assert.Equal(t, zip.Deflate, f.Method)
		assert.Equal(t, fs.FileMode(0o644), f.Mode())
		assert.WithinDuration(t, testModified, f.Modified, 2*time.Second)
	}

	if d := byName["sub/"]; assert.NotNil(t, d) {
		assert.True(t, d.Mode().IsDir())
		assert.Equal(t, fs.FileMode(0o755), d.Mode().Perm())
	}

	if f := byName["sub/héllo.txt"]; assert.NotNil(t, f) {
		assert.Equal(t, stored, readStdlibEntry(t, f))
		assert.Equal(t, zip.Store, f.Method)
		assert.Equal(t, fs.FileMode(0o600), f.Mode())
	}
}

func TestWriter_Deterministic(t *testing.T) {
	write := func() []byte {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		for _, m := range []codec.Method{codec.Stored, codec.Deflated, codec.BZip2, codec.Zstandard, codec.XZ} {
			fh := &FileHeader{Name: m.String() + ".bin", Method: m, Modified: testModified}
			fh.SetMode(0o644)
			if err := w.Create(fh, bytes.NewReader(bytes.Repeat([]byte("deterministic output "), 512))); err != nil {
				t.Fatalf("Create(%s) error = %v", fh.Name, err)
			}
		}

		dir := &FileHeader{Name: "sub/", Modified: testModified}
		dir.SetMode(fs.ModeDir | 0o755)
		if err := w.CreateDir(dir); err != nil {
			t.Fatalf("CreateDir(%s) error = %v", dir.Name, err)
		}

		if err := w.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		return buf.Bytes()
	}

	assert.Equal(t, write(), write())
}

func TestWriter_Zip64Rejected(t *testing.T) {
	w := NewWriter(io.Discard)

	fh := &FileHeader{Name: "big.bin", Method: codec.Stored, UncompressedSize: 1 << 32}
	assert.ErrorIs(t, w.CreateRaw(fh, []byte("tiny")), ErrZip64)
}

func TestWriter_TooManyEntries(t *testing.T) {
	w := NewWriter(io.Discard)

	for i := 0; i <= uint16Max; i++ {
		if err := w.CreateRaw(&FileHeader{Name: "e", Method: codec.Stored}, nil); err != nil {
			t.Fatalf("CreateRaw() error = %v", err)
		}
	}

	assert.ErrorIs(t, w.Close(), ErrZip64)
}

func TestWriter_CreateAfterClose(t *testing.T) {
	w := NewWriter(io.Discard)
	assert.NoError(t, w.Close())
	assert.Error(t, w.CreateRaw(&FileHeader{Name: "late.txt", Method: codec.Stored}, nil))
	assert.Error(t, w.Close())
}
