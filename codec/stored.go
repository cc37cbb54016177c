package codec

import (
	"io"
)

// StoredCodec implements Codec for the stored (no compression) method.
type StoredCodec struct{}

var _ Codec = StoredCodec{}

func (c StoredCodec) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

func (c StoredCodec) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
