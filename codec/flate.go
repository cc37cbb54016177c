package codec

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// FlateCodec implements Codec for the DEFLATE compression method.
type FlateCodec struct{}

var _ Codec = FlateCodec{}

func (c FlateCodec) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

func (c FlateCodec) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(dst, flate.BestCompression)
}
