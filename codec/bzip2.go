package codec

import (
	"io"

	"github.com/dsnet/compress/bzip2"
)

// BZip2Codec implements Codec for the bzip2 compression method.
//
// The standard library only ships a bzip2 reader, so both directions go through github.com/dsnet/compress which has a
// matching writer.
type BZip2Codec struct{}

var _ Codec = BZip2Codec{}

func (c BZip2Codec) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(src, nil)
}

func (c BZip2Codec) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(dst, &bzip2.WriterConfig{Level: bzip2.BestCompression})
}
