// Package codec provides the compression codecs for the ZIP compression methods.
package codec

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Method identifies a ZIP compression method by its code in the ZIP format specification.
type Method uint16

const (
	// Stored is no compression; contents are written as-is.
	Stored Method = 0
	// Deflated is the DEFLATE compressed data format as described in RFC 1951.
	Deflated Method = 8
	// BZip2 is the bzip2 compression format.
	BZip2 Method = 12
	// Zstandard is the Zstandard compression format as described in RFC 8878.
	Zstandard Method = 93
	// XZ is the XZ compression format.
	XZ Method = 95
)

// Default is the compression method to use when the caller does not pick one.
const Default = Deflated

var (
	// ErrUnknownMethod is returned by ParseMethod for a compression method name it does not recognise.
	ErrUnknownMethod = errors.New("unknown compression method")

	// ErrUnsupported is returned by For if there is no codec for the given compression method code.
	ErrUnsupported = errors.New("unsupported compression method")
)

// Codec has methods to create compressor/encoder and decompressor/decoder.
type Codec interface {
	// NewDecoder creates a decoder to decompress contents from the given io.Reader.
	NewDecoder(src io.Reader) (io.ReadCloser, error)
	// NewEncoder creates an encoder to compress contents to the given io.Writer.
	NewEncoder(dst io.Writer) (io.WriteCloser, error)
}

// ParseMethod returns the Method for the given case-insensitive name.
//
// Valid names are "stored", "deflate" (alias "deflated"), "bzip2", "zstd", and "xz". The empty string selects Default.
// Any other name returns an error wrapping ErrUnknownMethod.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(name) {
	case "":
		return Default, nil
	case "stored":
		return Stored, nil
	case "deflate", "deflated":
		return Deflated, nil
	case "bzip2":
		return BZip2, nil
	case "zstd":
		return Zstandard, nil
	case "xz":
		return XZ, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
}

// String returns the canonical name of the compression method.
func (m Method) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflated:
		return "deflate"
	case BZip2:
		return "bzip2"
	case Zstandard:
		return "zstd"
	case XZ:
		return "xz"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// For returns the Codec for the given compression method.
//
// An error wrapping ErrUnsupported is returned if there is no codec for the method, which happens on archives created
// by tools using compression methods (LZMA, PPMd, etc.) that this package does not implement.
func For(m Method) (Codec, error) {
	switch m {
	case Stored:
		return StoredCodec{}, nil
	case Deflated:
		return FlateCodec{}, nil
	case BZip2:
		return BZip2Codec{}, nil
	case Zstandard:
		return ZstdCodec{}, nil
	case XZ:
		return XzCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnsupported, uint16(m))
	}
}
