package persist

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// Compression defines the compression algorithm to use
type Compression int

const (
	// NoCompression indicates no compression
	NoCompression Compression = iota
	// ZstdCompression indicates Zstandard compression
	ZstdCompression
)

var (
	// DefaultCompression is the default compression algorithm
	DefaultCompression = ZstdCompression

	// encoder and decoder for zstd are reusable and thread-safe
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// zstdMagic is the Zstandard frame header. Load paths sniff it so callers
// never have to say how a file was written.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func compress(data []byte, compression Compression) []byte {
	if compression == NoCompression {
		return data
	}
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	return zstdDecoder.DecodeAll(data, nil)
}
