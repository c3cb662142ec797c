// internal/content/compression.go
package content

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstd frame magic, used to recognize compressed blobs on read.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// compressor handles zstd compression of blobs above a size threshold.
type compressor struct {
	minSize int

	encoders sync.Pool
	decoders sync.Pool
}

func newCompressor(minSize int) (*compressor, error) {
	if minSize == 0 {
		minSize = 1024 // 1KB
	}

	// Create encoder/decoder once for validation
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating test encoder: %w", err)
	}
	enc.Close()

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating test decoder: %w", err)
	}
	dec.Close()

	return &compressor{
		minSize: minSize,
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				return dec
			},
		},
	}, nil
}

// compress returns the bytes to store and whether they were compressed.
// Blobs below the threshold, or that do not shrink, are stored as-is.
func (c *compressor) compress(content []byte) ([]byte, bool, error) {
	if len(content) < c.minSize {
		return content, false, nil
	}

	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)

	compressed := enc.EncodeAll(content, nil)
	if len(compressed) >= len(content) {
		return content, false, nil
	}
	return compressed, true, nil
}

func (c *compressor) decompress(content []byte) ([]byte, error) {
	// Stored uncompressed despite the flag would be a metadata bug; the
	// magic check keeps reads safe either way.
	if len(content) < 4 || !bytes.Equal(content[:4], zstdMagic) {
		return content, nil
	}

	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	out, err := dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
