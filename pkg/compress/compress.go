// Package compress adapts the supported compression codecs behind a uniform
// whole-buffer interface and recycles the expensive decompression contexts.
package compress

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/gregorycollins/riegeli/pkg/codec"
)

// Codec identifies a compression algorithm as stored in chunk payloads.
type Codec uint32

const (
	None   Codec = 0
	Brotli Codec = 'b'
	Zstd   Codec = 'z'
	Snappy Codec = 's'
)

// Known reports whether c is a defined codec value.
func Known(c Codec) bool {
	switch c {
	case None, Brotli, Zstd, Snappy:
		return true
	}
	return false
}

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Brotli:
		return "brotli"
	case Zstd:
		return "zstd"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// Decompress expands src with the given codec. sizeHint is the expected
// decoded size when the caller knows it; it pre-sizes buffers but is not
// enforced. An unknown codec or corrupt input is a DataLoss error.
func Decompress(c Codec, src []byte, sizeHint uint64) ([]byte, error) {
	switch c {
	case None:
		return src, nil
	case Zstd:
		dec, err := zstdDecoders.get()
		if err != nil {
			return nil, err
		}
		defer zstdDecoders.put(dec)
		dst := make([]byte, 0, sizeHint)
		out, err := dec.DecodeAll(src, dst)
		if err != nil {
			return nil, codec.Errorf(codec.DataLoss, "zstd decompression failed: %v", err)
		}
		return out, nil
	case Brotli:
		r := brotliReaders.get()
		defer brotliReaders.put(r)
		if err := r.Reset(bytes.NewReader(src)); err != nil {
			return nil, codec.Errorf(codec.Internal, "brotli reset failed: %v", err)
		}
		var buf bytes.Buffer
		buf.Grow(int(sizeHint))
		if _, err := io.Copy(&buf, r); err != nil {
			return nil, codec.Errorf(codec.DataLoss, "brotli decompression failed: %v", err)
		}
		return buf.Bytes(), nil
	case Snappy:
		out, err := snappy.Decode(nil, src)
		if err != nil {
			return nil, codec.Errorf(codec.DataLoss, "snappy decompression failed: %v", err)
		}
		return out, nil
	default:
		return nil, codec.Errorf(codec.DataLoss, "unknown compression type: %d", c)
	}
}

// Compress packs src with the given codec. The inverse of Decompress.
func Compress(c Codec, src []byte) ([]byte, error) {
	switch c {
	case None:
		return src, nil
	case Zstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, codec.Errorf(codec.Internal, "zstd encoder allocation failed: %v", err)
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	case Brotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Snappy:
		return snappy.Encode(nil, src), nil
	default:
		return nil, codec.Errorf(codec.DataLoss, "unknown compression type: %d", c)
	}
}
