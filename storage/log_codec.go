package storage

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// LogCompression selects the algorithm applied to serialized log records
// before they reach the log buffer.
type LogCompression uint8

const (
	LogCompressionNone   LogCompression = 0
	LogCompressionSnappy LogCompression = 1
	LogCompressionLZ4    LogCompression = 2
)

// String returns the configuration name of the algorithm.
func (c LogCompression) String() string {
	switch c {
	case LogCompressionNone:
		return "none"
	case LogCompressionSnappy:
		return "snappy"
	case LogCompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseLogCompression maps a configuration name to an algorithm.
func ParseLogCompression(name string) (LogCompression, error) {
	switch name {
	case "", "none":
		return LogCompressionNone, nil
	case "snappy":
		return LogCompressionSnappy, nil
	case "lz4":
		return LogCompressionLZ4, nil
	default:
		return LogCompressionNone, fmt.Errorf("unknown log compression algorithm: %q", name)
	}
}

// encodeLogBlob compresses a serialized record. Returns the payload and the
// algorithm actually used: incompressible records are stored raw, so a
// record never grows on the way to disk.
func encodeLogBlob(alg LogCompression, blob []byte) ([]byte, LogCompression, error) {
	switch alg {
	case LogCompressionNone:
		return blob, LogCompressionNone, nil

	case LogCompressionSnappy:
		compressed := snappy.Encode(nil, blob)
		if len(compressed) >= len(blob) {
			return blob, LogCompressionNone, nil
		}
		return compressed, LogCompressionSnappy, nil

	case LogCompressionLZ4:
		compressed := make([]byte, lz4.CompressBlockBound(len(blob)))
		n, err := lz4.CompressBlock(blob, compressed, nil)
		if err != nil {
			return nil, LogCompressionNone, fmt.Errorf("lz4 compression failed: %w", err)
		}
		// n == 0 means the block was incompressible
		if n == 0 || n >= len(blob) {
			return blob, LogCompressionNone, nil
		}
		return compressed[:n], LogCompressionLZ4, nil

	default:
		return nil, LogCompressionNone, fmt.Errorf("unsupported log compression: %d", alg)
	}
}

// decodeLogBlob reverses encodeLogBlob given the stored algorithm and the
// original size recorded in the frame header.
func decodeLogBlob(alg LogCompression, payload []byte, rawLen int) ([]byte, error) {
	switch alg {
	case LogCompressionNone:
		if len(payload) != rawLen {
			return nil, fmt.Errorf("raw log payload length mismatch: have %d, want %d", len(payload), rawLen)
		}
		return payload, nil

	case LogCompressionSnappy:
		blob, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("snappy decompression failed: %w", err)
		}
		if len(blob) != rawLen {
			return nil, fmt.Errorf("snappy log payload length mismatch: have %d, want %d", len(blob), rawLen)
		}
		return blob, nil

	case LogCompressionLZ4:
		blob := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, blob)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("lz4 log payload length mismatch: have %d, want %d", n, rawLen)
		}
		return blob, nil

	default:
		return nil, fmt.Errorf("unsupported log compression: %d", alg)
	}
}
