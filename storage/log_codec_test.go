package storage

import (
	"bytes"
	"testing"
)

func TestParseLogCompression(t *testing.T) {
	cases := map[string]LogCompression{
		"":       LogCompressionNone,
		"none":   LogCompressionNone,
		"snappy": LogCompressionSnappy,
		"lz4":    LogCompressionLZ4,
	}
	for name, want := range cases {
		got, err := ParseLogCompression(name)
		if err != nil {
			t.Errorf("ParseLogCompression(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLogCompression(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseLogCompression("zstd"); err == nil {
		t.Error("Expected error for unknown algorithm")
	}
}

func TestLogBlobRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("0123456789abcdef"), 256)

	for _, alg := range []LogCompression{LogCompressionNone, LogCompressionSnappy, LogCompressionLZ4} {
		t.Run(alg.String(), func(t *testing.T) {
			payload, used, err := encodeLogBlob(alg, compressible)
			if err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}
			if alg != LogCompressionNone {
				if used != alg {
					t.Errorf("Expected algorithm %v to be used, got %v", alg, used)
				}
				if len(payload) >= len(compressible) {
					t.Errorf("Repetitive blob did not shrink: %d -> %d", len(compressible), len(payload))
				}
			}

			decoded, err := decodeLogBlob(used, payload, len(compressible))
			if err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if !bytes.Equal(decoded, compressible) {
				t.Error("Round trip mismatch")
			}
		})
	}
}

func TestLogBlobIncompressibleFallsBack(t *testing.T) {
	// A short blob with no repetition; compression would only grow it
	blob := []byte{0x01, 0xA7, 0x3C, 0xE9, 0x52}

	for _, alg := range []LogCompression{LogCompressionSnappy, LogCompressionLZ4} {
		payload, used, err := encodeLogBlob(alg, blob)
		if err != nil {
			t.Fatalf("Failed to encode with %v: %v", alg, err)
		}
		if used != LogCompressionNone {
			t.Errorf("Expected fallback to none for %v, got %v", alg, used)
		}
		if !bytes.Equal(payload, blob) {
			t.Error("Fallback payload must be the raw blob")
		}
	}
}

func TestLogBlobDecodeLengthMismatch(t *testing.T) {
	if _, err := decodeLogBlob(LogCompressionNone, []byte{1, 2, 3}, 5); err == nil {
		t.Error("Expected error for raw length mismatch")
	}
	if _, err := decodeLogBlob(LogCompressionSnappy, []byte{0xFF, 0xFF}, 5); err == nil {
		t.Error("Expected error for corrupt snappy payload")
	}
}
