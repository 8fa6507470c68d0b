package store

import (
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0, 1, -1, 0.5, math.Pi, -math.MaxFloat32, math.SmallestNonzeroFloat32}

	blob := EncodeVector(vec)
	if len(blob) != 4*len(vec) {
		t.Fatalf("expected %d bytes, got %d", 4*len(vec), len(blob))
	}

	got, err := DecodeVector(blob, len(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: expected %v, got %v", i, vec[i], got[i])
		}
	}
}

func TestVectorLittleEndianLayout(t *testing.T) {
	blob := EncodeVector([]float32{1.0})
	// float32(1.0) is 0x3f800000; little-endian puts the zero bytes first.
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	for i := range want {
		if blob[i] != want[i] {
			t.Fatalf("byte %d: expected %#x, got %#x", i, want[i], blob[i])
		}
	}
}

func TestDecodeVectorRejectsWrongLength(t *testing.T) {
	if _, err := DecodeVector(make([]byte, 10), 4); err == nil {
		t.Fatal("expected error for 10-byte blob with dim 4")
	}
	if _, err := DecodeVector(nil, 1); err == nil {
		t.Fatal("expected error for empty blob")
	}
}
