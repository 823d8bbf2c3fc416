package object

import (
	"bytes"
	"testing"
)

func TestOfsDeltaDistanceRoundTrip(t *testing.T) {
	tests := []uint64{
		1, 2, 10, 127, 128, 255, 1024, 65535, 1 << 20, (1 << 31) + 17,
	}
	for _, want := range tests {
		enc := encodeOfsDeltaDistance(want)
		got, n, err := decodeOfsDeltaDistance(enc)
		if err != nil {
			t.Fatalf("decode distance %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("distance round-trip mismatch: got %d want %d", got, want)
		}
		if n != len(enc) {
			t.Fatalf("distance byte count mismatch: got %d want %d", n, len(enc))
		}
	}
}

func buildInsertOnlyDelta(base, target []byte) []byte {
	var out []byte
	out = append(out, encodeDeltaVarint(uint64(len(base)))...)
	out = append(out, encodeDeltaVarint(uint64(len(target)))...)
	for len(target) > 0 {
		n := len(target)
		if n > 127 {
			n = 127
		}
		out = append(out, byte(n))
		out = append(out, target[:n]...)
		target = target[n:]
	}
	return out
}

func TestApplyDeltaInsertOnly(t *testing.T) {
	base := []byte("hello world\n")
	target := []byte("hello there world\n")

	delta := buildInsertOnlyDelta(base, target)
	got, err := applyDelta(base, delta)
	if err != nil {
		t.Fatalf("applyDelta: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Fatalf("delta result mismatch: got %q want %q", got, target)
	}
}

func TestApplyDeltaCopyAndInsert(t *testing.T) {
	base := []byte("0123456789abcdef")

	var delta []byte
	delta = append(delta, encodeDeltaVarint(uint64(len(base)))...)
	target := base[2:6] // copy
	target = append(append([]byte{}, target...), []byte("XYZ")...)
	delta = append(delta, encodeDeltaVarint(uint64(len(target)))...)

	// copy instruction: offset=2 (1 byte), size=4 (1 byte)
	delta = append(delta, 0x80|0x01|0x10, 2, 4)
	// insert instruction: 3 literal bytes
	delta = append(delta, 3, 'X', 'Y', 'Z')

	got, err := applyDelta(base, delta)
	if err != nil {
		t.Fatalf("applyDelta: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Fatalf("delta result mismatch: got %q want %q", got, target)
	}
}

func TestApplyDeltaCopySizeZeroMeans65536(t *testing.T) {
	base := make([]byte, 70000)
	for i := range base {
		base[i] = byte(i)
	}

	var delta []byte
	delta = append(delta, encodeDeltaVarint(uint64(len(base)))...)
	delta = append(delta, encodeDeltaVarint(65536)...)
	// copy instruction: offset=0 (omitted bytes), size byte 0 present but zero
	delta = append(delta, 0x80|0x10, 0)

	got, err := applyDelta(base, delta)
	if err != nil {
		t.Fatalf("applyDelta: %v", err)
	}
	if len(got) != 65536 {
		t.Fatalf("expected 65536 bytes copied, got %d", len(got))
	}
	if !bytes.Equal(got, base[:65536]) {
		t.Fatalf("copied bytes mismatch")
	}
}

func TestApplyDeltaBaseSizeMismatch(t *testing.T) {
	base := []byte("short")
	var delta []byte
	delta = append(delta, encodeDeltaVarint(999)...)
	delta = append(delta, encodeDeltaVarint(0)...)

	if _, err := applyDelta(base, delta); err == nil {
		t.Fatalf("expected base size mismatch error")
	}
}

func TestApplyDeltaCopyOutOfBounds(t *testing.T) {
	base := []byte("0123456789")
	var delta []byte
	delta = append(delta, encodeDeltaVarint(uint64(len(base)))...)
	delta = append(delta, encodeDeltaVarint(20)...)
	// offset=5, size=20, runs past end of base
	delta = append(delta, 0x80|0x01|0x10, 5, 20)

	if _, err := applyDelta(base, delta); err == nil {
		t.Fatalf("expected out-of-bounds copy error")
	}
}
