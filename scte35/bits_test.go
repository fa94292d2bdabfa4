package scte35

import "testing"

func TestBitReaderSequentialReads(t *testing.T) {
	t.Parallel()
	r := newBitReader([]byte{0xAB, 0xCD, 0xEF})

	if got := r.readUint32(4); got != 0xA {
		t.Fatalf("nibble = 0x%X, want 0xA", got)
	}
	if got := r.readBit(); got != true {
		t.Fatalf("bit = %v, want true", got)
	}
	if got := r.readBit(); got != false {
		t.Fatalf("bit = %v, want false", got)
	}
	if got := r.readUint32(10); got != 0x3CD {
		t.Fatalf("10-bit field = 0x%X, want 0x3CD", got)
	}
	if got := r.readBytes(1); got[0] != 0xEF {
		t.Fatalf("trailing byte = 0x%02X, want 0xEF", got[0])
	}
	if r.bitsLeft() != 0 {
		t.Fatalf("bitsLeft = %d, want 0", r.bitsLeft())
	}
}

func TestBitReaderUint64WideField(t *testing.T) {
	t.Parallel()
	r := newBitReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x80})
	if got := r.readUint64(33); got != 0x1FFFFFFFF {
		t.Fatalf("readUint64(33) = 0x%X, want 0x1FFFFFFFF", got)
	}
}

func TestBitReaderSkip(t *testing.T) {
	t.Parallel()
	r := newBitReader([]byte{0xFF, 0x00, 0xAB})
	r.skip(16)
	if got := r.readUint32(8); got != 0xAB {
		t.Fatalf("after skip(16), readUint32(8) = 0x%02X, want 0xAB", got)
	}
}

func TestBitReaderOverflowPastEnd(t *testing.T) {
	t.Parallel()
	r := newBitReader([]byte{0xFF})
	r.skip(8)
	r.readBit()
	if !r.overflow {
		t.Fatal("reading past the buffer end should set overflow")
	}
}

func TestBitWriterMatchesReader(t *testing.T) {
	t.Parallel()
	w := newBitWriter(8)
	w.putUint32(8, 0xFC)
	w.putBit(false)
	w.putBit(true)
	w.putUint32(2, 1)
	w.putUint32(12, 0x123)
	w.putUint64(33, 900000)
	w.putUint32(7, 0)

	r := newBitReader(w.bytes())
	fields := []struct {
		name string
		bits int
		want uint64
	}{
		{"type", 8, 0xFC},
		{"flagA", 1, 0},
		{"flagB", 1, 1},
		{"twoBit", 2, 1},
		{"twelveBit", 12, 0x123},
	}
	for _, f := range fields {
		var got uint64
		if f.bits == 1 {
			if r.readBit() {
				got = 1
			}
		} else {
			got = uint64(r.readUint32(f.bits))
		}
		if got != f.want {
			t.Errorf("%s: got 0x%X, want 0x%X", f.name, got, f.want)
		}
	}
	if got := r.readUint64(33); got != 900000 {
		t.Errorf("pts field: got %d, want 900000", got)
	}
}

func TestBitWriterPutBytesInterleavedWithFields(t *testing.T) {
	t.Parallel()
	w := newBitWriter(4)
	w.putUint32(8, 0x01)
	w.putBytes([]byte{0x02, 0x03})
	w.putUint32(8, 0x04)

	want := []byte{0x01, 0x02, 0x03, 0x04}
	got := w.bytes()
	for i, b := range want {
		if got[i] != b {
			t.Errorf("byte %d = 0x%02X, want 0x%02X", i, got[i], b)
		}
	}
}
