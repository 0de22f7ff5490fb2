package session

import (
	"errors"
	"testing"
)

func TestBitmapSetHas(t *testing.T) {
	b := NewBitmap(2)
	if b.Capacity() != 16 || b.Len() != 2 {
		t.Fatalf("unexpected capacity %d len %d", b.Capacity(), b.Len())
	}
	for _, pos := range []int{0, 7, 8, 15} {
		if err := b.Set(pos); err != nil {
			t.Fatalf("set %d: %v", pos, err)
		}
	}
	for pos := 0; pos < 16; pos++ {
		want := pos == 0 || pos == 7 || pos == 8 || pos == 15
		if b.Has(pos) != want {
			t.Fatalf("position %d: expected %v", pos, want)
		}
	}
	if b.Count() != 4 {
		t.Fatalf("expected 4 bits, got %d", b.Count())
	}
	if b.Has(16) || b.Has(-1) || b.Has(1000) {
		t.Fatalf("out of range positions must read as unset")
	}
}

func TestBitmapCapacityExceeded(t *testing.T) {
	b := NewBitmap(1)
	err := b.Set(8)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if err := b.Set(-1); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for negative, got %v", err)
	}
	if b.Count() != 0 {
		t.Fatalf("failed set must not change bitmap")
	}
}

func TestBitmapDefaultsAndCopy(t *testing.T) {
	b := NewBitmap(0)
	if b.Len() != DefaultBitmapBytes {
		t.Fatalf("expected default size, got %d", b.Len())
	}
	_ = b.Set(3)
	raw := b.Bytes()
	raw[0] = 0
	if !b.Has(3) {
		t.Fatalf("Bytes must return a copy")
	}
	var nilBitmap *Bitmap
	if nilBitmap.Has(0) || nilBitmap.Len() != 0 || nilBitmap.Count() != 0 {
		t.Fatalf("nil bitmap must be empty")
	}
}
