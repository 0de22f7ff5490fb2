package session

import (
	"errors"
	"fmt"
	"math/bits"
)

// DefaultBitmapBytes is the bitmap capacity in bytes (256 permission bits).
const DefaultBitmapBytes = 32

// ErrCapacityExceeded reports a bit position beyond the bitmap capacity.
var ErrCapacityExceeded = errors.New("session: bitmap capacity exceeded")

// Bitmap is a fixed-capacity permission presence bitmap.
type Bitmap struct {
	bytes []byte
}

// NewBitmap allocates a bitmap of size bytes.
func NewBitmap(size int) *Bitmap {
	if size <= 0 {
		size = DefaultBitmapBytes
	}
	return &Bitmap{bytes: make([]byte, size)}
}

// Set marks position. Positions outside the capacity return ErrCapacityExceeded.
func (b *Bitmap) Set(pos int) error {
	if pos < 0 || pos >= b.Capacity() {
		return fmt.Errorf("%w: position %d, capacity %d", ErrCapacityExceeded, pos, b.Capacity())
	}
	b.bytes[pos>>3] |= 1 << uint(pos&7)
	return nil
}

// Has reports whether position is set. Out-of-range positions are unset.
func (b *Bitmap) Has(pos int) bool {
	if b == nil || pos < 0 {
		return false
	}
	idx := pos >> 3
	if idx >= len(b.bytes) {
		return false
	}
	return b.bytes[idx]&(1<<uint(pos&7)) != 0
}

// Len returns the byte length.
func (b *Bitmap) Len() int {
	if b == nil {
		return 0
	}
	return len(b.bytes)
}

// Capacity returns the number of addressable bits.
func (b *Bitmap) Capacity() int {
	return b.Len() * 8
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, v := range b.bytes {
		n += bits.OnesCount8(v)
	}
	return n
}

// Bytes returns a copy of the raw bitmap.
func (b *Bitmap) Bytes() []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b.bytes...)
}
