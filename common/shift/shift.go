package shift

import "errors"

const (
	// MaxSizeL2 is the magnitude of the largest size the tables can classify.
	MaxSizeL2 = 32
	MaxSize   = uint64(1) << MaxSizeL2
)

// ErrNoMagnitude is returned when no power of two in [1, 2^32) bounds a value.
var ErrNoMagnitude = errors.New("value has no 32-bit magnitude")

// Shift is the base-2 logarithm of a byte granularity.
type Shift int

func (b Shift) Size() uint64 {
	return 1 << b
}

func (b Shift) Mask() uint64 {
	return b.Size() - 1
}

// Blocks returns how many units of this granularity are needed to hold i bytes.
func (b Shift) Blocks(i uint64) uint64 {
	return (i + b.Mask()) >> b
}

// MinBits returns the index of the lowest set bit of v. Zero has no set bit and maps to 0.
func MinBits(v uint32) int {
	for n := 0; n < 32; n++ {
		if v&(1<<n) != 0 {
			return n
		}
	}
	return 0
}

// MaxBits returns i such that 2^i <= v < 2^(i+1).
func MaxBits(v uint64) (int, error) {
	if v == 0 || v >= MaxSize {
		return 0, ErrNoMagnitude
	}
	n := 0
	for v>>(n+1) != 0 {
		n++
	}
	return n, nil
}

// CeilBits returns the smallest i such that v <= 2^i, for 1 <= v <= 2^32.
func CeilBits(v uint64) (int, error) {
	if v == 0 || v > MaxSize {
		return 0, ErrNoMagnitude
	}
	if v == 1 {
		return 0, nil
	}
	n, err := MaxBits(v - 1)
	return n + 1, err
}
