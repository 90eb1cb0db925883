// Package classmap builds the per-magnitude size-to-class table: a size is
// resolved with one magnitude lookup, one subtraction and one shift.
package classmap

import (
	"errors"
	"fmt"
	"math"

	"github.com/dnr/sizeclass/common"
	"github.com/dnr/sizeclass/common/shift"
	"github.com/dnr/sizeclass/spec"
)

const (
	// NumMagnitudes covers {0,1} plus (2^(m-1), 2^m] for m in 1..32.
	NumMagnitudes = shift.MaxSizeL2 + 1

	// MaxEntries bounds the concatenated table.
	MaxEntries = 1 << 20
)

var (
	ErrTooLarge       = errors.New("size exceeds the largest class")
	ErrTooManyClasses = errors.New("class ids do not fit in a byte")
	ErrTableTooLarge  = errors.New("classification table too large")
)

type Magnitude struct {
	MinSize    uint32 `json:"min_size"` // smallest size in the magnitude
	AlignMask  uint32 `json:"align_mask"`
	AlignShift uint8  `json:"align_shift"`
	StartIndex uint32 `json:"start_index"` // into ClassIDs
	Len        uint32 `json:"len"`
}

type Table struct {
	Magnitudes [NumMagnitudes]Magnitude
	ClassIDs   []uint8
}

// MagnitudeOf returns the magnitude index for size.
func MagnitudeOf(size uint64) (int, error) {
	if size <= 1 {
		return 0, nil
	}
	m, err := shift.CeilBits(size)
	if err != nil {
		return 0, fmt.Errorf("%w: %d", ErrTooLarge, size)
	}
	return m, nil
}

// bounds returns the exclusive lower and inclusive upper size of magnitude m,
// with magnitude 0 treated as (0, 1] plus size zero.
func bounds(m int) (lo, hi uint64) {
	if m == 0 {
		return 0, 1
	}
	return 1 << (m - 1), 1 << m
}

// alignShift finds the coarsest granularity at which no class capacity strictly
// inside (lo, hi) falls between two bucket bounds.
func alignShift(set spec.Set, m int) int {
	if m == 0 {
		return 1
	}
	lo, hi := bounds(m)
	a := m - 1
	for _, c := range set {
		if c.Size >= hi {
			break
		}
		if c.Size <= lo {
			continue
		}
		a = min(a, shift.MinBits(uint32(c.Size)))
	}
	return a
}

// Build computes the table for a normalized set. Class ids are set indexes.
func Build(set spec.Set) (*Table, error) {
	if len(set) == 0 || set[len(set)-1].Size < shift.MaxSize {
		return nil, fmt.Errorf("%w: set does not end in a %d byte class", ErrTooLarge, shift.MaxSize)
	}
	if len(set) > math.MaxUint8+1 {
		return nil, fmt.Errorf("%w: %d classes", ErrTooManyClasses, len(set))
	}

	t := &Table{}
	total := 0
	for m := range t.Magnitudes {
		lo, _ := bounds(m)
		a := alignShift(set, m)
		n := 1
		if m > 0 {
			n = 1 << (m - 1 - a)
		}
		total += n
		if total > MaxEntries {
			return nil, fmt.Errorf("%w: magnitude %d needs %d entries at alignment %d", ErrTableTooLarge, m, n, a)
		}
		mag := &t.Magnitudes[m]
		mag.AlignShift = common.TruncU8(a)
		mag.AlignMask = common.TruncU32(shift.Shift(a).Mask())
		mag.Len = uint32(n)
		if m > 0 {
			mag.MinSize = common.TruncU32(lo + 1)
		}
	}

	t.ClassIDs = make([]uint8, 0, total)
	cur := 0
	for m := range t.Magnitudes {
		mag := &t.Magnitudes[m]
		mag.StartIndex = uint32(len(t.ClassIDs))
		lo, hi := bounds(m)
		for i := uint64(0); i < uint64(mag.Len); i++ {
			ub := min(lo+(i+1)<<mag.AlignShift, hi)
			for set[cur].Size < ub {
				cur++
			}
			t.ClassIDs = append(t.ClassIDs, uint8(cur))
		}
	}
	return t, nil
}

// Lookup resolves size to a class id.
func (t *Table) Lookup(size uint64) (int, error) {
	m, err := MagnitudeOf(size)
	if err != nil {
		return 0, err
	}
	mag := &t.Magnitudes[m]
	idx := (size - uint64(mag.MinSize)) >> mag.AlignShift
	if idx >= uint64(mag.Len) {
		return 0, fmt.Errorf("size %d indexes past magnitude %d", size, m)
	}
	return int(t.ClassIDs[uint64(mag.StartIndex)+idx]), nil
}

// Check compares Lookup with a linear scan of set at every class boundary and
// every power of two, where a misplaced bucket edge would show.
func (t *Table) Check(set spec.Set) error {
	probe := func(size uint64) error {
		if size > shift.MaxSize {
			return nil
		}
		want, ok := set.Best(size)
		if !ok {
			return fmt.Errorf("%w: %d", ErrTooLarge, size)
		}
		got, err := t.Lookup(size)
		if err != nil {
			return err
		} else if got != want {
			return fmt.Errorf("size %d: table says class %d, scan says %d", size, got, want)
		}
		return nil
	}
	for _, c := range set {
		for _, s := range []uint64{c.Size - 1, c.Size, c.Size + 1} {
			if err := probe(s); err != nil {
				return common.WrapRow(c.Row, c.Algo.String(), err)
			}
		}
	}
	for k := 0; k <= shift.MaxSizeL2; k++ {
		p := uint64(1) << k
		for _, s := range []uint64{p - 1, p, p + 1} {
			if err := probe(s); err != nil {
				return err
			}
		}
	}
	return nil
}
