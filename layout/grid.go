package layout

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/dnr/sizeclass/common/shift"
)

const (
	GridShifts   = 24
	GridPackings = 4 // packings 1, 3, 5, 7
)

// Grid maps a (shift, packing) target directly to a block class id.
type Grid [GridShifts][GridPackings]uint8

// Target is a size rounded up to packing << shift with an odd packing of at most 7.
type Target struct {
	Packing uint32
	Shift   shift.Shift
}

func (t Target) Value() uint64 {
	return uint64(t.Packing) << t.Shift
}

// TargetOf rounds size up to the nearest value with three significant bits.
func TargetOf(size uint64) Target {
	if size == 0 {
		return Target{}
	}
	var sh shift.Shift
	if size > 8 {
		sh = shift.Shift(bits.Len64(size) - 3)
	}
	base := sh.Blocks(size)
	for base&1 == 0 {
		sh++
		base >>= 1
	}
	return Target{Packing: uint32(base), Shift: sh}
}

// BuildGrid records, for every grid cell, the smallest block class covering it.
func BuildGrid(m *Model) (Grid, error) {
	var g Grid
	for sh := 0; sh < GridShifts; sh++ {
		for p := 0; p < GridPackings; p++ {
			t := Target{Packing: uint32(p*2 + 1), Shift: shift.Shift(sh)}
			blk, err := m.Best(t.Value())
			if err != nil {
				return g, err
			}
			if blk.ID > math.MaxUint8 {
				return g, fmt.Errorf("block class id %d does not fit the grid", blk.ID)
			}
			g[sh][p] = uint8(blk.ID)
		}
	}
	return g, nil
}

func (g *Grid) Lookup(t Target) (int, bool) {
	if t.Shift < 0 || t.Shift >= GridShifts || t.Packing > 7 || (t.Packing != 0 && t.Packing&1 == 0) {
		return 0, false
	}
	return int(g[t.Shift][t.Packing>>1]), true
}
