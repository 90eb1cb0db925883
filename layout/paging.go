package layout

import (
	"math"
	"math/bits"
)

// Paging lets the runtime turn an address into a page index with a multiply:
// index = ((addr - Offset) * Scale) >> 32.
type Paging struct {
	Offset uint32
	Scale  uint32
}

// Reciprocal encodes 1/pageSize as a 32-bit fraction, rounded up so that the
// multiply never lands one page short. Clamped for pageSize == 1.
func Reciprocal(pageSize uint64) uint32 {
	if pageSize == 0 {
		panic("reciprocal of empty page")
	}
	v := (uint64(1)<<32)/pageSize + 1
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func (p Paging) PageIndex(addr uint64) uint64 {
	hi, lo := bits.Mul64(addr-uint64(p.Offset), uint64(p.Scale))
	return hi<<32 | lo>>32
}
