package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReciprocal(t *testing.T) {
	r := require.New(t)
	r.EqualValues(1048577, Reciprocal(4096))
	r.EqualValues(52429, Reciprocal(81920))
	r.EqualValues(4194305, Reciprocal(1024))
	r.EqualValues(uint32(math.MaxUint32), Reciprocal(1))
	r.EqualValues(2147483649, Reciprocal(2))
	r.EqualValues(1, Reciprocal(1<<33))
	r.Panics(func() { Reciprocal(0) })
}

func TestPageIndex4096(t *testing.T) {
	r := require.New(t)
	p := Paging{Scale: Reciprocal(4096)}
	for addr, want := range map[uint64]uint64{0: 0, 4095: 0, 4096: 1, 8191: 1, 8192: 2} {
		r.Equal(want, p.PageIndex(addr), "addr %d", addr)
	}

	p.Offset = 65536
	r.EqualValues(0, p.PageIndex(65536))
	r.EqualValues(1, p.PageIndex(65536+4096))
}

func TestPageIndexNeverShort(t *testing.T) {
	for _, ps := range []uint64{512, 4096, 81920, 98304, 114688} {
		p := Paging{Scale: Reciprocal(ps)}
		// the upward bias is exact while it stays below one page
		limit := min(uint64(1)<<32/ps, 1<<20)
		for addr := uint64(0); addr < limit; addr++ {
			if got := p.PageIndex(addr); got != addr/ps {
				t.Fatalf("page size %d addr %d: got %d want %d", ps, addr, got, addr/ps)
			}
		}
	}
}
