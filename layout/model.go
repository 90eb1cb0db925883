// Package layout builds the block/page layout model: one block class per size
// class, page classes shared between blocks of the same shape, and the interned
// paging descriptors the runtime uses to locate pages.
package layout

import (
	"errors"
	"fmt"
	"math"

	"github.com/dnr/sizeclass/common"
	"github.com/dnr/sizeclass/common/shift"
	"github.com/dnr/sizeclass/spec"
)

const (
	// SegmentSpan is the address distance between the paging slots of a page group.
	SegmentSpan = 65536

	pns1PageLength = 64
)

var (
	ErrGeometry = errors.New("geometry assertion failed")
	ErrNoClass  = errors.New("no size class covers size")
)

// LayoutKey is the structural identity of a block or page layout.
type LayoutKey struct {
	Algo    spec.Algo
	Packing uint32
	Shift   shift.Shift
}

type (
	BlockClass struct {
		ID             int
		BinID          int // -1 if this class has no block bin
		Algo           spec.Algo
		Size           uint64 // capacity from the spec
		Packing        uint32
		Shift          shift.Shift
		BlockPerPageL2 int
		Page           *PageClass // nil for span classes
	}

	PageClass struct {
		ID        int
		BinID     int // -1 if this class has no page bin
		Algo      spec.Algo
		Packing   uint32
		Shift     shift.Shift
		PagingIDs []int
	}

	// Model is the finished, immutable result of Build.
	Model struct {
		Blocks    []*BlockClass
		BlockBins []*BlockClass
		Pages     []*PageClass
		PageBins  []*PageClass
		Pagings   []Paging // Pagings[0] is the {0,0} sentinel
	}

	builder struct {
		m       *Model
		pages   map[LayoutKey]*PageClass
		pagings map[Paging]int
	}
)

func (b *BlockClass) BlockSize() uint64 {
	if b.Algo == spec.UnitSpan {
		return 0
	}
	return uint64(b.Packing) << b.Shift
}

func (b *BlockClass) BlocksPerPage() uint64 {
	if b.Page == nil {
		return 0
	}
	return 1 << b.BlockPerPageL2
}

// LayoutKey ignores every field of unit spans: all unit spans share a layout.
func (b *BlockClass) LayoutKey() LayoutKey {
	if b.Algo == spec.UnitSpan {
		return LayoutKey{Algo: spec.UnitSpan}
	}
	return LayoutKey{Algo: b.Algo, Packing: b.Packing, Shift: b.Shift}
}

func (p *PageClass) PageSize() uint64 {
	return uint64(p.Packing) << p.Shift
}

func (p *PageClass) LayoutKey() LayoutKey {
	return LayoutKey{Algo: p.Algo, Packing: p.Packing, Shift: p.Shift}
}

// Build constructs the model for a normalized set. Block ids follow set order; page
// ids follow page creation order after sharing has settled.
func Build(set spec.Set) (*Model, error) {
	b := &builder{
		m:       &Model{Pagings: []Paging{{}}},
		pages:   make(map[LayoutKey]*PageClass),
		pagings: map[Paging]int{{}: 0},
	}
	for _, s := range set {
		blk, err := b.newBlock(s)
		if err != nil {
			return nil, common.WrapRow(s.Row, s.Algo.String(), err)
		}
		b.m.Blocks = append(b.m.Blocks, blk)
	}

	for i, blk := range b.m.Blocks {
		blk.ID = i
	}
	for _, blk := range b.m.Blocks {
		b.setupBlock(blk)
	}

	for i, pg := range b.m.Pages {
		pg.ID = i
	}
	for _, pg := range b.m.Pages {
		b.setupPage(pg)
	}
	return b.m, nil
}

func (b *builder) newBlock(s spec.Spec) (*BlockClass, error) {
	blk := &BlockClass{
		ID:    -1,
		BinID: -1,
		Algo:  s.Algo,
		Size:  s.Size,
	}
	if s.Algo == spec.UnitSpan {
		return blk, nil
	}

	blk.Packing = s.Packing
	blk.Shift = shift.Shift(shift.MinBits(s.Base))
	if blk.Packing == 0 {
		return nil, fmt.Errorf("%w: packing must be positive", ErrGeometry)
	}

	switch s.Algo {
	case spec.SubunitSpan:
		return blk, nil
	case spec.PnS1:
		if s.PageLength != pns1PageLength {
			return nil, fmt.Errorf("%w: PnS1 page_length is %d, want %d", ErrGeometry, s.PageLength, pns1PageLength)
		}
	case spec.PnSn, spec.P1Sn:
		if s.PageLength == 0 || s.PageLength&(s.PageLength-1) != 0 {
			return nil, fmt.Errorf("%w: page_length %d is not a power of two", ErrGeometry, s.PageLength)
		}
	default:
		return nil, spec.ErrUnknownAlgo
	}

	blk.BlockPerPageL2 = shift.MinBits(s.PageLength)
	pg, err := b.addPage(s.Algo, blk.Packing, blk.Shift+shift.Shift(blk.BlockPerPageL2))
	if err != nil {
		return nil, err
	}
	blk.Page = pg
	return blk, nil
}

// addPage returns the registered page with the same layout, or registers a new one.
// PnS1 pages are never shared.
func (b *builder) addPage(algo spec.Algo, packing uint32, sh shift.Shift) (*PageClass, error) {
	pg := &PageClass{ID: -1, BinID: -1, Algo: algo, Packing: packing, Shift: sh}
	if pg.Shift >= shift.MaxSizeL2 || pg.PageSize() > shift.MaxSize {
		return nil, fmt.Errorf("%w: page of %d << %d exceeds 4GiB", ErrGeometry, packing, sh)
	}
	if algo != spec.PnS1 && uint64(packing-1)*SegmentSpan > math.MaxUint32 {
		return nil, fmt.Errorf("%w: packing %d overflows paging offsets", ErrGeometry, packing)
	}

	key := pg.LayoutKey()
	if algo != spec.PnS1 {
		if existing, ok := b.pages[key]; ok {
			return existing, nil
		}
		b.pages[key] = pg
	}
	b.m.Pages = append(b.m.Pages, pg)
	return pg, nil
}

func (b *builder) setupBlock(blk *BlockClass) {
	switch blk.Algo {
	case spec.PnS1, spec.PnSn, spec.P1Sn:
		blk.BinID = len(b.m.BlockBins)
		b.m.BlockBins = append(b.m.BlockBins, blk)
	}
}

func (b *builder) setupPage(pg *PageClass) {
	if pg.Algo != spec.P1Sn {
		pg.BinID = len(b.m.PageBins)
		b.m.PageBins = append(b.m.PageBins, pg)
	}
	scale := Reciprocal(pg.PageSize())
	if pg.Algo == spec.PnS1 {
		pg.PagingIDs = []int{b.addPaging(Paging{Offset: 0, Scale: scale})}
		return
	}
	pg.PagingIDs = make([]int, pg.Packing)
	for i := range pg.PagingIDs {
		pg.PagingIDs[i] = b.addPaging(Paging{Offset: uint32(i) * SegmentSpan, Scale: scale})
	}
}

func (b *builder) addPaging(p Paging) int {
	if id, ok := b.pagings[p]; ok {
		return id
	}
	id := len(b.m.Pagings)
	b.pagings[p] = id
	b.m.Pagings = append(b.m.Pagings, p)
	return id
}

// BlockLayouts counts the distinct block layouts. Unit spans count once.
func (m *Model) BlockLayouts() int {
	seen := make(map[LayoutKey]struct{}, len(m.Blocks))
	for _, blk := range m.Blocks {
		seen[blk.LayoutKey()] = struct{}{}
	}
	return len(seen)
}

// Best returns the smallest block class whose capacity covers size.
func (m *Model) Best(size uint64) (*BlockClass, error) {
	for _, blk := range m.Blocks {
		if blk.Size >= size {
			return blk, nil
		}
	}
	return nil, fmt.Errorf("%w %d", ErrNoClass, size)
}
