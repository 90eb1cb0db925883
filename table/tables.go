// Package table flattens a compiled result into the tables a runtime consumes
// and writes them out as Go source, JSON or a packed binary artifact.
package table

import (
	"fmt"

	"github.com/dnr/sizeclass"
	"github.com/dnr/sizeclass/classmap"
	"github.com/dnr/sizeclass/common"
	"github.com/dnr/sizeclass/layout"
	"github.com/dnr/sizeclass/spec"
)

type BlockRecord struct {
	Algo           uint8  `json:"algo"`
	Shift          uint8  `json:"shift"`
	BlockPerPageL2 uint8  `json:"block_per_page_l2"`
	Packing        uint32 `json:"packing"`
	PageID         int32  `json:"page_id"` // -1 without a page
	BinID          int32  `json:"bin_id"`
	Size           uint64 `json:"size"`
}

type PageRecord struct {
	Algo        uint8  `json:"algo"`
	Shift       uint8  `json:"shift"`
	Packing     uint32 `json:"packing"`
	BinID       int32  `json:"bin_id"`
	PagingStart uint32 `json:"paging_start"` // into PagingRefs
	PagingCount uint32 `json:"paging_count"`
}

type Paging struct {
	Offset uint32 `json:"offset"`
	Scale  uint32 `json:"scale"`
}

// Tables is the flat form of a Result. Every encoding carries exactly these fields.
type Tables struct {
	Blocks     []BlockRecord `json:"blocks"`
	Pages      []PageRecord  `json:"pages"`
	PagingRefs []uint32      `json:"paging_refs"`
	Pagings    []Paging      `json:"pagings"`
	BlockBins  []uint32      `json:"block_bins"`
	PageBins   []uint32      `json:"page_bins"`

	Magnitudes [classmap.NumMagnitudes]classmap.Magnitude `json:"magnitudes"`
	ClassIDs   []uint8                                    `json:"class_ids"`
	Grid       layout.Grid                                `json:"grid"`
}

func FromResult(res *sizeclass.Result) *Tables {
	m := res.Layout
	t := &Tables{
		Magnitudes: res.Classes.Magnitudes,
		ClassIDs:   res.Classes.ClassIDs,
		Grid:       res.Grid,
	}
	for _, b := range m.Blocks {
		rec := BlockRecord{
			Algo:    uint8(b.Algo),
			Shift:   common.TruncU8(b.Shift),
			Packing: b.Packing,
			PageID:  -1,
			BinID:   common.TruncI32(b.BinID),
			Size:    b.Size,
		}
		if b.Page != nil {
			rec.PageID = common.TruncI32(b.Page.ID)
			rec.BlockPerPageL2 = common.TruncU8(b.BlockPerPageL2)
		}
		t.Blocks = append(t.Blocks, rec)
	}
	for _, p := range m.Pages {
		t.Pages = append(t.Pages, PageRecord{
			Algo:        uint8(p.Algo),
			Shift:       common.TruncU8(p.Shift),
			Packing:     p.Packing,
			BinID:       common.TruncI32(p.BinID),
			PagingStart: common.TruncU32(len(t.PagingRefs)),
			PagingCount: common.TruncU32(len(p.PagingIDs)),
		})
		for _, id := range p.PagingIDs {
			t.PagingRefs = append(t.PagingRefs, common.TruncU32(id))
		}
	}
	for _, p := range m.Pagings {
		t.Pagings = append(t.Pagings, Paging{Offset: p.Offset, Scale: p.Scale})
	}
	for _, b := range m.BlockBins {
		t.BlockBins = append(t.BlockBins, common.TruncU32(b.ID))
	}
	for _, p := range m.PageBins {
		t.PageBins = append(t.PageBins, common.TruncU32(p.ID))
	}
	return t
}

// Classify resolves size to a block id using only the emitted tables.
func (t *Tables) Classify(size uint64) (int, error) {
	cm := classmap.Table{Magnitudes: t.Magnitudes, ClassIDs: t.ClassIDs}
	id, err := cm.Lookup(size)
	if err != nil {
		return 0, err
	} else if id >= len(t.Blocks) {
		return 0, fmt.Errorf("%w: class id %d out of range", ErrFormat, id)
	}
	return id, nil
}

// ClassifyTarget resolves a rounded size through the grid.
func (t *Tables) ClassifyTarget(tg layout.Target) (int, error) {
	id, ok := t.Grid.Lookup(tg)
	if !ok {
		return 0, fmt.Errorf("target %d<<%d is outside the grid", tg.Packing, tg.Shift)
	}
	return id, nil
}

// PagingsOf returns the paging descriptors of page id.
func (t *Tables) PagingsOf(page int) []Paging {
	p := t.Pages[page]
	out := make([]Paging, p.PagingCount)
	for i, ref := range t.PagingRefs[p.PagingStart : p.PagingStart+p.PagingCount] {
		out[i] = t.Pagings[ref]
	}
	return out
}

func (r BlockRecord) BlockSize() uint64 {
	if spec.Algo(r.Algo) == spec.UnitSpan {
		return 0
	}
	return uint64(r.Packing) << r.Shift
}

func (r PageRecord) PageSize() uint64 {
	return uint64(r.Packing) << r.Shift
}

// Describe renders one block class the way the generated source comments it.
func (r BlockRecord) Describe() string {
	algo := spec.Algo(r.Algo)
	switch algo {
	case spec.PnS1, spec.PnSn, spec.P1Sn:
		return fmt.Sprintf("%s %d bytes: %d x %d, %d per page, page %d",
			algo, r.Size, r.Packing, 1<<r.Shift, 1<<r.BlockPerPageL2, r.PageID)
	case spec.SubunitSpan:
		return fmt.Sprintf("%s %d bytes: %d x %d", algo, r.Size, r.Packing, 1<<r.Shift)
	case spec.UnitSpan:
		return fmt.Sprintf("%s %d bytes", algo, r.Size)
	default:
		return algo.String()
	}
}

func (r PageRecord) Describe() string {
	return fmt.Sprintf("%s page %d bytes: %d x %d", spec.Algo(r.Algo), r.PageSize(), r.Packing, 1<<r.Shift)
}
