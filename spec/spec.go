// Package spec holds the hand-curated list of size-class specifications that the
// compiler turns into tables.
package spec

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dnr/sizeclass/common"
	"github.com/dnr/sizeclass/common/shift"
)

// Algo selects how blocks of a size class are carved out of segments.
type Algo uint8

const (
	AlgoInvalid Algo = iota
	PnS1             // small blocks, n pages on one segment, 64 blocks per page
	PnSn             // medium blocks, n pages over n segments
	P1Sn             // medium blocks, one page over n segments
	SubunitSpan      // large blocks spanning part of a unit
	UnitSpan         // huge blocks spanning whole units
)

// UnitSize is the capacity of the synthetic catch-all class.
const UnitSize = shift.MaxSize

var (
	ErrUnknownAlgo = errors.New("unknown block algo")
	ErrBadRow      = errors.New("malformed spec row")
	ErrUnsorted    = errors.New("size classes must have distinct sizes")
	ErrEmptyClass  = errors.New("size class capacity must be positive")
)

var algoNames = map[Algo]string{
	PnS1:        "PnS1",
	PnSn:        "PnSn",
	P1Sn:        "P1Sn",
	SubunitSpan: "sunit",
	UnitSpan:    "unit",
}

func (a Algo) String() string {
	if n, ok := algoNames[a]; ok {
		return n
	}
	return fmt.Sprintf("algo(%d)", uint8(a))
}

// ParseAlgo accepts the short tags used in spec tables as well as the long names.
func ParseAlgo(s string) (Algo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pns1":
		return PnS1, nil
	case "pnsn":
		return PnSn, nil
	case "p1sn":
		return P1Sn, nil
	case "sunit", "subunitspan":
		return SubunitSpan, nil
	case "unit", "unitspan":
		return UnitSpan, nil
	}
	return AlgoInvalid, fmt.Errorf("%w %q", ErrUnknownAlgo, s)
}

// Paged reports whether blocks of this algo live in page classes.
func (a Algo) Paged() bool {
	return a == PnS1 || a == PnSn || a == P1Sn
}

type Spec struct {
	Row        int    // input line, 0 when synthetic
	Algo       Algo   // layout algorithm
	Size       uint64 // inclusive capacity
	Base       uint32 // per-block byte granularity
	Packing    uint32 // blocks sharing one page group
	PageLength uint32 // blocks per page
}

// Unit returns the synthetic class that terminates every set.
func Unit() Spec {
	return Spec{Algo: UnitSpan, Size: UnitSize}
}

// Set is a normalized spec list: sorted by size, strictly increasing, ending in Unit().
type Set []Spec

// Normalize sorts rows by size, appends the unit class and checks the ordering invariant.
// The input slice is not modified.
func Normalize(rows []Spec) (Set, error) {
	set := make(Set, 0, len(rows)+1)
	for _, r := range rows {
		if r.Algo == AlgoInvalid {
			return nil, common.WrapRow(r.Row, r.Algo.String(), ErrUnknownAlgo)
		}
		if r.Size == 0 {
			return nil, common.WrapRow(r.Row, r.Algo.String(), ErrEmptyClass)
		}
		set = append(set, r)
	}
	slices.SortStableFunc(set, func(a, b Spec) int {
		switch {
		case a.Size < b.Size:
			return -1
		case a.Size > b.Size:
			return 1
		}
		return 0
	})
	set = append(set, Unit())
	for i := 1; i < len(set); i++ {
		if set[i].Size <= set[i-1].Size {
			return nil, common.WrapRow(set[i].Row, set[i].Algo.String(),
				fmt.Errorf("%w: %d after %d (row %d)", ErrUnsorted, set[i].Size, set[i-1].Size, set[i-1].Row))
		}
	}
	return set, nil
}

// Best returns the index of the smallest class whose capacity covers size.
// It is the linear reference every lookup table must agree with.
func (s Set) Best(size uint64) (int, bool) {
	for i, c := range s {
		if c.Size >= size {
			return i, true
		}
	}
	return 0, false
}
