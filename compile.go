// Package sizeclass compiles a list of size-class specs into the layout model,
// the shift/packing grid and the per-magnitude classification table.
package sizeclass

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dnr/sizeclass/classmap"
	"github.com/dnr/sizeclass/common/shift"
	"github.com/dnr/sizeclass/layout"
	"github.com/dnr/sizeclass/spec"
)

// Result is everything the emitters need. It is not modified after Compile returns.
type Result struct {
	Specs   spec.Set
	Layout  *layout.Model
	Grid    layout.Grid
	Classes *classmap.Table
}

// Compile normalizes rows and builds both lookup designs from the same set. The two
// builders run concurrently; each assigns its own ids from set order.
func Compile(ctx context.Context, rows []spec.Spec) (*Result, error) {
	set, err := spec.Normalize(rows)
	if err != nil {
		return nil, err
	}
	res := &Result{Specs: set}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		m, err := layout.Build(set)
		if err != nil {
			return err
		}
		g, err := layout.BuildGrid(m)
		if err != nil {
			return err
		}
		res.Layout, res.Grid = m, g
		return nil
	})
	eg.Go(func() error {
		t, err := classmap.Build(set)
		if err != nil {
			return err
		}
		res.Classes = t
		return ctx.Err()
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if err := res.crossCheck(); err != nil {
		return nil, err
	}
	if err := res.Classes.Check(set); err != nil {
		return nil, err
	}
	return res, nil
}

// crossCheck makes sure paged blocks tile their page exactly and that the grid and
// the classification table agree on every grid cell.
func (r *Result) crossCheck() error {
	if len(r.Layout.Blocks) != len(r.Specs) {
		return fmt.Errorf("layout has %d block classes for %d specs", len(r.Layout.Blocks), len(r.Specs))
	}
	for _, blk := range r.Layout.Blocks {
		if blk.Page != nil && blk.BlockSize()*blk.BlocksPerPage() != blk.Page.PageSize() {
			return fmt.Errorf("%w: block class %d does not tile page %d", layout.ErrGeometry, blk.ID, blk.Page.ID)
		}
	}
	for sh := 0; sh < layout.GridShifts; sh++ {
		for p := 0; p < layout.GridPackings; p++ {
			t := layout.Target{Packing: uint32(p*2 + 1), Shift: shift.Shift(sh)}
			id, err := r.Classes.Lookup(t.Value())
			if err != nil {
				return err
			}
			if int(r.Grid[sh][p]) != id {
				return fmt.Errorf("size %d: grid has class %d, classification table has %d", t.Value(), r.Grid[sh][p], id)
			}
		}
	}
	return nil
}

// Classify returns the block class for size through the classification table.
func (r *Result) Classify(size uint64) (*layout.BlockClass, error) {
	id, err := r.Classes.Lookup(size)
	if err != nil {
		return nil, err
	}
	return r.Layout.Blocks[id], nil
}

// ClassifyTarget returns the block class for a rounded size through the grid.
func (r *Result) ClassifyTarget(t layout.Target) (*layout.BlockClass, error) {
	id, ok := r.Grid.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("target %d<<%d is outside the grid", t.Packing, t.Shift)
	}
	return r.Layout.Blocks[id], nil
}
