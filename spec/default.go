package spec

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"github.com/dnr/sizeclass/common"
)

//go:embed default.csv
var defaultTable []byte

// Default returns the built-in segmented allocator table.
func Default() []Spec {
	rows, err := ReadCSV(bytes.NewReader(defaultTable))
	if err != nil {
		panic(err)
	}
	return rows
}

// Load reads a spec table from a path or url, or returns Default() for an empty source.
func Load(ctx context.Context, src string) ([]Spec, error) {
	if src == "" {
		return Default(), nil
	}
	b, err := common.LoadFromFileOrHttpUrl(ctx, src)
	if err != nil {
		return nil, err
	}
	rows, err := ReadCSV(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return rows, nil
}
