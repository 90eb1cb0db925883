package spec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dnr/sizeclass/common"
)

const (
	colAlgo       = "algo"
	colSize       = "size"
	colBase       = "base"
	colPacking    = "packing"
	colPageLength = "page_length"
	colPageSize   = "page_size"
)

// ReadCSV parses a semicolon separated spec table with a header line.
// Rows with an empty algo column are skipped. Unknown columns are ignored.
func ReadCSV(r io.Reader) ([]Spec, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header", ErrBadRow)
	} else if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[colAlgo]; !ok {
		return nil, fmt.Errorf("%w: header has no %q column", ErrBadRow, colAlgo)
	}

	var out []Spec
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		} else if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		field := func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		algoName := field(colAlgo)
		if algoName == "" {
			continue
		}
		s, err := parseRow(line, algoName, field)
		if err != nil {
			return nil, common.WrapRow(line, algoName, err)
		}
		out = append(out, s)
	}
}

func parseRow(line int, algoName string, field func(string) string) (Spec, error) {
	s := Spec{Row: line}
	var err error
	if s.Algo, err = ParseAlgo(algoName); err != nil {
		return s, err
	}
	if s.Size, err = parseUint(colSize, field(colSize), math.MaxUint64); err != nil {
		return s, err
	}
	var v uint64
	if v, err = parseUint(colBase, field(colBase), math.MaxUint32); err != nil {
		return s, err
	}
	s.Base = uint32(v)
	if v, err = parseUint(colPacking, field(colPacking), math.MaxUint32); err != nil {
		return s, err
	}
	s.Packing = uint32(v)
	if v, err = parseUint(colPageLength, field(colPageLength), math.MaxUint32); err != nil {
		return s, err
	}
	s.PageLength = uint32(v)

	blockSize := uint64(s.Base) * uint64(s.Packing)
	if s.Size == 0 {
		s.Size = blockSize
	}
	if s.PageLength == 0 {
		pageSize, err := parseUint(colPageSize, field(colPageSize), math.MaxUint64)
		if err != nil {
			return s, err
		}
		if pageSize != 0 {
			if blockSize == 0 || pageSize%blockSize != 0 || pageSize/blockSize > math.MaxUint32 {
				return s, fmt.Errorf("%w: page_size %d is not a multiple of block size %d", ErrBadRow, pageSize, blockSize)
			}
			s.PageLength = uint32(pageSize / blockSize)
		}
	}
	return s, nil
}

func parseUint(name, v string, max uint64) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil || n > max {
		return 0, fmt.Errorf("%w: column %s: bad integer %q", ErrBadRow, name, v)
	}
	return n, nil
}
