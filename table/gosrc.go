package table

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"text/template"

	"github.com/dnr/sizeclass/spec"
)

var goTmpl = template.Must(template.New("gosrc").Funcs(map[string]any{
	"chunk": chunk,
}).Parse(`// Code generated by sizeclass compile. DO NOT EDIT.

package {{.Package}}

import "math/bits"

const (
	AlgoPnS1  = {{.Algos.PnS1}}
	AlgoPnSn  = {{.Algos.PnSn}}
	AlgoP1Sn  = {{.Algos.P1Sn}}
	AlgoSunit = {{.Algos.SubunitSpan}}
	AlgoUnit  = {{.Algos.UnitSpan}}
)

type BlockClass struct {
	Algo           uint8
	Shift          uint8
	BlockPerPageL2 uint8
	Packing        uint32
	PageID         int32
	BinID          int32
	Size           uint64
}

type PageClass struct {
	Algo        uint8
	Shift       uint8
	Packing     uint32
	BinID       int32
	PagingStart uint32
	PagingCount uint32
}

type SegmentPaging struct {
	Offset uint32
	Scale  uint32
}

type Magnitude struct {
	MinSize    uint32
	AlignMask  uint32
	AlignShift uint8
	StartIndex uint32
}

var BlockClasses = [...]BlockClass{
{{- range $i, $b := .T.Blocks}}
	// {{$i}}: {{$b.Describe}}
	{Algo: {{$b.Algo}}, Shift: {{$b.Shift}}, BlockPerPageL2: {{$b.BlockPerPageL2}}, Packing: {{$b.Packing}}, PageID: {{$b.PageID}}, BinID: {{$b.BinID}}, Size: {{$b.Size}}},
{{- end}}
}

var PageClasses = [...]PageClass{
{{- range $i, $p := .T.Pages}}
	// {{$i}}: {{$p.Describe}}
	{Algo: {{$p.Algo}}, Shift: {{$p.Shift}}, Packing: {{$p.Packing}}, BinID: {{$p.BinID}}, PagingStart: {{$p.PagingStart}}, PagingCount: {{$p.PagingCount}}},
{{- end}}
}

var PagingRefs = [...]uint32{ {{- range .T.PagingRefs}}{{.}}, {{end -}} }

var SegmentPagings = [...]SegmentPaging{
{{- range $i, $p := .T.Pagings}}
	{ {{- $p.Offset}}, {{$p.Scale -}} }, // {{$i}}
{{- end}}
}

var BlockBins = [...]uint32{ {{- range .T.BlockBins}}{{.}}, {{end -}} }

var PageBins = [...]uint32{ {{- range .T.PageBins}}{{.}}, {{end -}} }

// Magnitudes is indexed by bits.Len64(size-1): entry 0 holds sizes 0 and 1, entry m
// holds (1<<(m-1), 1<<m]. These are {{len .T.Magnitudes}} exact-boundary magnitudes, not a 32-entry floor(log2) layout.
var Magnitudes = [{{len .T.Magnitudes}}]Magnitude{
{{- range $i, $m := .T.Magnitudes}}
	{ {{- $m.MinSize}}, {{printf "%#x" $m.AlignMask}}, {{$m.AlignShift}}, {{$m.StartIndex -}} }, // {{$i}}: {{$m.Len}} entries
{{- end}}
}

var ClassIDs = [...]uint8{
{{- range chunk .T.ClassIDs 16}}
	{{range .}}{{.}}, {{end}}
{{- end}}
}

var ShiftPackingGrid = [{{len .T.Grid}}][4]uint8{
{{- range $sh, $row := .T.Grid}}
	{ {{- range $row}}{{.}}, {{end -}} }, // shift {{$sh}}
{{- end}}
}

// SizeClass returns the index into BlockClasses of the smallest class holding size.
func SizeClass(size uint64) int {
	m := 0
	if size > 1 {
		m = bits.Len64(size - 1)
	}
	mag := &Magnitudes[m]
	return int(ClassIDs[mag.StartIndex+uint32((size-uint64(mag.MinSize))>>mag.AlignShift)])
}
`))

func chunk(b []uint8, n int) [][]uint8 {
	var out [][]uint8
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}

// GoSource renders the tables as a gofmt-ed Go file in package pkg.
func (t *Tables) GoSource(pkg string) ([]byte, error) {
	var b bytes.Buffer
	err := goTmpl.Execute(&b, map[string]any{
		"Package": pkg,
		"T":       t,
		"Algos": map[string]uint8{
			"PnS1":        uint8(spec.PnS1),
			"PnSn":        uint8(spec.PnSn),
			"P1Sn":        uint8(spec.P1Sn),
			"SubunitSpan": uint8(spec.SubunitSpan),
			"UnitSpan":    uint8(spec.UnitSpan),
		},
	})
	if err != nil {
		return nil, err
	}
	src, err := format.Source(b.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting generated source: %w", err)
	}
	return src, nil
}

func (t *Tables) WriteGo(out io.Writer, pkg string) error {
	src, err := t.GoSource(pkg)
	if err != nil {
		return err
	}
	_, err = out.Write(src)
	return err
}
