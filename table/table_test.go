package table

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnr/sizeclass"
	"github.com/dnr/sizeclass/layout"
	"github.com/dnr/sizeclass/spec"
)

var scenario = []spec.Spec{
	{Row: 1, Algo: spec.PnS1, Size: 64, Base: 8, Packing: 1, PageLength: 64},
	{Row: 2, Algo: spec.PnSn, Size: 2048, Base: 1024, Packing: 2, PageLength: 2},
}

func compile(t *testing.T, rows []spec.Spec) (*sizeclass.Result, *Tables) {
	res, err := sizeclass.Compile(context.Background(), rows)
	require.NoError(t, err)
	return res, FromResult(res)
}

func TestFromResult(t *testing.T) {
	r := require.New(t)
	_, tab := compile(t, scenario)

	r.Equal([]BlockRecord{
		{Algo: uint8(spec.PnS1), Shift: 3, BlockPerPageL2: 6, Packing: 1, PageID: 0, BinID: 0, Size: 64},
		{Algo: uint8(spec.PnSn), Shift: 10, BlockPerPageL2: 1, Packing: 2, PageID: 1, BinID: 1, Size: 2048},
		{Algo: uint8(spec.UnitSpan), PageID: -1, BinID: -1, Size: 1 << 32},
	}, tab.Blocks)
	r.Equal([]PageRecord{
		{Algo: uint8(spec.PnS1), Shift: 9, Packing: 1, BinID: 0, PagingStart: 0, PagingCount: 1},
		{Algo: uint8(spec.PnSn), Shift: 11, Packing: 2, BinID: 1, PagingStart: 1, PagingCount: 2},
	}, tab.Pages)
	r.Equal([]uint32{1, 2, 3}, tab.PagingRefs)
	r.Equal([]uint32{0, 1}, tab.BlockBins)
	r.Equal([]uint32{0, 1}, tab.PageBins)
	r.Equal([]Paging{{0, 1048577}, {65536, 1048577}}, tab.PagingsOf(1))
	r.Equal(Paging{}, tab.Pagings[0])

	r.EqualValues(4096, tab.Pages[1].PageSize())
	r.EqualValues(2048, tab.Blocks[1].BlockSize())
	r.Equal("PnS1 64 bytes: 1 x 8, 64 per page, page 0", tab.Blocks[0].Describe())
	r.Equal("unit 4294967296 bytes", tab.Blocks[2].Describe())
	r.Equal("PnSn page 4096 bytes: 2 x 2048", tab.Pages[1].Describe())
}

func TestClassifyFromTables(t *testing.T) {
	r := require.New(t)
	res, tab := compile(t, spec.Default())
	for _, size := range []uint64{0, 1, 15, 16, 17, 900, 4096, 70000, 1 << 22, 1<<22 + 1, 1 << 31, 1 << 32} {
		want, err := res.Classify(size)
		r.NoError(err)
		got, err := tab.Classify(size)
		r.NoError(err)
		r.Equal(want.ID, got, "size %d", size)
	}
	_, err := tab.Classify(1<<32 + 1)
	r.Error(err)

	id, err := tab.ClassifyTarget(layout.TargetOf(1500))
	r.NoError(err)
	want, err := res.Classify(1536)
	r.NoError(err)
	r.Equal(want.ID, id)
	_, err = tab.ClassifyTarget(layout.TargetOf(1 << 28))
	r.Error(err)
}

func TestBinaryRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		r := require.New(t)
		_, tab := compile(t, spec.Default())

		var buf bytes.Buffer
		r.NoError(tab.WriteBinary(&buf, compress))
		r.Equal(compress, bytes.HasPrefix(buf.Bytes(), zstdMagic))

		back, err := ReadBinary(&buf)
		r.NoError(err)
		r.Equal(tab, back)
	}
}

func TestBinaryCorruption(t *testing.T) {
	r := require.New(t)
	_, tab := compile(t, scenario)
	data, err := tab.MarshalBinary()
	r.NoError(err)

	flipped := bytes.Clone(data)
	flipped[len(flipped)/2] ^= 0x40
	_, err = Decode(flipped)
	r.ErrorIs(err, ErrChecksum)

	_, err = Decode(data[:10])
	r.ErrorIs(err, ErrFormat)

	// valid footer over a bad header
	bad := bytes.Clone(data[:len(data)-footerSize])
	bad[0] ^= 1
	bad = binary.LittleEndian.AppendUint64(bad, xxhash.Sum64(bad))
	_, err = Decode(bad)
	r.ErrorIs(err, ErrFormat)

	// counts that disagree with the payload length
	short := bytes.Clone(data[:len(data)-footerSize-1])
	short = binary.LittleEndian.AppendUint64(short, xxhash.Sum64(short))
	_, err = Decode(short)
	r.ErrorIs(err, ErrFormat)

	_, err = ReadBinary(bytes.NewReader(append(bytes.Clone(zstdMagic), 1, 2, 3)))
	r.ErrorIs(err, ErrFormat)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Tables)
	}{
		{"page id below -1", func(t *Tables) { t.Blocks[0].PageID = -2 }},
		{"page id past end", func(t *Tables) { t.Blocks[0].PageID = 2 }},
		{"block does not tile page", func(t *Tables) { t.Blocks[1].BlockPerPageL2 = 2 }},
		{"block bin past end", func(t *Tables) { t.BlockBins[1] = 3 }},
		{"page bin past end", func(t *Tables) { t.PageBins[0] = 2 }},
		{"paging ref past end", func(t *Tables) { t.PagingRefs[2] = 9 }},
		{"class id past end", func(t *Tables) { t.ClassIDs[0] = 3 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			_, tab := compile(t, scenario)
			r.NoError(tab.validate())
			tc.mutate(tab)
			r.ErrorIs(tab.validate(), ErrFormat)

			var buf bytes.Buffer
			r.NoError(tab.WriteJSON(&buf))
			got, err := ReadJSON(&buf)
			r.ErrorIs(err, ErrFormat)
			r.Nil(got)

			data, err := tab.MarshalBinary()
			r.NoError(err)
			got, err = Decode(data)
			r.ErrorIs(err, ErrFormat)
			r.Nil(got)
		})
	}
}

func TestFingerprint(t *testing.T) {
	r := require.New(t)
	_, a := compile(t, spec.Default())
	_, b := compile(t, spec.Default())
	fa, err := a.Fingerprint()
	r.NoError(err)
	fb, err := b.Fingerprint()
	r.NoError(err)
	r.Equal(fa, fb)

	_, c := compile(t, scenario)
	fc, err := c.Fingerprint()
	r.NoError(err)
	r.NotEqual(fa, fc)
}

func TestGoSource(t *testing.T) {
	r := require.New(t)
	_, tab := compile(t, scenario)
	src, err := tab.GoSource("sizeclasses")
	r.NoError(err)

	_, err = parser.ParseFile(token.NewFileSet(), "tables.go", src, parser.ParseComments)
	r.NoError(err)

	s := string(src)
	assert.Contains(t, s, "package sizeclasses\n")
	assert.Contains(t, s, "// 0: PnS1 64 bytes: 1 x 8, 64 per page, page 0\n")
	assert.Contains(t, s, "// 1: PnSn page 4096 bytes: 2 x 2048\n")
	assert.Contains(t, s, "var PagingRefs = [...]uint32{1, 2, 3}\n")
	assert.Contains(t, s, "{65536, 1048577}, // 3\n")
	assert.Contains(t, s, "var ShiftPackingGrid = [24][4]uint8{")
	assert.Contains(t, s, "func SizeClass(size uint64) int {")
	assert.Contains(t, s, "These are 33 exact-boundary magnitudes, not a 32-entry floor(log2) layout.\n")
	assert.Contains(t, s, "var Magnitudes = [33]Magnitude{")
	assert.Equal(t, 1, strings.Count(s, "DO NOT EDIT"))
}

// TestGoSourceRuns compiles the generated file into a throwaway module and checks
// that its SizeClass agrees with the compiler on every class edge.
func TestGoSourceRuns(t *testing.T) {
	gobin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not on PATH")
	}
	r := require.New(t)
	res, tab := compile(t, spec.Default())
	src, err := tab.GoSource("main")
	r.NoError(err)

	sizes := []uint64{0, 1, 2, 1<<31 + 7, 1 << 32}
	for _, b := range res.Layout.Blocks {
		sizes = append(sizes, b.Size-1, b.Size)
		if b.Size < 1<<32 {
			sizes = append(sizes, b.Size+1)
		}
	}
	var args []string
	for _, size := range sizes {
		args = append(args, strconv.FormatUint(size, 10))
	}

	dir := t.TempDir()
	r.NoError(os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module gentest\n\ngo 1.21\n"), 0644))
	r.NoError(os.WriteFile(filepath.Join(dir, "tables.go"), src, 0644))
	r.NoError(os.WriteFile(filepath.Join(dir, "main.go"), []byte(`package main

import (
	"fmt"
	"os"
	"strconv"
)

func main() {
	for _, arg := range os.Args[1:] {
		size, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			panic(err)
		}
		fmt.Println(SizeClass(size))
	}
}
`), 0644))

	cmd := exec.Command(gobin, append([]string{"run", "."}, args...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off", "GOFLAGS=-mod=mod")
	out, err := cmd.Output()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		t.Logf("go run stderr:\n%s", ee.Stderr)
	}
	r.NoError(err)

	lines := strings.Fields(string(out))
	r.Len(lines, len(sizes))
	for i, size := range sizes {
		want, err := res.Classify(size)
		r.NoError(err)
		r.Equal(strconv.Itoa(want.ID), lines[i], "size %d", size)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r := require.New(t)
	_, tab := compile(t, scenario)
	var buf bytes.Buffer
	r.NoError(tab.WriteJSON(&buf))
	r.Contains(buf.String(), `"class_ids": [`)
	r.Contains(buf.String(), `"page_id": -1`)

	back, err := ReadJSON(&buf)
	r.NoError(err)
	r.Equal(tab, back)
}

func TestReport(t *testing.T) {
	r := require.New(t)
	_, tab := compile(t, spec.Default())
	var buf bytes.Buffer
	r.NoError(tab.WriteReport(&buf))
	out := buf.String()
	r.Contains(out, "Block classes: 74 (48 bins)")
	r.Contains(out, "Page classes: 25 (22 bins)")
	r.Contains(out, "   0  PnS1 16 bytes: 1 x 16, 64 per page, page 0\n")
	r.Contains(out, "   0  PnS1 page 1024 bytes: 1 x 1024, 1 pagings\n")
	r.Contains(out, "Artifact size: ")
}
