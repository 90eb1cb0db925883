package table

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/lunixbochs/struc"

	"github.com/dnr/sizeclass/classmap"
	"github.com/dnr/sizeclass/common"
	"github.com/dnr/sizeclass/layout"
)

const (
	binMagic   = 0x5A53_4353 // "SCSZ"
	binVersion = 1

	footerSize = 8
)

var (
	ErrFormat   = errors.New("malformed table artifact")
	ErrChecksum = errors.New("table artifact checksum mismatch")

	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

type binHeader struct {
	Magic         uint32
	Version       uint32
	NumBlocks     uint32
	NumPages      uint32
	NumPagingRefs uint32
	NumPagings    uint32
	NumBlockBins  uint32
	NumPageBins   uint32
	NumClassIDs   uint32
}

type binMagnitude struct {
	MinSize    uint32
	AlignMask  uint32
	AlignShift uint8
	StartIndex uint32
	Len        uint32
}

var _popts = struc.Options{Order: binary.LittleEndian}

func pack(out io.Writer, v any) error {
	return struc.PackWithOptions(out, v, &_popts)
}

func unpack(in io.Reader, v any) error {
	return struc.UnpackWithOptions(in, v, &_popts)
}

func sizeof(v any) int {
	n, err := struc.SizeofWithOptions(v, &_popts)
	if err != nil {
		panic(err)
	}
	return n
}

// MarshalBinary packs the tables little-endian and appends an xxhash64 of everything before it.
func (t *Tables) MarshalBinary() ([]byte, error) {
	var b bytes.Buffer
	hdr := binHeader{
		Magic:         binMagic,
		Version:       binVersion,
		NumBlocks:     common.TruncU32(len(t.Blocks)),
		NumPages:      common.TruncU32(len(t.Pages)),
		NumPagingRefs: common.TruncU32(len(t.PagingRefs)),
		NumPagings:    common.TruncU32(len(t.Pagings)),
		NumBlockBins:  common.TruncU32(len(t.BlockBins)),
		NumPageBins:   common.TruncU32(len(t.PageBins)),
		NumClassIDs:   common.TruncU32(len(t.ClassIDs)),
	}
	if err := pack(&b, &hdr); err != nil {
		return nil, err
	}
	for i := range t.Blocks {
		if err := pack(&b, &t.Blocks[i]); err != nil {
			return nil, err
		}
	}
	for i := range t.Pages {
		if err := pack(&b, &t.Pages[i]); err != nil {
			return nil, err
		}
	}
	for i := range t.Pagings {
		if err := pack(&b, &t.Pagings[i]); err != nil {
			return nil, err
		}
	}
	for _, ids := range [][]uint32{t.PagingRefs, t.BlockBins, t.PageBins} {
		if err := binary.Write(&b, binary.LittleEndian, ids); err != nil {
			return nil, err
		}
	}
	for _, m := range t.Magnitudes {
		bm := binMagnitude(m)
		if err := pack(&b, &bm); err != nil {
			return nil, err
		}
	}
	b.Write(t.ClassIDs)
	for _, row := range t.Grid {
		b.Write(row[:])
	}
	b.Write(binary.LittleEndian.AppendUint64(nil, xxhash.Sum64(b.Bytes())))
	return b.Bytes(), nil
}

// WriteBinary writes the packed tables, optionally as a zstd frame.
func (t *Tables) WriteBinary(out io.Writer, compress bool) error {
	data, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	if !compress {
		_, err = out.Write(data)
		return err
	}
	zw, err := zstd.NewWriter(out)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Fingerprint identifies table contents independent of compression.
func (t *Tables) Fingerprint() (uint64, error) {
	data, err := t.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data[len(data)-footerSize:]), nil
}

// ReadBinary decodes an artifact written by WriteBinary. Compressed input is detected.
func ReadBinary(in io.Reader) (*Tables, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, zstdMagic) {
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		if data, err = zr.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}
	return Decode(data)
}

// Decode parses an uncompressed artifact and verifies its footer.
func Decode(data []byte) (*Tables, error) {
	if len(data) < sizeof(&binHeader{})+footerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrFormat, len(data))
	}
	body := data[:len(data)-footerSize]
	if sum := binary.LittleEndian.Uint64(data[len(body):]); sum != xxhash.Sum64(body) {
		return nil, fmt.Errorf("%w: stored %016x, computed %016x", ErrChecksum, sum, xxhash.Sum64(body))
	}

	r := bytes.NewReader(body)
	var hdr binHeader
	if err := unpack(r, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	} else if hdr.Magic != binMagic {
		return nil, fmt.Errorf("%w: bad magic %08x", ErrFormat, hdr.Magic)
	} else if hdr.Version != binVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrFormat, hdr.Version)
	}

	want := int64(hdr.NumBlocks)*int64(sizeof(&BlockRecord{})) +
		int64(hdr.NumPages)*int64(sizeof(&PageRecord{})) +
		int64(hdr.NumPagings)*int64(sizeof(&Paging{})) +
		4*(int64(hdr.NumPagingRefs)+int64(hdr.NumBlockBins)+int64(hdr.NumPageBins)) +
		classmap.NumMagnitudes*int64(sizeof(&binMagnitude{})) +
		int64(hdr.NumClassIDs) +
		layout.GridShifts*layout.GridPackings
	if want != int64(r.Len()) {
		return nil, fmt.Errorf("%w: header describes %d bytes of tables, have %d", ErrFormat, want, r.Len())
	}

	t := &Tables{
		Blocks:     make([]BlockRecord, hdr.NumBlocks),
		Pages:      make([]PageRecord, hdr.NumPages),
		Pagings:    make([]Paging, hdr.NumPagings),
		PagingRefs: make([]uint32, hdr.NumPagingRefs),
		BlockBins:  make([]uint32, hdr.NumBlockBins),
		PageBins:   make([]uint32, hdr.NumPageBins),
		ClassIDs:   make([]uint8, hdr.NumClassIDs),
	}
	for i := range t.Blocks {
		if err := unpack(r, &t.Blocks[i]); err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrFormat, i, err)
		}
	}
	for i := range t.Pages {
		if err := unpack(r, &t.Pages[i]); err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrFormat, i, err)
		}
	}
	for i := range t.Pagings {
		if err := unpack(r, &t.Pagings[i]); err != nil {
			return nil, fmt.Errorf("%w: paging %d: %v", ErrFormat, i, err)
		}
	}
	for _, ids := range [][]uint32{t.PagingRefs, t.BlockBins, t.PageBins} {
		if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}
	for i := range t.Magnitudes {
		var bm binMagnitude
		if err := unpack(r, &bm); err != nil {
			return nil, fmt.Errorf("%w: magnitude %d: %v", ErrFormat, i, err)
		}
		t.Magnitudes[i] = classmap.Magnitude(bm)
	}
	if _, err := io.ReadFull(r, t.ClassIDs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for i := range t.Grid {
		if _, err := io.ReadFull(r, t.Grid[i][:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// validate checks that every stored index points inside its table.
func (t *Tables) validate() error {
	for i, p := range t.Pages {
		if uint64(p.PagingStart)+uint64(p.PagingCount) > uint64(len(t.PagingRefs)) {
			return fmt.Errorf("%w: page %d paging refs out of range", ErrFormat, i)
		}
	}
	for _, ref := range t.PagingRefs {
		if int(ref) >= len(t.Pagings) {
			return fmt.Errorf("%w: paging ref %d out of range", ErrFormat, ref)
		}
	}
	for i, b := range t.Blocks {
		if b.PageID < -1 || int(b.PageID) >= len(t.Pages) {
			return fmt.Errorf("%w: block %d page %d out of range", ErrFormat, i, b.PageID)
		}
		if b.PageID >= 0 && b.BlockSize()<<b.BlockPerPageL2 != t.Pages[b.PageID].PageSize() {
			return fmt.Errorf("%w: block %d does not tile page %d", ErrFormat, i, b.PageID)
		}
	}
	for _, id := range t.BlockBins {
		if uint64(id) >= uint64(len(t.Blocks)) {
			return fmt.Errorf("%w: block bin %d out of range", ErrFormat, id)
		}
	}
	for _, id := range t.PageBins {
		if uint64(id) >= uint64(len(t.Pages)) {
			return fmt.Errorf("%w: page bin %d out of range", ErrFormat, id)
		}
	}
	for _, m := range t.Magnitudes {
		if uint64(m.StartIndex)+uint64(m.Len) > uint64(len(t.ClassIDs)) {
			return fmt.Errorf("%w: magnitude entries out of range", ErrFormat)
		}
	}
	for _, id := range t.ClassIDs {
		if int(id) >= len(t.Blocks) {
			return fmt.Errorf("%w: class id %d out of range", ErrFormat, id)
		}
	}
	for _, row := range t.Grid {
		for _, id := range row {
			if int(id) >= len(t.Blocks) {
				return fmt.Errorf("%w: grid class id %d out of range", ErrFormat, id)
			}
		}
	}
	return nil
}
