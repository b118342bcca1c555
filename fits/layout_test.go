package fits

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/filter"
)

const (
	cardSize  = 80
	blockSize = 2880
)

// header returns the cards of the header starting at off and the offset of
// the block following it.
func header(t *testing.T, data []byte, off int) ([]string, int) {
	t.Helper()
	var cards []string
	for p := off; p+cardSize <= len(data); p += cardSize {
		card := string(data[p : p+cardSize])
		cards = append(cards, card)
		if strings.TrimRight(card, " ") == "END" {
			end := p + cardSize
			return cards, (end + blockSize - 1) / blockSize * blockSize
		}
	}
	t.Fatalf("no END card after offset %d", off)
	return nil, 0
}

func findCard(cards []string, key string) string {
	for _, c := range cards {
		if strings.TrimRight(c[:8], " ") == key {
			return c
		}
	}
	return ""
}

func TestStringCellsOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labels.fits")
	names := []string{"abcdefgh", "xy", ""}

	out := NewOutputFile()
	require.NoError(t, out.Create(ctx, path))
	require.NoError(t, out.CreateTable("LABELS", []chunk.Field{{Name: "NAME", Type: chunk.TypeString, VectorSize: 8}}))
	require.NoError(t, out.WriteString(0, names, 0, 2))
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	_, ext := header(t, data, 0)
	cards, start := header(t, data, ext)
	assert.Contains(t, findCard(cards, "XTENSION"), "'BINTABLE'")
	assert.Contains(t, findCard(cards, "TTYPE1"), "'NAME")
	assert.Contains(t, findCard(cards, "TFORM1"), "'8A")
	assert.Contains(t, findCard(cards, "NAXIS1"), " 8")
	assert.Contains(t, findCard(cards, "NAXIS2"), " 3")

	require.GreaterOrEqual(t, len(data), start+3*8)
	for r, name := range names {
		cell := data[start+r*8 : start+(r+1)*8]
		want := []byte(name + strings.Repeat(" ", 8-len(name)))
		assert.Equal(t, want, cell, "row %d", r)
		assert.NotEqual(t, byte(0), cell[0], "row %d", r)
	}

	in := NewInputFile()
	require.NoError(t, in.Open(ctx, path))
	defer in.Close()
	got, err := in.ReadString(0, 0, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, names, got)
}

func TestOverflowingReads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wide.fits")

	out := NewOutputFile()
	require.NoError(t, out.Create(ctx, path))
	require.NoError(t, out.CreateTable("WIDE", []chunk.Field{
		{Name: "B", Type: chunk.TypeUInt8, VectorSize: 1},
		{Name: "D", Type: chunk.TypeDouble, VectorSize: 1},
		{Name: "J", Type: chunk.TypeInt32, VectorSize: 1},
		{Name: "BIG", Type: chunk.TypeDouble, VectorSize: 1},
	}))
	require.NoError(t, out.WriteUint8(0, []uint8{200, 7}, 0, 1))
	require.NoError(t, out.WriteFloat64(1, []float64{1e12, -3.9}, 0, 1))
	require.NoError(t, out.WriteInt32(2, []int32{-5, 70000}, 0, 1))
	require.NoError(t, out.WriteFloat64(3, []float64{1e300, 2.5}, 0, 1))
	require.NoError(t, out.CreateImage([]int16{300, -1}, []int64{2}))
	require.NoError(t, out.Close())

	in := NewInputFile()
	require.NoError(t, in.Open(ctx, path))
	defer in.Close()

	tests := []struct {
		name string
		read func() error
	}{
		{"uint8 into int8", func() error { _, err := in.ReadInt8(0, 0, 1); return err }},
		{"double into int32", func() error { _, err := in.ReadInt32(1, 0, 0); return err }},
		{"negative into uint8", func() error { _, err := in.ReadUint8(2, 0, 0); return err }},
		{"int32 into int16", func() error { _, err := in.ReadInt16(2, 1, 1); return err }},
		{"double into float32", func() error { _, err := in.ReadFloat32(3, 0, 0); return err }},
		{"cell", func() error { _, err := ReadCell[int8](in, 0, 0, 1); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			require.ErrorIs(t, err, chunk.ErrRead)
			assert.Equal(t, chunk.StatusNumOverflow, chunk.StatusOf(err))
		})
	}

	i8, err := in.ReadInt8(0, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int8{7}, i8)

	i32, err := in.ReadInt32(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{-3}, i32)

	i64, err := in.ReadInt64(2, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{-5, 70000}, i64)

	f32, err := in.ReadFloat32(3, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5}, f32)

	f64, err := in.ReadFloat64(3, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1e300}, f64)

	require.NoError(t, in.MoveToChunk(2))
	_, err = in.ReadImageUint8()
	require.ErrorIs(t, err, chunk.ErrRead)
	assert.Equal(t, chunk.StatusNumOverflow, chunk.StatusOf(err))

	img, err := in.ReadImageInt32()
	require.NoError(t, err)
	assert.Equal(t, []int32{300, -1}, img.Data)
}

func TestOverflowBounds(t *testing.T) {
	_, ok, overflow := convert[int8](int64(-129))
	assert.True(t, ok)
	assert.True(t, overflow)

	v, ok, _ := convert[int8](int64(-128))
	assert.True(t, ok)
	assert.Equal(t, int8(-128), v)

	_, _, overflow = convert[int64](float64(math.MaxInt64) * 2)
	assert.True(t, overflow)

	_, _, overflow = convert[uint8](math.NaN())
	assert.True(t, overflow)

	f, ok, overflow := convert[float32](math.Inf(1))
	assert.True(t, ok)
	assert.False(t, overflow)
	assert.True(t, math.IsInf(float64(f), 1))

	u, ok, _ := convert[uint8](uint64(255))
	assert.True(t, ok)
	assert.Equal(t, uint8(255), u)
}

func TestFilterOnVectorColumn(t *testing.T) {
	in, _ := openFixture(t)

	in.SetFilter(filter.NewExprFilter(filter.Gt("fvector", 4)))
	got, err := in.ReadInt32(0, 0, nrow-1)
	require.ErrorIs(t, err, chunk.ErrRead)
	require.ErrorIs(t, err, filter.ErrVectorColumn)
	assert.Nil(t, got)

	require.NoError(t, in.ApplyFilter("fvector > 4"))
	_, err = in.ReadInt32(0, 0, nrow-1)
	require.ErrorIs(t, err, filter.ErrVectorColumn)

	// scalar columns still select
	require.NoError(t, in.ApplyFilter("field0 > 4"))
	got, err = in.ReadInt32(0, 0, nrow-1)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 6, 7, 8, 9}, got)
}

// writeVariableLength writes a table whose only column is a PJ array with
// cells {1,2,3} and {4,5}.
func writeVariableLength(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Write(fitsio.NewImage(8, []int{})))

	tbl, err := fitsio.NewTable("VLA", []fitsio.Column{{Name: "COUNTS", Format: "PJ"}}, fitsio.BINARY_TBL)
	require.NoError(t, err)
	require.NoError(t, tbl.Write(&[]int32{1, 2, 3}))
	require.NoError(t, tbl.Write(&[]int32{4, 5}))
	require.NoError(t, f.Write(tbl))
	require.NoError(t, f.Close())

	path := filepath.Join(t.TempDir(), "vla.fits")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestVariableLengthColumn(t *testing.T) {
	path := writeVariableLength(t)

	in := NewInputFile()
	require.NoError(t, in.Open(context.Background(), path))
	defer in.Close()

	rows, err := in.RowCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	_, err = in.ReadInt32(0, 0, 1)
	require.ErrorIs(t, err, chunk.ErrRead)
	assert.Equal(t, chunk.StatusBadTForm, chunk.StatusOf(err))

	_, err = in.ReadFloat64(0, 0, 0)
	assert.Equal(t, chunk.StatusBadTForm, chunk.StatusOf(err))

	cell, err := ReadCell[int32](in, 0, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, cell)

	cell, err = ReadCell[int32](in, 0, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 5}, cell)

	cell, err = ReadCell[int32](in, 0, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, cell)
}

func TestCloseContext(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ctx.fits")

	out := NewOutputFile()
	require.NoError(t, out.Create(ctx, path))
	require.NoError(t, out.CreateTable("T", []chunk.Field{{Name: "X", Type: chunk.TypeInt16, VectorSize: 1}}))
	require.NoError(t, out.WriteInt16(0, []int16{4, 2}, 0, 1))
	require.NoError(t, out.CloseContext(ctx))
	require.ErrorIs(t, out.Close(), chunk.ErrState)
	assert.False(t, out.IsOpened())

	in := NewInputFile()
	require.NoError(t, in.Open(ctx, path))
	defer in.Close()
	got, err := in.ReadInt16(0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int16{4, 2}, got)
}

func TestKeywordValueLength(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "long.fits")

	out := NewOutputFile()
	require.NoError(t, out.Create(ctx, path))

	err := out.WriteKeyword("LONGTEXT", strings.Repeat("x", maxCardValue+1), "")
	require.ErrorIs(t, err, chunk.ErrWrite)

	// apostrophes are doubled inside the quotes
	err = out.WriteKeyword("QUOTED", strings.Repeat("'", maxCardValue/2+1), "")
	require.ErrorIs(t, err, chunk.ErrWrite)

	full := strings.Repeat("y", maxCardValue)
	require.NoError(t, out.WriteKeyword("LONGTEXT", full, ""))
	require.NoError(t, out.WriteKeyword("OBSERVER", "O'Neil", ""))
	require.NoError(t, out.Close())

	in := NewInputFile()
	require.NoError(t, in.Open(ctx, path))
	defer in.Close()
	require.NoError(t, in.MoveToChunk(0))
	v, ok, err := in.KeywordValue("LONGTEXT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, full, v)

	v, ok, err = in.KeywordValue("OBSERVER")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "O'Neil", v)
}
