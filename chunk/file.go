// Package chunk defines the chunked file abstraction shared by every backend:
// a file split into numbered chunks (FITS HDUs, or a single implicit chunk for
// text), read and written column by column over zero-based row ranges.
package chunk

import (
	"context"
)

// Numeric is the set of element types a column can be read as.
type Numeric interface {
	~uint8 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Value is the set of element types a column can be written from.
type Value interface {
	Numeric | ~string
}

// Image is a flattened N-dimensional pixel array. Sizes lists the axis
// lengths with the fastest varying axis first.
type Image[T Numeric] struct {
	Data  []T
	Dim   int
	Sizes []int64
}

// File is the lifecycle and navigation contract of every chunked file.
type File interface {
	// Open acquires the backing resource and positions the cursor on the
	// backend's default chunk.
	Open(ctx context.Context, path string) error

	// Close releases the backing resource. Closing a file that is not open
	// returns an error of kind KindState.
	Close() error

	// IsOpened reports whether the file is open.
	IsOpened() bool

	// MoveToChunk selects the chunk with the given zero-based index.
	MoveToChunk(index int) error

	// Path returns the path given to the last Open or Create.
	Path() string
}

// InputFile reads typed columns from the currently selected chunk.
//
// Column and row indexes are zero-based. Row ranges are closed: a read of
// (first, last) returns last-first+1 rows.
type InputFile interface {
	File

	ChunkCount() (int, error)
	ColumnCount() (int32, error)
	RowCount() (int64, error)
	Columns() ([]Field, error)
	ColumnIndex(name string) (int, error)

	ReadUint8(col int, first, last int64) ([]uint8, error)
	ReadInt8(col int, first, last int64) ([]int8, error)
	ReadInt16(col int, first, last int64) ([]int16, error)
	ReadInt32(col int, first, last int64) ([]int32, error)
	ReadInt64(col int, first, last int64) ([]int64, error)
	ReadFloat32(col int, first, last int64) ([]float32, error)
	ReadFloat64(col int, first, last int64) ([]float64, error)

	ReadUint8Vector(col int, first, last int64, size int) ([][]uint8, error)
	ReadInt16Vector(col int, first, last int64, size int) ([][]int16, error)
	ReadInt32Vector(col int, first, last int64, size int) ([][]int32, error)
	ReadInt64Vector(col int, first, last int64, size int) ([][]int64, error)
	ReadFloat32Vector(col int, first, last int64, size int) ([][]float32, error)
	ReadFloat64Vector(col int, first, last int64, size int) ([][]float64, error)

	ReadString(col int, first, last int64, width int) ([]string, error)

	ReadImageUint8() (*Image[uint8], error)
	ReadImageInt16() (*Image[int16], error)
	ReadImageInt32() (*Image[int32], error)
	ReadImageInt64() (*Image[int64], error)
	ReadImageFloat32() (*Image[float32], error)
	ReadImageFloat64() (*Image[float64], error)
}

// OutputFile creates tables and writes typed columns into the currently
// selected chunk.
type OutputFile interface {
	File

	// Create starts a new file holding only an empty primary chunk.
	Create(ctx context.Context, path string) error

	CreateTable(name string, fields []Field) error

	WriteUint8(col int, buf []uint8, first, last int64) error
	WriteInt16(col int, buf []int16, first, last int64) error
	WriteInt32(col int, buf []int32, first, last int64) error
	WriteInt64(col int, buf []int64, first, last int64) error
	WriteFloat32(col int, buf []float32, first, last int64) error
	WriteFloat64(col int, buf []float64, first, last int64) error

	WriteUint8Vector(col int, buf [][]uint8, first, last int64) error
	WriteInt16Vector(col int, buf [][]int16, first, last int64) error
	WriteInt32Vector(col int, buf [][]int32, first, last int64) error
	WriteInt64Vector(col int, buf [][]int64, first, last int64) error
	WriteFloat32Vector(col int, buf [][]float32, first, last int64) error
	WriteFloat64Vector(col int, buf [][]float64, first, last int64) error

	WriteString(col int, buf []string, first, last int64) error

	// WriteKeyword attaches a string-valued card to the current chunk header.
	WriteKeyword(name, value, comment string) error
}

// HeaderReader is implemented by inputs whose chunks carry header cards.
type HeaderReader interface {
	KeywordCount() (int, error)
	Keyword(i int) (Keyword, error)
	KeywordValue(name string) (string, bool, error)
}

// RowSpan returns last-first+1, the number of rows in a closed range.
func RowSpan(first, last int64) int64 {
	return last - first + 1
}

// Unflatten splits buf into rows of size elements.
func Unflatten[T any](buf []T, size int) [][]T {
	if size <= 0 {
		return nil
	}
	out := make([][]T, 0, len(buf)/size)
	for i := 0; i+size <= len(buf); i += size {
		row := make([]T, size)
		copy(row, buf[i:i+size])
		out = append(out, row)
	}
	return out
}

// Flatten concatenates rows, checking that each has exactly size elements.
func Flatten[T any](rows [][]T, size int) ([]T, bool) {
	out := make([]T, 0, len(rows)*size)
	for _, r := range rows {
		if len(r) != size {
			return nil, false
		}
		out = append(out, r...)
	}
	return out, true
}
