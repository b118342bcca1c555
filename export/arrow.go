// Package export converts table chunks to Arrow records and writes them as
// Parquet or Avro files, and describes FITS tables as an XML DDL.
package export

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/go-qlio/go-qlio/chunk"
)

// UnitKey is the Arrow field metadata key holding a column unit.
const UnitKey = "unit"

var (
	// ErrRaggedColumns is returned when the columns of a chunk yield
	// different row counts.
	ErrRaggedColumns = errors.New("columns returned different row counts")
)

// arrowType maps a FieldType to its Arrow element type.
func arrowType(t chunk.FieldType) (arrow.DataType, error) {
	switch t {
	case chunk.TypeUInt8:
		return arrow.PrimitiveTypes.Uint8, nil
	case chunk.TypeInt16:
		return arrow.PrimitiveTypes.Int16, nil
	case chunk.TypeInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case chunk.TypeInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case chunk.TypeFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case chunk.TypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case chunk.TypeString:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("unsupported field type: %v", t)
	}
}

// Schema converts chunk fields to an Arrow schema. Vector columns become
// fixed size lists and units are kept in the field metadata.
func Schema(fields []chunk.Field) (*arrow.Schema, error) {
	out := make([]arrow.Field, len(fields))
	for i, f := range fields {
		dt, err := arrowType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		if f.Type != chunk.TypeString && f.VectorSize > 1 {
			dt = arrow.FixedSizeListOf(int32(f.VectorSize), dt)
		}
		af := arrow.Field{Name: f.Name, Type: dt}
		if f.Unit != "" {
			af.Metadata = arrow.NewMetadata([]string{UnitKey}, []string{f.Unit})
		}
		out[i] = af
	}
	return arrow.NewSchema(out, nil), nil
}

// appender is implemented by the primitive Arrow builders.
type appender[T any] interface {
	AppendValues(v []T, valid []bool)
}

func appendScalars[T any](b array.Builder, vals []T) {
	b.(appender[T]).AppendValues(vals, nil)
}

func appendVectors[T any](b array.Builder, rows [][]T) {
	lb := b.(*array.FixedSizeListBuilder)
	vb := lb.ValueBuilder()
	for _, row := range rows {
		lb.Append(true)
		appendScalars(vb, row)
	}
}

// ReadRecord reads rows first..last of every column of the selected chunk
// into one Arrow record. Row filters set on in apply, so the record may
// hold fewer rows than requested. The caller releases the record.
func ReadRecord(in chunk.InputFile, first, last int64, mem memory.Allocator) (arrow.Record, error) {
	fields, err := in.Columns()
	if err != nil {
		return nil, err
	}
	schema, err := Schema(fields)
	if err != nil {
		return nil, err
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	rows := int64(-1)
	for i, f := range fields {
		n, err := readInto(in, builder.Field(i), i, f, first, last)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		if rows >= 0 && n != rows {
			return nil, fmt.Errorf("column %q: %w", f.Name, ErrRaggedColumns)
		}
		rows = n
	}
	return builder.NewRecord(), nil
}

// ReadAll reads the whole selected chunk. A table without rows yields an
// empty record.
func ReadAll(in chunk.InputFile, mem memory.Allocator) (arrow.Record, error) {
	n, err := in.RowCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		fields, err := in.Columns()
		if err != nil {
			return nil, err
		}
		schema, err := Schema(fields)
		if err != nil {
			return nil, err
		}
		if mem == nil {
			mem = memory.NewGoAllocator()
		}
		b := array.NewRecordBuilder(mem, schema)
		defer b.Release()
		return b.NewRecord(), nil
	}
	return ReadRecord(in, 0, n-1, mem)
}

func readInto(in chunk.InputFile, b array.Builder, col int, f chunk.Field, first, last int64) (int64, error) {
	if f.Type == chunk.TypeString {
		v, err := in.ReadString(col, first, last, 0)
		if err != nil {
			return 0, err
		}
		appendScalars(b, v)
		return int64(len(v)), nil
	}

	if f.VectorSize > 1 {
		size := f.VectorSize
		switch f.Type {
		case chunk.TypeUInt8:
			return vectors(b, func() ([][]uint8, error) { return in.ReadUint8Vector(col, first, last, size) })
		case chunk.TypeInt16:
			return vectors(b, func() ([][]int16, error) { return in.ReadInt16Vector(col, first, last, size) })
		case chunk.TypeInt32:
			return vectors(b, func() ([][]int32, error) { return in.ReadInt32Vector(col, first, last, size) })
		case chunk.TypeInt64:
			return vectors(b, func() ([][]int64, error) { return in.ReadInt64Vector(col, first, last, size) })
		case chunk.TypeFloat:
			return vectors(b, func() ([][]float32, error) { return in.ReadFloat32Vector(col, first, last, size) })
		case chunk.TypeDouble:
			return vectors(b, func() ([][]float64, error) { return in.ReadFloat64Vector(col, first, last, size) })
		}
		return 0, fmt.Errorf("unsupported field type: %v", f.Type)
	}

	switch f.Type {
	case chunk.TypeUInt8:
		return scalars(b, func() ([]uint8, error) { return in.ReadUint8(col, first, last) })
	case chunk.TypeInt16:
		return scalars(b, func() ([]int16, error) { return in.ReadInt16(col, first, last) })
	case chunk.TypeInt32:
		return scalars(b, func() ([]int32, error) { return in.ReadInt32(col, first, last) })
	case chunk.TypeInt64:
		return scalars(b, func() ([]int64, error) { return in.ReadInt64(col, first, last) })
	case chunk.TypeFloat:
		return scalars(b, func() ([]float32, error) { return in.ReadFloat32(col, first, last) })
	case chunk.TypeDouble:
		return scalars(b, func() ([]float64, error) { return in.ReadFloat64(col, first, last) })
	}
	return 0, fmt.Errorf("unsupported field type: %v", f.Type)
}

func scalars[T any](b array.Builder, read func() ([]T, error)) (int64, error) {
	v, err := read()
	if err != nil {
		return 0, err
	}
	appendScalars(b, v)
	return int64(len(v)), nil
}

func vectors[T any](b array.Builder, read func() ([][]T, error)) (int64, error) {
	v, err := read()
	if err != nil {
		return 0, err
	}
	appendVectors(b, v)
	return int64(len(v)), nil
}
