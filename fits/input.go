// Package fits implements chunked files over FITS: each HDU is a chunk,
// binary and ASCII tables are read column by column, and image HDUs are
// read whole.
package fits

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/filter"
	qio "github.com/go-qlio/go-qlio/io"
)

const format = "fits"

var (
	_ chunk.InputFile    = (*InputFile)(nil)
	_ chunk.HeaderReader = (*InputFile)(nil)
)

// InputFile reads a FITS file. The whole file is fetched and decoded on
// Open; reads never go back to storage.
type InputFile struct {
	opts   *chunk.Options
	logger log.Logger

	path    string
	opened  bool
	hdus    []*hdu
	current int

	filter   filter.RowFilter
	lastRows int64
}

// NewInputFile creates a closed FITS input.
func NewInputFile(opts ...chunk.Option) *InputFile {
	o := chunk.NewOptions(opts...)
	return &InputFile{opts: o, logger: log.With(o.Logger, "format", format)}
}

func (f *InputFile) fail(err *chunk.Error) error {
	f.opts.Metrics.IncError(format, err.Kind.String())
	level.Debug(f.logger).Log("msg", "operation failed", "op", err.Op, "path", f.path, "err", err)
	return err
}

// Open fetches and decodes path. The cursor is placed on the first
// extension when there is one, else on the primary HDU.
func (f *InputFile) Open(ctx context.Context, path string) error {
	if f.opened {
		f.Close()
	}
	f.path = path

	data, err := qio.ReadFile(ctx, f.opts.FileIO, path)
	if err != nil {
		return f.fail(chunk.OpenError("Open", path, err))
	}
	f.opts.Metrics.AddBytesRead(format, int64(len(data)))

	hdus, err := decode(data)
	if err != nil {
		return f.fail(chunk.OpenError("Open", path, err))
	}

	f.hdus = hdus
	f.opened = true
	f.current = 0
	if len(hdus) > 1 {
		f.current = 1
	}
	f.lastRows = 0

	level.Debug(f.logger).Log("msg", "opened file", "path", path, "chunks", len(hdus), "chunk", f.current)
	return nil
}

// Close releases the decoded file.
func (f *InputFile) Close() error {
	if !f.opened {
		return f.fail(chunk.StateError("Close", f.path))
	}
	f.opened = false
	f.hdus = nil
	level.Debug(f.logger).Log("msg", "closed file", "path", f.path)
	return nil
}

// IsOpened reports whether the file is open.
func (f *InputFile) IsOpened() bool {
	return f.opened
}

// Path returns the path given to the last Open.
func (f *InputFile) Path() string {
	return f.path
}

// MoveToChunk selects HDU index.
func (f *InputFile) MoveToChunk(index int) error {
	if !f.opened {
		return f.fail(chunk.StateError("MoveToChunk", f.path))
	}
	if index < 0 || index >= len(f.hdus) {
		return f.fail(chunk.NavigationError("MoveToChunk", f.path, index, len(f.hdus)))
	}
	f.current = index
	level.Debug(f.logger).Log("msg", "moved to chunk", "path", f.path, "chunk", index)
	return nil
}

// CurrentChunk returns the index of the selected HDU.
func (f *InputFile) CurrentChunk() int {
	return f.current
}

// ChunkName returns the EXTNAME of the selected HDU, empty for the primary.
func (f *InputFile) ChunkName() (string, error) {
	if !f.opened {
		return "", f.fail(chunk.StateError("ChunkName", f.path))
	}
	return f.hdus[f.current].name, nil
}

// ChunkCount returns the number of HDUs, primary included.
func (f *InputFile) ChunkCount() (int, error) {
	if !f.opened {
		return 0, f.fail(chunk.StateError("ChunkCount", f.path))
	}
	return len(f.hdus), nil
}

func (f *InputFile) currentTable(op string) (*table, error) {
	if !f.opened {
		return nil, f.fail(chunk.StateError(op, f.path))
	}
	h := f.hdus[f.current]
	if h.kind != kindTable {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusNotTable, "chunk %d is not a table", f.current))
	}
	return h.table, nil
}

// ColumnCount returns the number of columns of the selected table.
func (f *InputFile) ColumnCount() (int32, error) {
	t, err := f.currentTable("ColumnCount")
	if err != nil {
		return 0, err
	}
	return int32(len(t.columns)), nil
}

// RowCount returns the number of rows of the selected table.
func (f *InputFile) RowCount() (int64, error) {
	t, err := f.currentTable("RowCount")
	if err != nil {
		return 0, err
	}
	return t.nrows, nil
}

// Columns describes the columns of the selected table. Columns whose format
// has no FieldType make it fail with a schema error.
func (f *InputFile) Columns() ([]chunk.Field, error) {
	t, err := f.currentTable("Columns")
	if err != nil {
		return nil, err
	}
	out := make([]chunk.Field, len(t.columns))
	for i, c := range t.columns {
		if !c.supported {
			return nil, f.fail(chunk.SchemaError("Columns", "column %q has unsupported format %q", c.name, c.format))
		}
		out[i] = c.field()
	}
	return out, nil
}

// ColumnIndex returns the zero-based index of the named column, ignoring
// case.
func (f *InputFile) ColumnIndex(name string) (int, error) {
	t, err := f.currentTable("ColumnIndex")
	if err != nil {
		return -1, err
	}
	for i, c := range t.columns {
		if strings.EqualFold(c.name, name) {
			return i, nil
		}
	}
	return -1, f.fail(chunk.ReadError("ColumnIndex", f.path, chunk.StatusBadColNum, "column %q not found", name))
}

// SetFilter makes every row-range read keep only the rows accepted by rf.
func (f *InputFile) SetFilter(rf filter.RowFilter) {
	f.filter = rf
}

// ApplyFilter parses a selection expression and sets it as the row filter.
func (f *InputFile) ApplyFilter(expr string) error {
	e, err := filter.Parse(expr)
	if err != nil {
		cerr := chunk.ReadError("ApplyFilter", f.path, chunk.StatusNone, "invalid selection %q", expr)
		cerr.Cause = err
		return f.fail(cerr)
	}
	ef := filter.NewExprFilter(e)
	if f.opts.MaxFilterRows > 0 {
		ef.MaxRows = f.opts.MaxFilterRows
	}
	f.SetFilter(ef)
	return nil
}

// RemoveFilter disables row filtering.
func (f *InputFile) RemoveFilter() {
	f.filter = nil
}

// LastReadRows returns the number of rows returned by the last row-range
// read, after filtering.
func (f *InputFile) LastReadRows() int64 {
	return f.lastRows
}

func (f *InputFile) ReadUint8(col int, first, last int64) ([]uint8, error) {
	return readColumn[uint8](f, "ReadUint8", col, first, last, 0, true)
}

func (f *InputFile) ReadInt8(col int, first, last int64) ([]int8, error) {
	return readColumn[int8](f, "ReadInt8", col, first, last, 0, true)
}

func (f *InputFile) ReadInt16(col int, first, last int64) ([]int16, error) {
	return readColumn[int16](f, "ReadInt16", col, first, last, 0, true)
}

func (f *InputFile) ReadInt32(col int, first, last int64) ([]int32, error) {
	return readColumn[int32](f, "ReadInt32", col, first, last, 0, true)
}

func (f *InputFile) ReadInt64(col int, first, last int64) ([]int64, error) {
	return readColumn[int64](f, "ReadInt64", col, first, last, 0, true)
}

func (f *InputFile) ReadFloat32(col int, first, last int64) ([]float32, error) {
	return readColumn[float32](f, "ReadFloat32", col, first, last, 0, true)
}

func (f *InputFile) ReadFloat64(col int, first, last int64) ([]float64, error) {
	return readColumn[float64](f, "ReadFloat64", col, first, last, 0, true)
}

func (f *InputFile) ReadUint8Vector(col int, first, last int64, size int) ([][]uint8, error) {
	return readVector[uint8](f, "ReadUint8Vector", col, first, last, size)
}

func (f *InputFile) ReadInt16Vector(col int, first, last int64, size int) ([][]int16, error) {
	return readVector[int16](f, "ReadInt16Vector", col, first, last, size)
}

func (f *InputFile) ReadInt32Vector(col int, first, last int64, size int) ([][]int32, error) {
	return readVector[int32](f, "ReadInt32Vector", col, first, last, size)
}

func (f *InputFile) ReadInt64Vector(col int, first, last int64, size int) ([][]int64, error) {
	return readVector[int64](f, "ReadInt64Vector", col, first, last, size)
}

func (f *InputFile) ReadFloat32Vector(col int, first, last int64, size int) ([][]float32, error) {
	return readVector[float32](f, "ReadFloat32Vector", col, first, last, size)
}

func (f *InputFile) ReadFloat64Vector(col int, first, last int64, size int) ([][]float64, error) {
	return readVector[float64](f, "ReadFloat64Vector", col, first, last, size)
}

// ReadString reads a character column, one string per row with trailing
// blanks removed and at most width bytes.
func (f *InputFile) ReadString(col int, first, last int64, width int) ([]string, error) {
	return f.readString("ReadString", col, first, last, width, true)
}

func (f *InputFile) ReadImageUint8() (*chunk.Image[uint8], error) {
	return readImage[uint8](f, "ReadImageUint8")
}

func (f *InputFile) ReadImageInt16() (*chunk.Image[int16], error) {
	return readImage[int16](f, "ReadImageInt16")
}

func (f *InputFile) ReadImageInt32() (*chunk.Image[int32], error) {
	return readImage[int32](f, "ReadImageInt32")
}

func (f *InputFile) ReadImageInt64() (*chunk.Image[int64], error) {
	return readImage[int64](f, "ReadImageInt64")
}

func (f *InputFile) ReadImageFloat32() (*chunk.Image[float32], error) {
	return readImage[float32](f, "ReadImageFloat32")
}

func (f *InputFile) ReadImageFloat64() (*chunk.Image[float64], error) {
	return readImage[float64](f, "ReadImageFloat64")
}

// KeywordCount returns the number of header cards of the selected HDU.
func (f *InputFile) KeywordCount() (int, error) {
	if !f.opened {
		return 0, f.fail(chunk.StateError("KeywordCount", f.path))
	}
	return len(f.hdus[f.current].keywords), nil
}

// Keyword returns header card i of the selected HDU.
func (f *InputFile) Keyword(i int) (chunk.Keyword, error) {
	if !f.opened {
		return chunk.Keyword{}, f.fail(chunk.StateError("Keyword", f.path))
	}
	kws := f.hdus[f.current].keywords
	if i < 0 || i >= len(kws) {
		return chunk.Keyword{}, f.fail(chunk.ReadError("Keyword", f.path, chunk.StatusBadElemNum, "keyword %d out of range [0,%d)", i, len(kws)))
	}
	return kws[i], nil
}

// KeywordValue looks up a header card of the selected HDU by name.
func (f *InputFile) KeywordValue(name string) (string, bool, error) {
	if !f.opened {
		return "", false, f.fail(chunk.StateError("KeywordValue", f.path))
	}
	for _, k := range f.hdus[f.current].keywords {
		if strings.EqualFold(k.Name, name) {
			return k.Value, true, nil
		}
	}
	return "", false, nil
}

// rawSource exposes the file to a row filter without filtering its reads.
type rawSource struct {
	f *InputFile
}

func (s rawSource) ColumnIndex(name string) (int, error) {
	return s.f.ColumnIndex(name)
}

func (s rawSource) ReadFloat64(col int, first, last int64) ([]float64, error) {
	_, c, err := s.f.numericColumn("ReadFloat64", col)
	if err != nil {
		return nil, err
	}
	if c.repeat > 1 {
		return nil, fmt.Errorf("%w: %q has %d elements per row", filter.ErrVectorColumn, c.name, c.repeat)
	}
	return readColumn[float64](s.f, "ReadFloat64", col, first, last, 0, false)
}

func (s rawSource) ReadText(col int, first, last int64) ([]string, error) {
	return s.f.readString("ReadText", col, first, last, 0, false)
}

// applyFilter runs one full filter cycle over rows first..last and returns
// the row mask.
func (f *InputFile) applyFilter(op string, first, last int64) ([]byte, error) {
	rf := f.filter
	wrap := func(err error) error {
		cerr := chunk.ReadError(op, f.path, chunk.StatusNone, "row filter failed")
		cerr.Cause = err
		return f.fail(cerr)
	}

	if err := rf.Open(rawSource{f}); err != nil {
		return nil, wrap(err)
	}
	if err := rf.Calculate(first, chunk.RowSpan(first, last)); err != nil {
		rf.Close()
		return nil, wrap(err)
	}
	mask := append([]byte(nil), rf.RowStatus()...)
	if err := rf.Close(); err != nil {
		return nil, wrap(err)
	}
	return mask, nil
}
