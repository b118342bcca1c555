package fits

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/go-qlio/go-qlio/chunk"
	qio "github.com/go-qlio/go-qlio/io"
)

var _ chunk.OutputFile = (*OutputFile)(nil)

// outChunk is one HDU staged for writing.
type outChunk struct {
	kind     hduKind
	name     string
	keywords []chunk.Keyword

	bitpix int
	axes   []int
	pixels any

	columns []*outColumn
	rows    int64
}

// outColumn holds the cells of one column flattened into a []T, or a
// []string for character columns.
type outColumn struct {
	field chunk.Field
	data  any
}

// OutputFile stages a FITS file in memory and commits it on Close.
type OutputFile struct {
	opts   *chunk.Options
	logger log.Logger

	path    string
	opened  bool
	chunks  []*outChunk
	current int
}

// NewOutputFile creates a closed FITS output.
func NewOutputFile(opts ...chunk.Option) *OutputFile {
	o := chunk.NewOptions(opts...)
	return &OutputFile{opts: o, logger: log.With(o.Logger, "format", format)}
}

func (f *OutputFile) fail(err *chunk.Error) error {
	f.opts.Metrics.IncError(format, err.Kind.String())
	level.Debug(f.logger).Log("msg", "operation failed", "op", err.Op, "path", f.path, "err", err)
	return err
}

// Create starts a new file holding an empty primary HDU. An existing file
// at path is replaced when the output is closed.
func (f *OutputFile) Create(ctx context.Context, path string) error {
	if f.opened {
		if err := f.CloseContext(ctx); err != nil {
			return err
		}
	}
	f.path = path
	f.chunks = []*outChunk{{kind: kindImage}}
	f.current = 0
	f.opened = true
	level.Debug(f.logger).Log("msg", "created file", "path", path)
	return nil
}

// Open loads an existing file for update. Header cards generated by the
// encoder are dropped and rebuilt on Close. Columns whose format has no
// FieldType make Open fail.
func (f *OutputFile) Open(ctx context.Context, path string) error {
	if f.opened {
		if err := f.CloseContext(ctx); err != nil {
			return err
		}
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

	chunks := make([]*outChunk, 0, len(hdus))
	for _, h := range hdus {
		c, err := stage(h)
		if err != nil {
			return f.fail(chunk.OpenError("Open", path, err))
		}
		chunks = append(chunks, c)
	}

	f.chunks = chunks
	f.current = 0
	if len(chunks) > 1 {
		f.current = 1
	}
	f.opened = true
	level.Debug(f.logger).Log("msg", "opened file for update", "path", path, "chunks", len(chunks))
	return nil
}

// stage converts a decoded HDU into its writable form.
func stage(h *hdu) (*outChunk, error) {
	c := &outChunk{kind: h.kind, name: h.name, bitpix: h.bitpix, axes: h.axes, pixels: h.pixels}
	for _, k := range h.keywords {
		if !isReserved(k.Name) {
			c.keywords = append(c.keywords, k)
		}
	}
	if h.kind != kindTable {
		return c, nil
	}

	c.rows = h.table.nrows
	for _, col := range h.table.columns {
		if !col.supported {
			return nil, chunk.SchemaError("Open", "column %q has unsupported format %q", col.name, col.format)
		}
		field := col.field()
		var data any
		switch field.Type {
		case chunk.TypeUInt8:
			data = cellsAs[uint8](col, c.rows)
		case chunk.TypeInt16:
			data = cellsAs[int16](col, c.rows)
		case chunk.TypeInt32:
			data = cellsAs[int32](col, c.rows)
		case chunk.TypeInt64:
			data = cellsAs[int64](col, c.rows)
		case chunk.TypeFloat:
			data = cellsAs[float32](col, c.rows)
		case chunk.TypeDouble:
			data = cellsAs[float64](col, c.rows)
		case chunk.TypeString:
			text := make([]string, c.rows)
			copy(text, col.text)
			data = text
		}
		c.columns = append(c.columns, &outColumn{field: field, data: data})
	}
	return c, nil
}

func cellsAs[T chunk.Numeric](col *column, rows int64) []T {
	out := make([]T, int(rows)*col.repeat)
	for r := 0; r < int(rows) && r < len(col.cells); r++ {
		for k, x := range col.cells[r] {
			if k >= col.repeat {
				break
			}
			if v, ok, _ := convert[T](x); ok {
				out[r*col.repeat+k] = v
			}
		}
	}
	return out
}

// Close encodes the staged file and commits it through the storage layer.
// The output is closed even when the commit fails.
func (f *OutputFile) Close() error {
	return f.CloseContext(context.Background())
}

// CloseContext is Close with a context bounding the commit.
func (f *OutputFile) CloseContext(ctx context.Context) error {
	if !f.opened {
		return f.fail(chunk.StateError("Close", f.path))
	}
	f.opened = false
	chunks := f.chunks
	f.chunks = nil

	data, err := encode(chunks)
	if err != nil {
		cerr := chunk.WriteError("Close", f.path, chunk.StatusNone, "cannot encode file")
		cerr.Cause = err
		return f.fail(cerr)
	}
	if err := qio.WriteFile(ctx, f.opts.FileIO, f.path, data); err != nil {
		cerr := chunk.WriteError("Close", f.path, chunk.StatusNone, "cannot commit file")
		cerr.Cause = err
		return f.fail(cerr)
	}
	f.opts.Metrics.AddBytesWritten(format, int64(len(data)))
	level.Debug(f.logger).Log("msg", "committed file", "path", f.path, "chunks", len(chunks), "bytes", len(data))
	return nil
}

// IsOpened reports whether the file is open.
func (f *OutputFile) IsOpened() bool {
	return f.opened
}

// Path returns the path given to the last Create or Open.
func (f *OutputFile) Path() string {
	return f.path
}

// MoveToChunk selects HDU index.
func (f *OutputFile) MoveToChunk(index int) error {
	if !f.opened {
		return f.fail(chunk.StateError("MoveToChunk", f.path))
	}
	if index < 0 || index >= len(f.chunks) {
		return f.fail(chunk.NavigationError("MoveToChunk", f.path, index, len(f.chunks)))
	}
	f.current = index
	return nil
}

// ChunkCount returns the number of staged HDUs, primary included.
func (f *OutputFile) ChunkCount() (int, error) {
	if !f.opened {
		return 0, f.fail(chunk.StateError("ChunkCount", f.path))
	}
	return len(f.chunks), nil
}

func (f *OutputFile) insert(c *outChunk) {
	at := f.current + 1
	f.chunks = append(f.chunks, nil)
	copy(f.chunks[at+1:], f.chunks[at:])
	f.chunks[at] = c
	f.current = at
}

// CreateTable inserts a binary table after the current chunk and selects
// it. The table name, column names and units are cut to the label width.
func (f *OutputFile) CreateTable(name string, fields []chunk.Field) error {
	if !f.opened {
		return f.fail(chunk.StateError("CreateTable", f.path))
	}
	if err := chunk.ValidateFields(fields); err != nil {
		if cerr, ok := err.(*chunk.Error); ok {
			return f.fail(cerr)
		}
		return err
	}

	width := f.opts.LabelWidth
	c := &outChunk{kind: kindTable, name: chunk.TruncateLabel(name, width)}
	for _, fd := range fields {
		fd.Name = chunk.TruncateLabel(fd.Name, width)
		fd.Unit = chunk.TruncateLabel(fd.Unit, width)
		c.columns = append(c.columns, &outColumn{field: fd, data: emptyData(fd.Type)})
	}
	f.insert(c)
	level.Debug(f.logger).Log("msg", "created table", "path", f.path, "table", c.name, "columns", len(fields), "chunk", f.current)
	return nil
}

func emptyData(t chunk.FieldType) any {
	switch t {
	case chunk.TypeUInt8:
		return []uint8{}
	case chunk.TypeInt16:
		return []int16{}
	case chunk.TypeInt32:
		return []int32{}
	case chunk.TypeInt64:
		return []int64{}
	case chunk.TypeFloat:
		return []float32{}
	case chunk.TypeDouble:
		return []float64{}
	default:
		return []string{}
	}
}

// CreateImage inserts an image HDU after the current chunk and selects it.
// data is one of []uint8, []int16, []int32, []int64, []float32, []float64
// and sizes lists the axis lengths, NAXIS1 first.
func (f *OutputFile) CreateImage(data any, sizes []int64) error {
	if !f.opened {
		return f.fail(chunk.StateError("CreateImage", f.path))
	}

	var bitpix, n int
	switch px := data.(type) {
	case []uint8:
		bitpix, n = 8, len(px)
	case []int16:
		bitpix, n = 16, len(px)
	case []int32:
		bitpix, n = 32, len(px)
	case []int64:
		bitpix, n = 64, len(px)
	case []float32:
		bitpix, n = -32, len(px)
	case []float64:
		bitpix, n = -64, len(px)
	default:
		return f.fail(chunk.WriteError("CreateImage", f.path, chunk.StatusBadDataType, "unsupported pixel type %T", data))
	}

	if len(sizes) == 0 {
		return f.fail(chunk.WriteError("CreateImage", f.path, chunk.StatusBadElemNum, "image needs at least one axis"))
	}
	axes := make([]int, len(sizes))
	total := 1
	for i, s := range sizes {
		if s < 1 {
			return f.fail(chunk.WriteError("CreateImage", f.path, chunk.StatusBadElemNum, "axis %d has size %d", i+1, s))
		}
		axes[i] = int(s)
		total *= int(s)
	}
	if total != n {
		return f.fail(chunk.WriteError("CreateImage", f.path, chunk.StatusBadElemNum, "%d pixels for axes %v", n, sizes))
	}

	pixels := reflect.ValueOf(data)
	copied := reflect.MakeSlice(pixels.Type(), n, n)
	reflect.Copy(copied, pixels)

	f.insert(&outChunk{kind: kindImage, bitpix: bitpix, axes: axes, pixels: copied.Interface()})
	level.Debug(f.logger).Log("msg", "created image", "path", f.path, "bitpix", bitpix, "chunk", f.current)
	return nil
}

// maxCardValue is the longest quoted string value fitsio keeps on one
// card. Longer values spill into CONTINUE cards.
const maxCardValue = 67

// WriteKeyword sets a string-valued card on the current chunk, replacing a
// card of the same name.
func (f *OutputFile) WriteKeyword(name, value, comment string) error {
	if !f.opened {
		return f.fail(chunk.StateError("WriteKeyword", f.path))
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || len(name) > 8 {
		return f.fail(chunk.WriteError("WriteKeyword", f.path, chunk.StatusNone, "invalid keyword name %q", name))
	}
	if isReserved(name) {
		return f.fail(chunk.WriteError("WriteKeyword", f.path, chunk.StatusNone, "keyword %s is managed by the encoder", name))
	}
	if n := len(value) + strings.Count(value, "'"); n > maxCardValue {
		return f.fail(chunk.WriteError("WriteKeyword", f.path, chunk.StatusNone, "value of %s is %d characters quoted, a card holds %d", name, n, maxCardValue))
	}

	c := f.chunks[f.current]
	kw := chunk.Keyword{Name: name, Value: value, Comment: comment}
	for i := range c.keywords {
		if c.keywords[i].Name == name {
			c.keywords[i] = kw
			return nil
		}
	}
	c.keywords = append(c.keywords, kw)
	return nil
}

func (f *OutputFile) WriteUint8(col int, buf []uint8, first, last int64) error {
	return writeColumn(f, "WriteUint8", col, buf, first, last)
}

func (f *OutputFile) WriteInt16(col int, buf []int16, first, last int64) error {
	return writeColumn(f, "WriteInt16", col, buf, first, last)
}

func (f *OutputFile) WriteInt32(col int, buf []int32, first, last int64) error {
	return writeColumn(f, "WriteInt32", col, buf, first, last)
}

func (f *OutputFile) WriteInt64(col int, buf []int64, first, last int64) error {
	return writeColumn(f, "WriteInt64", col, buf, first, last)
}

func (f *OutputFile) WriteFloat32(col int, buf []float32, first, last int64) error {
	return writeColumn(f, "WriteFloat32", col, buf, first, last)
}

func (f *OutputFile) WriteFloat64(col int, buf []float64, first, last int64) error {
	return writeColumn(f, "WriteFloat64", col, buf, first, last)
}

func (f *OutputFile) WriteUint8Vector(col int, buf [][]uint8, first, last int64) error {
	return writeVector(f, "WriteUint8Vector", col, buf, first, last)
}

func (f *OutputFile) WriteInt16Vector(col int, buf [][]int16, first, last int64) error {
	return writeVector(f, "WriteInt16Vector", col, buf, first, last)
}

func (f *OutputFile) WriteInt32Vector(col int, buf [][]int32, first, last int64) error {
	return writeVector(f, "WriteInt32Vector", col, buf, first, last)
}

func (f *OutputFile) WriteInt64Vector(col int, buf [][]int64, first, last int64) error {
	return writeVector(f, "WriteInt64Vector", col, buf, first, last)
}

func (f *OutputFile) WriteFloat32Vector(col int, buf [][]float32, first, last int64) error {
	return writeVector(f, "WriteFloat32Vector", col, buf, first, last)
}

func (f *OutputFile) WriteFloat64Vector(col int, buf [][]float64, first, last int64) error {
	return writeVector(f, "WriteFloat64Vector", col, buf, first, last)
}

// WriteString writes a character column. Strings longer than the column
// width are cut.
func (f *OutputFile) WriteString(col int, buf []string, first, last int64) error {
	return writeColumn(f, "WriteString", col, buf, first, last)
}

func (f *OutputFile) targetColumn(op string, col int, first, last int64) (*outChunk, *outColumn, error) {
	if !f.opened {
		return nil, nil, f.fail(chunk.StateError(op, f.path))
	}
	c := f.chunks[f.current]
	if c.kind != kindTable {
		return nil, nil, f.fail(chunk.WriteError(op, f.path, chunk.StatusNotTable, "chunk %d is not a table", f.current))
	}
	if col < 0 || col >= len(c.columns) {
		return nil, nil, f.fail(chunk.WriteError(op, f.path, chunk.StatusBadColNum, "column %d out of range [0,%d)", col, len(c.columns)))
	}
	if first < 0 || last < first {
		return nil, nil, f.fail(chunk.WriteError(op, f.path, chunk.StatusBadRowNum, "invalid rows %d..%d", first, last))
	}
	return c, c.columns[col], nil
}

func writeColumn[T chunk.Value](f *OutputFile, op string, col int, buf []T, first, last int64) error {
	c, oc, err := f.targetColumn(op, col, first, last)
	if err != nil {
		return err
	}
	if _, ok := oc.data.([]T); !ok {
		return f.fail(chunk.WriteError(op, f.path, chunk.StatusBadDataType, "column %q is declared %s", oc.field.Name, oc.field.Type))
	}

	width := int64(oc.field.Width())
	span := chunk.RowSpan(first, last)
	if int64(len(buf)) != span*width {
		return f.fail(chunk.WriteError(op, f.path, chunk.StatusBadElemNum, "%d values for %d rows of %d elements", len(buf), span, width))
	}

	if last+1 > c.rows {
		c.grow(last + 1)
	}
	data := oc.data.([]T)
	copy(data[first*width:], buf)

	if text, ok := any(data).([]string); ok {
		limit := oc.field.VectorSize
		for i := first; i <= last; i++ {
			if len(text[i]) > limit {
				text[i] = text[i][:limit]
			}
		}
	}

	f.opts.Metrics.AddRowsWritten(format, span)
	return nil
}

func writeVector[T chunk.Numeric](f *OutputFile, op string, col int, rows [][]T, first, last int64) error {
	_, oc, err := f.targetColumn(op, col, first, last)
	if err != nil {
		return err
	}
	flat, ok := chunk.Flatten(rows, oc.field.Width())
	if !ok {
		return f.fail(chunk.WriteError(op, f.path, chunk.StatusBadElemNum, "column %q expects %d elements per row", oc.field.Name, oc.field.Width()))
	}
	return writeColumn(f, op, col, flat, first, last)
}

// grow extends every column to n rows, zero-filling the new cells.
func (c *outChunk) grow(n int64) {
	for _, oc := range c.columns {
		rv := reflect.ValueOf(oc.data)
		want := int(n) * oc.field.Width()
		if rv.Len() >= want {
			continue
		}
		extra := reflect.MakeSlice(rv.Type(), want-rv.Len(), want-rv.Len())
		oc.data = reflect.AppendSlice(rv, extra).Interface()
	}
	c.rows = n
}
