// Package text reads delimiter-separated numeric tables as a chunked file
// with a single chunk.
package text

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/go-qlio/go-qlio/chunk"
)

const format = "text"

// DefaultSeparator splits fields on blanks.
const DefaultSeparator = " "

const maxLineSize = 16 << 20

var _ chunk.InputFile = (*InputFile)(nil)

// InputFile reads a text table. Open scans the file once to size it; every
// read then streams the file again from the top. Blank lines are skipped and
// do not count as rows.
type InputFile struct {
	opts      *chunk.Options
	logger    log.Logger
	separator string

	path   string
	opened bool
	rows   int64
	cols   int
	status int
}

// NewInputFile creates a closed text input. Every character of separator
// delimits fields and runs of them count as one; an empty separator means
// DefaultSeparator.
func NewInputFile(separator string, opts ...chunk.Option) *InputFile {
	if separator == "" {
		separator = DefaultSeparator
	}
	o := chunk.NewOptions(opts...)
	return &InputFile{
		opts:      o,
		logger:    log.With(o.Logger, "format", format),
		separator: separator,
	}
}

func (f *InputFile) fail(err *chunk.Error) error {
	f.opts.Metrics.IncError(format, err.Kind.String())
	level.Debug(f.logger).Log("msg", "operation failed", "op", err.Op, "path", f.path, "err", err)
	return err
}

func (f *InputFile) split(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return strings.ContainsRune(f.separator, r)
	})
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// walk streams the file and calls fn for each non-blank line with its row
// index, stopping when fn returns false.
func (f *InputFile) walk(ctx context.Context, fn func(row int64, line string) bool) error {
	in, err := f.opts.FileIO.Open(ctx, f.path)
	if err != nil {
		return err
	}
	r, err := in.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	cr := &countingReader{r: r}
	defer func() { f.opts.Metrics.AddBytesRead(format, cr.n) }()

	scanner := bufio.NewScanner(cr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var row int64
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !fn(row, line) {
			return nil
		}
		row++
	}
	return scanner.Err()
}

// Open scans path once: the column count comes from the first non-blank
// line and the row count from all of them. An empty file opens with no rows
// and no columns.
func (f *InputFile) Open(ctx context.Context, path string) error {
	if f.opened {
		f.Close()
	}
	f.path = path
	f.rows, f.cols, f.status = 0, 0, chunk.StatusNone

	err := f.walk(ctx, func(row int64, line string) bool {
		if row == 0 {
			f.cols = len(f.split(line))
		}
		f.rows++
		return true
	})
	if err != nil {
		f.rows, f.cols = 0, 0
		return f.fail(chunk.OpenError("Open", path, err))
	}

	f.opened = true
	level.Debug(f.logger).Log("msg", "opened file", "path", path, "rows", f.rows, "columns", f.cols)
	return nil
}

// Close forgets the file dimensions.
func (f *InputFile) Close() error {
	if !f.opened {
		return f.fail(chunk.StateError("Close", f.path))
	}
	f.opened = false
	f.rows, f.cols = 0, 0
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

// MoveToChunk accepts only chunk 0.
func (f *InputFile) MoveToChunk(index int) error {
	if !f.opened {
		return f.fail(chunk.StateError("MoveToChunk", f.path))
	}
	if index != 0 {
		return f.fail(chunk.NavigationError("MoveToChunk", f.path, index, 1))
	}
	return nil
}

// ChunkCount is always 1 for an open file.
func (f *InputFile) ChunkCount() (int, error) {
	if !f.opened {
		return 0, f.fail(chunk.StateError("ChunkCount", f.path))
	}
	return 1, nil
}

func (f *InputFile) ColumnCount() (int32, error) {
	if !f.opened {
		return 0, f.fail(chunk.StateError("ColumnCount", f.path))
	}
	return int32(f.cols), nil
}

func (f *InputFile) RowCount() (int64, error) {
	if !f.opened {
		return 0, f.fail(chunk.StateError("RowCount", f.path))
	}
	return f.rows, nil
}

// Columns names the columns col0, col1 ... as doubles.
func (f *InputFile) Columns() ([]chunk.Field, error) {
	if !f.opened {
		return nil, f.fail(chunk.StateError("Columns", f.path))
	}
	out := make([]chunk.Field, f.cols)
	for i := range out {
		out[i] = chunk.Field{Name: fmt.Sprintf("col%d", i), Type: chunk.TypeDouble, VectorSize: 1}
	}
	return out, nil
}

// ColumnIndex resolves the names returned by Columns.
func (f *InputFile) ColumnIndex(name string) (int, error) {
	if !f.opened {
		return -1, f.fail(chunk.StateError("ColumnIndex", f.path))
	}
	lower := strings.ToLower(name)
	if rest, ok := strings.CutPrefix(lower, "col"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && i < f.cols {
			return i, nil
		}
	}
	return -1, f.fail(chunk.ReadError("ColumnIndex", f.path, chunk.StatusBadColNum, "column %q not found", name))
}

// Status returns the status of the last read: StatusRowsTerminated when its
// range was cut at the last row, else StatusNone.
func (f *InputFile) Status() int {
	return f.status
}

// RowsTerminated reports whether the last read was cut at the last row.
func (f *InputFile) RowsTerminated() bool {
	return f.status == chunk.StatusRowsTerminated
}

// test validates a read and returns last clamped to the final row.
func (f *InputFile) test(op string, col int, first, last int64) (int64, error) {
	if !f.opened {
		return 0, f.fail(chunk.StateError(op, f.path))
	}
	f.status = chunk.StatusNone
	if col < 0 || col >= f.cols {
		return 0, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadColNum, "column %d out of range [0,%d)", col, f.cols))
	}
	if first < 0 || first > last {
		return 0, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadRowNum, "invalid rows %d..%d", first, last))
	}
	if last > f.rows-1 {
		last = f.rows - 1
		f.status = chunk.StatusRowsTerminated
	}
	if first > last {
		return 0, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadRowNum, "row %d past end of file (%d rows)", first, f.rows))
	}
	return last, nil
}

// fields collects column col of rows first..last.
func (f *InputFile) fields(op string, col int, first, last int64) ([]string, error) {
	last, err := f.test(op, col, first, last)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, chunk.RowSpan(first, last))
	var short error
	err = f.walk(context.Background(), func(row int64, line string) bool {
		if row < first {
			return true
		}
		fields := f.split(line)
		if col >= len(fields) {
			short = f.fail(chunk.ReadError(op, f.path, chunk.StatusBadColNum, "row %d has %d fields", row, len(fields)))
			return false
		}
		out = append(out, fields[col])
		return row < last
	})
	if short != nil {
		return nil, short
	}
	if err != nil {
		cerr := chunk.ReadError(op, f.path, chunk.StatusNone, "cannot read file")
		cerr.Cause = err
		return nil, f.fail(cerr)
	}
	if int64(len(out)) != chunk.RowSpan(first, last) {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadRowNum, "file shrank to %d rows", first+int64(len(out))))
	}
	f.opts.Metrics.AddRowsRead(format, int64(len(out)))
	return out, nil
}

func parse[T chunk.Numeric](f *InputFile, op string, col int, first, last int64, conv func(string) (T, error)) ([]T, error) {
	raw, err := f.fields(op, col, first, last)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(raw))
	for i, s := range raw {
		v, err := conv(s)
		if err != nil {
			cerr := chunk.ReadError(op, f.path, chunk.StatusBadDataType, "row %d: cannot parse %q", first+int64(i), s)
			cerr.Cause = err
			return nil, f.fail(cerr)
		}
		out[i] = v
	}
	return out, nil
}

func parseInt[T chunk.Numeric](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseInt(s, 10, bits)
		return T(v), err
	}
}

func parseFloat[T chunk.Numeric](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseFloat(s, bits)
		return T(v), err
	}
}

func (f *InputFile) ReadUint8(col int, first, last int64) ([]uint8, error) {
	return parse(f, "ReadUint8", col, first, last, func(s string) (uint8, error) {
		v, err := strconv.ParseUint(s, 10, 8)
		return uint8(v), err
	})
}

func (f *InputFile) ReadInt8(col int, first, last int64) ([]int8, error) {
	return parse(f, "ReadInt8", col, first, last, parseInt[int8](8))
}

func (f *InputFile) ReadInt16(col int, first, last int64) ([]int16, error) {
	return parse(f, "ReadInt16", col, first, last, parseInt[int16](16))
}

func (f *InputFile) ReadInt32(col int, first, last int64) ([]int32, error) {
	return parse(f, "ReadInt32", col, first, last, parseInt[int32](32))
}

func (f *InputFile) ReadInt64(col int, first, last int64) ([]int64, error) {
	return parse(f, "ReadInt64", col, first, last, parseInt[int64](64))
}

func (f *InputFile) ReadFloat32(col int, first, last int64) ([]float32, error) {
	return parse(f, "ReadFloat32", col, first, last, parseFloat[float32](32))
}

func (f *InputFile) ReadFloat64(col int, first, last int64) ([]float64, error) {
	return parse(f, "ReadFloat64", col, first, last, parseFloat[float64](64))
}

// ReadString returns the raw fields of column col cut to width bytes.
func (f *InputFile) ReadString(col int, first, last int64, width int) ([]string, error) {
	raw, err := f.fields("ReadString", col, first, last)
	if err != nil {
		return nil, err
	}
	for i, s := range raw {
		if width > 0 && len(s) > width {
			raw[i] = s[:width]
		}
	}
	return raw, nil
}

func (f *InputFile) unsupported(op string) error {
	if !f.opened {
		return f.fail(chunk.StateError(op, f.path))
	}
	return f.fail(chunk.ReadError(op, f.path, chunk.StatusNone, "not supported by text files"))
}

func (f *InputFile) ReadUint8Vector(col int, first, last int64, size int) ([][]uint8, error) {
	return nil, f.unsupported("ReadUint8Vector")
}

func (f *InputFile) ReadInt16Vector(col int, first, last int64, size int) ([][]int16, error) {
	return nil, f.unsupported("ReadInt16Vector")
}

func (f *InputFile) ReadInt32Vector(col int, first, last int64, size int) ([][]int32, error) {
	return nil, f.unsupported("ReadInt32Vector")
}

func (f *InputFile) ReadInt64Vector(col int, first, last int64, size int) ([][]int64, error) {
	return nil, f.unsupported("ReadInt64Vector")
}

func (f *InputFile) ReadFloat32Vector(col int, first, last int64, size int) ([][]float32, error) {
	return nil, f.unsupported("ReadFloat32Vector")
}

func (f *InputFile) ReadFloat64Vector(col int, first, last int64, size int) ([][]float64, error) {
	return nil, f.unsupported("ReadFloat64Vector")
}

func (f *InputFile) ReadImageUint8() (*chunk.Image[uint8], error) {
	return nil, f.unsupported("ReadImageUint8")
}

func (f *InputFile) ReadImageInt16() (*chunk.Image[int16], error) {
	return nil, f.unsupported("ReadImageInt16")
}

func (f *InputFile) ReadImageInt32() (*chunk.Image[int32], error) {
	return nil, f.unsupported("ReadImageInt32")
}

func (f *InputFile) ReadImageInt64() (*chunk.Image[int64], error) {
	return nil, f.unsupported("ReadImageInt64")
}

func (f *InputFile) ReadImageFloat32() (*chunk.Image[float32], error) {
	return nil, f.unsupported("ReadImageFloat32")
}

func (f *InputFile) ReadImageFloat64() (*chunk.Image[float64], error) {
	return nil, f.unsupported("ReadImageFloat64")
}
