package fits

import (
	"math"
	"strings"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/filter"
)

// convert maps one decoded element to T. ok is false for character and
// complex cells; overflow is set when the value does not fit T. Logical
// cells read as 0 or 1, floats truncate toward zero.
func convert[T chunk.Numeric](x any) (v T, ok, overflow bool) {
	switch x := x.(type) {
	case uint8:
		return fromUint[T](uint64(x))
	case uint16:
		return fromUint[T](uint64(x))
	case uint32:
		return fromUint[T](uint64(x))
	case uint64:
		return fromUint[T](x)
	case int8:
		return fromInt[T](int64(x))
	case int16:
		return fromInt[T](int64(x))
	case int32:
		return fromInt[T](int64(x))
	case int64:
		return fromInt[T](x)
	case int:
		return fromInt[T](int64(x))
	case float32:
		return fromFloat[T](float64(x))
	case float64:
		return fromFloat[T](x)
	case bool:
		if x {
			return 1, true, false
		}
		return 0, true, false
	default:
		return 0, false, false
	}
}

func isFloat[T chunk.Numeric]() bool {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return true
	}
	return false
}

func fromInt[T chunk.Numeric](i int64) (T, bool, bool) {
	v := T(i)
	if isFloat[T]() {
		return v, true, false
	}
	var zero T
	return v, true, int64(v) != i || (v < zero) != (i < 0)
}

func fromUint[T chunk.Numeric](u uint64) (T, bool, bool) {
	v := T(u)
	if isFloat[T]() {
		return v, true, false
	}
	var zero T
	return v, true, v < zero || uint64(v) != u
}

func fromFloat[T chunk.Numeric](x float64) (T, bool, bool) {
	if isFloat[T]() {
		var zero T
		if _, single := any(zero).(float32); single && !math.IsInf(x, 0) && math.Abs(x) > math.MaxFloat32 {
			return 0, true, true
		}
		return T(x), true, false
	}
	t := math.Trunc(x)
	if math.IsNaN(t) || t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, true, true
	}
	return fromInt[T](int64(t))
}

// element converts x for column c, failing with the status CFITSIO would
// report.
func element[T chunk.Numeric](f *InputFile, op string, c *column, x any) (T, error) {
	v, ok, overflow := convert[T](x)
	if !ok {
		return 0, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadDataType, "column %q: cannot convert %T", c.name, x))
	}
	if overflow {
		return 0, f.fail(chunk.ReadError(op, f.path, chunk.StatusNumOverflow, "column %q: value %v overflows %T", c.name, x, v))
	}
	return v, nil
}

// numericColumn validates the table, column and state common to every
// numeric read.
func (f *InputFile) numericColumn(op string, col int) (*table, *column, error) {
	t, err := f.currentTable(op)
	if err != nil {
		return nil, nil, err
	}
	if col < 0 || col >= len(t.columns) {
		return nil, nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadColNum, "column %d out of range [0,%d)", col, len(t.columns)))
	}
	c := t.columns[col]
	if c.isText {
		return nil, nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadDataType, "column %q holds characters", c.name))
	}
	return t, c, nil
}

func (f *InputFile) checkRange(op string, t *table, first, last int64) error {
	if first < 0 || last < first || last >= t.nrows {
		return f.fail(chunk.ReadError(op, f.path, chunk.StatusBadRowNum, "rows %d..%d out of range [0,%d)", first, last, t.nrows))
	}
	return nil
}

// readColumn reads column col. With nelem zero it returns rows first..last
// flattened, honouring the row filter when filtered is set. With nelem
// positive it returns nelem elements packed from row first onward.
func readColumn[T chunk.Numeric](f *InputFile, op string, col int, first, last, nelem int64, filtered bool) ([]T, error) {
	t, c, err := f.numericColumn(op, col)
	if err != nil {
		return nil, err
	}

	if nelem > 0 {
		return readElements[T](f, op, t, c, first, nelem)
	}
	if !c.supported {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadTForm, "column %q has format %q, which only ReadCell reads", c.name, c.format))
	}
	if err := f.checkRange(op, t, first, last); err != nil {
		return nil, err
	}

	var mask []byte
	if filtered && f.filter != nil {
		if mask, err = f.applyFilter(op, first, last); err != nil {
			return nil, err
		}
	}

	out := make([]T, 0, chunk.RowSpan(first, last)*int64(c.repeat))
	for row := first; row <= last; row++ {
		cell := c.cells[row]
		for _, x := range cell {
			v, err := element[T](f, op, c, x)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		for k := len(cell); k < c.repeat; k++ {
			out = append(out, 0)
		}
	}

	rows := chunk.RowSpan(first, last)
	if mask != nil {
		out = filter.Compact(out, mask, c.repeat)
		rows = int64(len(out) / max(c.repeat, 1))
	}
	if filtered {
		f.lastRows = rows
		f.opts.Metrics.AddRowsRead(format, rows)
	}
	return out, nil
}

func readElements[T chunk.Numeric](f *InputFile, op string, t *table, c *column, row, nelem int64) ([]T, error) {
	if row < 0 || row >= t.nrows {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadRowNum, "row %d out of range [0,%d)", row, t.nrows))
	}
	out := make([]T, 0, nelem)
	for r := row; r < t.nrows && int64(len(out)) < nelem; r++ {
		for _, x := range c.cells[r] {
			if int64(len(out)) == nelem {
				break
			}
			v, err := element[T](f, op, c, x)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	if int64(len(out)) < nelem {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadElemNum, "only %d of %d elements available from row %d", len(out), nelem, row))
	}
	f.lastRows = 1
	return out, nil
}

// ReadCell reads n elements of column col starting at row, continuing into
// the following rows when a cell holds fewer. It serves variable-length
// columns, whose cells differ in size. The row filter is not applied.
func ReadCell[T chunk.Numeric](f *InputFile, col int, row, n int64) ([]T, error) {
	if n <= 0 {
		return nil, f.fail(chunk.ReadError("ReadCell", f.path, chunk.StatusBadElemNum, "element count %d must be positive", n))
	}
	return readColumn[T](f, "ReadCell", col, row, row, n, false)
}

func readVector[T chunk.Numeric](f *InputFile, op string, col int, first, last int64, size int) ([][]T, error) {
	_, c, err := f.numericColumn(op, col)
	if err != nil {
		return nil, err
	}
	if size != c.repeat {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadElemNum, "column %q holds %d elements per row, not %d", c.name, c.repeat, size))
	}
	flat, err := readColumn[T](f, op, col, first, last, 0, true)
	if err != nil {
		return nil, err
	}
	return chunk.Unflatten(flat, size), nil
}

func (f *InputFile) readString(op string, col int, first, last int64, width int, filtered bool) ([]string, error) {
	t, err := f.currentTable(op)
	if err != nil {
		return nil, err
	}
	if col < 0 || col >= len(t.columns) {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadColNum, "column %d out of range [0,%d)", col, len(t.columns)))
	}
	c := t.columns[col]
	if !c.isText {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadDataType, "column %q does not hold characters", c.name))
	}
	if width < 0 {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadElemNum, "invalid width %d", width))
	}
	if err := f.checkRange(op, t, first, last); err != nil {
		return nil, err
	}

	var mask []byte
	if filtered && f.filter != nil {
		if mask, err = f.applyFilter(op, first, last); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, chunk.RowSpan(first, last))
	for row := first; row <= last; row++ {
		s := strings.TrimRight(c.text[row], " \x00")
		if width > 0 && len(s) > width {
			s = s[:width]
		}
		out = append(out, s)
	}
	if mask != nil {
		out = filter.Compact(out, mask, 1)
	}
	if filtered {
		f.lastRows = int64(len(out))
		f.opts.Metrics.AddRowsRead(format, int64(len(out)))
	}
	return out, nil
}

func readImage[T chunk.Numeric](f *InputFile, op string) (*chunk.Image[T], error) {
	if !f.opened {
		return nil, f.fail(chunk.StateError(op, f.path))
	}
	h := f.hdus[f.current]
	if h.kind != kindImage {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusNotImage, "chunk %d is not an image", f.current))
	}
	if h.pixels == nil {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusNotImage, "chunk %d has no image data", f.current))
	}

	var (
		data []T
		ok   bool
	)
	switch px := h.pixels.(type) {
	case []uint8:
		data, ok = convertSlice[uint8, T](px)
	case []int16:
		data, ok = convertSlice[int16, T](px)
	case []int32:
		data, ok = convertSlice[int32, T](px)
	case []int64:
		data, ok = convertSlice[int64, T](px)
	case []float32:
		data, ok = convertSlice[float32, T](px)
	case []float64:
		data, ok = convertSlice[float64, T](px)
	default:
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusBadDataType, "unsupported pixel type %T", h.pixels))
	}
	if !ok {
		return nil, f.fail(chunk.ReadError(op, f.path, chunk.StatusNumOverflow, "chunk %d: pixel values overflow %T", f.current, *new(T)))
	}

	sizes := make([]int64, len(h.axes))
	for i, a := range h.axes {
		sizes[i] = int64(a)
	}
	return &chunk.Image[T]{Data: data, Dim: len(h.axes), Sizes: sizes}, nil
}

// convertSlice converts every pixel, reporting false when one does not fit T.
func convertSlice[S, T chunk.Numeric](in []S) ([]T, bool) {
	out := make([]T, len(in))
	for i, v := range in {
		x, _, overflow := convert[T](v)
		if overflow {
			return nil, false
		}
		out[i] = x
	}
	return out, true
}

// Time returns the value of a time column at row, unfiltered.
func (f *InputFile) Time(col int, row int64) (float64, error) {
	v, err := readColumn[float64](f, "Time", col, row, row, 0, false)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Times returns n consecutive values of a time column starting at start,
// unfiltered.
func (f *InputFile) Times(col int, start, n int64) ([]float64, error) {
	return readColumn[float64](f, "Times", col, start, start+n-1, 0, false)
}

// NextRowPeriod scans a time column forward from first and returns the last
// row whose time is below end, or first-1 when the time at first already
// reaches end. When the table ends first, its last row is returned.
func (f *InputFile) NextRowPeriod(col int, first int64, end float64) (int64, error) {
	t, _, err := f.numericColumn("NextRowPeriod", col)
	if err != nil {
		return 0, err
	}
	times, err := readColumn[float64](f, "NextRowPeriod", col, first, t.nrows-1, 0, false)
	if err != nil {
		return 0, err
	}
	row := first - 1
	for i, v := range times {
		if v >= end {
			break
		}
		row = first + int64(i)
	}
	return row, nil
}
