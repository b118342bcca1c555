// Package filter selects table rows before a read returns them. A RowFilter
// computes a byte mask over a row window; readers then compact their
// buffers with Compact.
package filter

import (
	"errors"
	"fmt"
)

// DefaultMaxRows is the largest window a filter accepts in one Calculate.
const DefaultMaxRows = 1_000_000

var (
	ErrNotOpen       = errors.New("filter not open")
	ErrTooManyRows   = errors.New("row window exceeds filter limit")
	ErrUnknownColumn = errors.New("unknown filter column")
	ErrSyntax        = errors.New("filter syntax error")
	ErrVectorColumn  = errors.New("filter column holds more than one value per row")
)

// Source is the open table a filter reads its columns from. Rows are
// zero-based and ranges closed, as for chunk.InputFile. Reads through a
// Source are never filtered themselves.
type Source interface {
	ColumnIndex(name string) (int, error)
	ReadFloat64(col int, first, last int64) ([]float64, error)
	ReadText(col int, first, last int64) ([]string, error)
}

// RowFilter decides which rows of a window are kept.
//
// The mask returned by RowStatus has one byte per row of the last Calculate
// window: non-zero for rows to keep.
type RowFilter interface {
	Open(src Source) error
	Calculate(first, n int64) error
	Close() error
	RowStatus() []byte
	GoodRows() int64
}

// ExprFilter is a RowFilter that keeps the rows satisfying Expr.
type ExprFilter struct {
	Expr    *Expression
	MaxRows int64

	src    Source
	status []byte
	good   int64
}

// NewExprFilter creates a filter for expr with the default row limit.
func NewExprFilter(expr *Expression) *ExprFilter {
	return &ExprFilter{Expr: expr, MaxRows: DefaultMaxRows}
}

// Open binds the filter to src.
func (f *ExprFilter) Open(src Source) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrNotOpen)
	}
	f.src = src
	f.status = nil
	f.good = 0
	return nil
}

// Calculate evaluates the expression over rows first .. first+n-1.
func (f *ExprFilter) Calculate(first, n int64) error {
	if f.src == nil {
		return ErrNotOpen
	}
	limit := f.MaxRows
	if limit <= 0 {
		limit = DefaultMaxRows
	}
	if n > limit {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRows, n, limit)
	}

	f.good = 0
	if n <= 0 {
		f.status = f.status[:0]
		return nil
	}

	values, err := f.load(first, first+n-1)
	if err != nil {
		return err
	}

	f.status = make([]byte, n)
	for i := range f.status {
		if f.Expr == nil || f.Expr.eval(values, i) {
			f.status[i] = 1
			f.good++
		}
	}
	return nil
}

func (f *ExprFilter) load(first, last int64) (*rowValues, error) {
	v := &rowValues{
		nums:  make(map[string][]float64),
		texts: make(map[string][]string),
	}
	if f.Expr == nil {
		return v, nil
	}

	rows := int(last - first + 1)
	text := f.Expr.textColumns()
	for _, name := range f.Expr.Columns() {
		col, err := f.src.ColumnIndex(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnknownColumn, name, err)
		}
		if text[name] {
			data, err := f.src.ReadText(col, first, last)
			if err != nil {
				return nil, fmt.Errorf("filter column %s: %w", name, err)
			}
			if len(data) != rows {
				return nil, fmt.Errorf("%w: %s returned %d values for %d rows", ErrVectorColumn, name, len(data), rows)
			}
			v.texts[name] = data
			continue
		}
		data, err := f.src.ReadFloat64(col, first, last)
		if err != nil {
			return nil, fmt.Errorf("filter column %s: %w", name, err)
		}
		if len(data) != rows {
			return nil, fmt.Errorf("%w: %s returned %d values for %d rows", ErrVectorColumn, name, len(data), rows)
		}
		v.nums[name] = data
	}
	return v, nil
}

// Close unbinds the filter from its source.
func (f *ExprFilter) Close() error {
	if f.src == nil {
		return ErrNotOpen
	}
	f.src = nil
	return nil
}

// RowStatus returns the mask of the last Calculate.
func (f *ExprFilter) RowStatus() []byte {
	return f.status
}

// GoodRows returns the number of kept rows of the last Calculate.
func (f *ExprFilter) GoodRows() int64 {
	return f.good
}

// Compact moves the kept blocks of width elements to the front of buf and
// returns the shortened slice. Block i is kept when mask[i] is non-zero.
func Compact[T any](buf []T, mask []byte, width int) []T {
	if width < 1 {
		width = 1
	}
	k := 0
	for i, keep := range mask {
		if keep == 0 {
			continue
		}
		src := i * width
		if src+width > len(buf) {
			break
		}
		if k != i {
			copy(buf[k*width:(k+1)*width], buf[src:src+width])
		}
		k++
	}
	return buf[:k*width]
}
