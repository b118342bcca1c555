package fits

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/go-qlio/go-qlio/chunk"
)

type hduKind int

const (
	kindImage hduKind = iota
	kindTable
)

// hdu is one decoded header/data unit.
type hdu struct {
	kind     hduKind
	name     string
	keywords []chunk.Keyword
	bitpix   int
	axes     []int
	pixels   any // native pixel slice, nil when the HDU has no data
	table    *table
}

type table struct {
	columns []*column
	nrows   int64
}

// column holds the decoded cells of one table column. Numeric cells keep
// the element values produced by the decoder; character cells are in text.
type column struct {
	name      string
	unit      string
	format    string
	typ       chunk.FieldType
	repeat    int
	supported bool
	isText    bool
	cells     [][]any
	text      []string
}

func (c *column) field() chunk.Field {
	return chunk.Field{Name: c.name, Type: c.typ, Unit: c.unit, VectorSize: c.repeat}
}

// decode parses a whole FITS stream.
func decode(data []byte) ([]*hdu, error) {
	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*hdu
	for i, h := range f.HDUs() {
		d, err := decodeHDU(h)
		if err != nil {
			return nil, fmt.Errorf("hdu %d: %w", i, err)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no HDU found")
	}
	return out, nil
}

func decodeHDU(h fitsio.HDU) (*hdu, error) {
	hdr := h.Header()
	d := &hdu{
		name:     h.Name(),
		keywords: headerKeywords(hdr),
		bitpix:   hdr.Bitpix(),
		axes:     append([]int(nil), hdr.Axes()...),
	}

	switch h.Type() {
	case fitsio.IMAGE_HDU:
		d.kind = kindImage
		img, ok := h.(fitsio.Image)
		if !ok {
			return nil, fmt.Errorf("image HDU of type %T", h)
		}
		pixels, err := readPixels(img, d.bitpix, d.axes)
		if err != nil {
			return nil, err
		}
		d.pixels = pixels
	case fitsio.BINARY_TBL, fitsio.ASCII_TBL:
		d.kind = kindTable
		tbl, ok := h.(*fitsio.Table)
		if !ok {
			return nil, fmt.Errorf("table HDU of type %T", h)
		}
		t, err := readTable(tbl)
		if err != nil {
			return nil, err
		}
		d.table = t
	default:
		return nil, fmt.Errorf("unsupported HDU type %v", h.Type())
	}
	return d, nil
}

func headerKeywords(hdr *fitsio.Header) []chunk.Keyword {
	var out []chunk.Keyword
	for _, k := range hdr.Keys() {
		card := hdr.Get(k)
		if card == nil {
			continue
		}
		out = append(out, chunk.Keyword{
			Name:    card.Name,
			Value:   cardValue(card.Value),
			Comment: card.Comment,
		})
	}
	return out
}

func cardValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "T"
		}
		return "F"
	default:
		return fmt.Sprint(x)
	}
}

func pixelCount(axes []int) int {
	if len(axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range axes {
		n *= a
	}
	return n
}

func readPixels(img fitsio.Image, bitpix int, axes []int) (any, error) {
	n := pixelCount(axes)
	if n == 0 {
		return nil, nil
	}

	var err error
	switch bitpix {
	case 8:
		buf := make([]uint8, n)
		err = img.Read(&buf)
		return buf, err
	case 16:
		buf := make([]int16, n)
		err = img.Read(&buf)
		return buf, err
	case 32:
		buf := make([]int32, n)
		err = img.Read(&buf)
		return buf, err
	case 64:
		buf := make([]int64, n)
		err = img.Read(&buf)
		return buf, err
	case -32:
		buf := make([]float32, n)
		err = img.Read(&buf)
		return buf, err
	case -64:
		buf := make([]float64, n)
		err = img.Read(&buf)
		return buf, err
	default:
		return nil, fmt.Errorf("invalid BITPIX %d", bitpix)
	}
}

func readTable(tbl *fitsio.Table) (*table, error) {
	t := &table{nrows: tbl.NumRows()}
	for _, c := range tbl.Cols() {
		col := &column{name: c.Name, unit: c.Unit, format: c.Format, repeat: 1}
		if typ, repeat, err := chunk.ParseTForm(c.Format); err == nil {
			col.typ, col.repeat, col.supported = typ, repeat, true
			col.isText = typ == chunk.TypeString
		}
		t.columns = append(t.columns, col)
	}
	if t.nrows == 0 {
		return t, nil
	}

	rows, err := tbl.Read(0, t.nrows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		values := make(map[string]interface{})
		if err := rows.Scan(&values); err != nil {
			return nil, err
		}
		for _, col := range t.columns {
			v, ok := values[col.name]
			if !ok {
				return nil, fmt.Errorf("column %q missing from row", col.name)
			}
			if s, ok := v.(string); ok {
				col.isText = true
				col.text = append(col.text, s)
				continue
			}
			col.cells = append(col.cells, cellElements(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// cellElements flattens a decoded cell: arrays and variable-length slices
// yield their elements, scalars yield themselves.
func cellElements(v any) []any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array, reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	default:
		return []any{v}
	}
}

// encode renders chunks into a FITS stream. Chunk 0 is the primary HDU.
func encode(chunks []*outChunk) ([]byte, error) {
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	if err != nil {
		return nil, err
	}

	for i, c := range chunks {
		var err error
		if c.kind == kindTable {
			err = encodeTable(f, c)
		} else {
			err = encodeImage(f, c)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cards converts keywords to header cards. fitsio quotes string values
// as they are, so embedded apostrophes are doubled here.
func cards(keywords []chunk.Keyword) []fitsio.Card {
	out := make([]fitsio.Card, 0, len(keywords))
	for _, k := range keywords {
		value := strings.ReplaceAll(k.Value, "'", "''")
		out = append(out, fitsio.Card{Name: k.Name, Value: value, Comment: k.Comment})
	}
	return out
}

func encodeImage(f *fitsio.File, c *outChunk) error {
	bitpix, axes := c.bitpix, c.axes
	if c.pixels == nil {
		bitpix, axes = 8, []int{}
	}
	img := fitsio.NewImage(bitpix, axes)

	if err := img.Header().Append(cards(c.keywords)...); err != nil {
		return err
	}
	if c.pixels != nil {
		ptr := reflect.New(reflect.TypeOf(c.pixels))
		ptr.Elem().Set(reflect.ValueOf(c.pixels))
		if err := img.Write(ptr.Interface()); err != nil {
			return err
		}
	}
	return f.Write(img)
}

func encodeTable(f *fitsio.File, c *outChunk) error {
	cols := make([]fitsio.Column, len(c.columns))
	for i, oc := range c.columns {
		form, err := chunk.TForm(oc.field)
		if err != nil {
			return err
		}
		cols[i] = fitsio.Column{Name: oc.field.Name, Format: form, Unit: oc.field.Unit}
	}

	tbl, err := fitsio.NewTable(c.name, cols, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}

	if err := tbl.Header().Append(cards(c.keywords)...); err != nil {
		return err
	}
	for row := int64(0); row < c.rows; row++ {
		args := make([]interface{}, len(c.columns))
		for i, oc := range c.columns {
			args[i] = oc.cell(row)
		}
		if err := tbl.Write(args...); err != nil {
			return fmt.Errorf("row %d: %w", row, err)
		}
	}
	return f.Write(tbl)
}

// cell returns a pointer to the value of one row, shaped the way the
// encoder expects for the column's format: a scalar, a fixed array, or a
// blank-padded byte array for characters.
func (oc *outColumn) cell(row int64) interface{} {
	rv := reflect.ValueOf(oc.data)
	if oc.field.Type == chunk.TypeString {
		return textCell(rv.Index(int(row)).String(), oc.field.VectorSize)
	}
	width := oc.field.Width()
	if width == 1 {
		p := reflect.New(rv.Type().Elem())
		p.Elem().Set(rv.Index(int(row)))
		return p.Interface()
	}
	p := reflect.New(reflect.ArrayOf(width, rv.Type().Elem()))
	for k := 0; k < width; k++ {
		p.Elem().Index(k).Set(rv.Index(int(row)*width + k))
	}
	return p.Interface()
}

// textCell lays s out as the width bytes of an rA field, blank padded.
// fitsio writes a plain string behind a NUL marker.
func textCell(s string, width int) interface{} {
	width = max(width, 1)
	p := reflect.New(reflect.ArrayOf(width, reflect.TypeOf(byte(0))))
	cell := p.Elem().Slice(0, width).Bytes()
	n := copy(cell, s)
	for k := n; k < width; k++ {
		cell[k] = ' '
	}
	return p.Interface()
}

var reservedIndexed = []string{"NAXIS", "TTYPE", "TFORM", "TUNIT", "TDIM", "TNULL", "TSCAL", "TZERO", "TDISP", "TBCOL"}

var reservedKeys = map[string]bool{
	"SIMPLE": true, "XTENSION": true, "BITPIX": true, "NAXIS": true, "EXTEND": true,
	"PCOUNT": true, "GCOUNT": true, "TFIELDS": true, "THEAP": true, "EXTNAME": true,
	"END": true, "BSCALE": true, "BZERO": true, "CHECKSUM": true, "DATASUM": true,
}

// isReserved reports whether a keyword is generated by the encoder and must
// not be carried as a user card.
func isReserved(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	if reservedKeys[name] {
		return true
	}
	for _, base := range reservedIndexed {
		if rest, ok := strings.CutPrefix(name, base); ok {
			if _, err := strconv.Atoi(rest); err == nil {
				return true
			}
		}
	}
	return false
}
