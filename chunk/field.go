package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldType identifies the element type of a table column.
type FieldType int

const (
	TypeUInt8 FieldType = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat
	TypeDouble
	TypeString
)

// String returns the string representation of the type.
func (t FieldType) String() string {
	switch t {
	case TypeUInt8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// DefaultLabelWidth is the maximum length of column names and units written
// to a table header.
const DefaultLabelWidth = 10

// Field describes one column of an output table.
//
// VectorSize is at least 1. For TypeString it is the character width of the
// cell; for numeric types a VectorSize above 1 makes a fixed-length array cell.
type Field struct {
	Name       string
	Type       FieldType
	Unit       string
	VectorSize int
}

// Width returns the number of elements stored per row.
func (f Field) Width() int {
	if f.Type == TypeString {
		return 1
	}
	if f.VectorSize < 1 {
		return 1
	}
	return f.VectorSize
}

// TForm returns the binary-table format code (TFORM) for the field.
func TForm(f Field) (string, error) {
	if f.VectorSize < 1 {
		return "", SchemaError("TForm", "field %q: vector size %d must be >= 1", f.Name, f.VectorSize)
	}

	var code string
	switch f.Type {
	case TypeUInt8:
		code = "B"
	case TypeInt16:
		code = "I"
	case TypeInt32:
		code = "J"
	case TypeInt64:
		code = "K"
	case TypeFloat:
		code = "E"
	case TypeDouble:
		code = "D"
	case TypeString:
		code = "A"
	default:
		return "", SchemaError("TForm", "field %q: unmappable type %d", f.Name, int(f.Type))
	}
	return strconv.Itoa(f.VectorSize) + code, nil
}

// ParseTForm decodes a binary-table format code into a field type and its
// repeat count. Logical, bit, complex and descriptor columns are rejected.
func ParseTForm(form string) (FieldType, int, error) {
	form = strings.TrimSpace(form)
	i := strings.IndexFunc(form, func(r rune) bool { return r < '0' || r > '9' })
	if i < 0 {
		return 0, 0, SchemaError("ParseTForm", "invalid format %q", form)
	}

	repeat := 1
	if i > 0 {
		n, err := strconv.Atoi(form[:i])
		if err != nil {
			return 0, 0, SchemaError("ParseTForm", "invalid repeat in %q", form)
		}
		repeat = n
	}

	switch form[i] {
	case 'B':
		return TypeUInt8, repeat, nil
	case 'I':
		return TypeInt16, repeat, nil
	case 'J':
		return TypeInt32, repeat, nil
	case 'K':
		return TypeInt64, repeat, nil
	case 'E':
		return TypeFloat, repeat, nil
	case 'D':
		return TypeDouble, repeat, nil
	case 'A':
		return TypeString, repeat, nil
	default:
		return 0, 0, SchemaError("ParseTForm", "unsupported format %q", form)
	}
}

// TruncateLabel cuts s to at most width bytes. A non-positive width
// disables truncation.
func TruncateLabel(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}

// ValidateFields checks a table schema before anything is allocated.
func ValidateFields(fields []Field) error {
	if len(fields) == 0 {
		return SchemaError("CreateTable", "table needs at least one field")
	}
	for i, f := range fields {
		if f.Name == "" {
			return SchemaError("CreateTable", "field %d has no name", i)
		}
		if _, err := TForm(f); err != nil {
			return err
		}
	}
	return nil
}

// Keyword is a header card.
type Keyword struct {
	Name    string
	Value   string
	Comment string
}

// String renders the card the way header dumps print it.
func (k Keyword) String() string {
	if k.Comment == "" {
		return fmt.Sprintf("%-8s= %s", k.Name, k.Value)
	}
	return fmt.Sprintf("%-8s= %s / %s", k.Name, k.Value, k.Comment)
}
