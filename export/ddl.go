package export

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/go-qlio/go-qlio/chunk"
)

// DDLNamespace is the XML namespace of the data description language.
const DDLNamespace = "http://oats.inaf.it/das"

// DDL describes the binary tables of a file.
type DDL struct {
	XMLName xml.Name  `xml:"http://oats.inaf.it/das ddl"`
	Types   []DDLType `xml:"type"`
}

// DDLType describes one table. Name is CREAT_ID_EXTNAME and Description
// the TM_ID keyword.
type DDLType struct {
	Name        string      `xml:"name,attr"`
	Description string      `xml:"description,attr"`
	Columns     []DDLColumn `xml:"data>binaryTable>column"`
}

// DDLColumn describes one table column.
type DDLColumn struct {
	Name      string `xml:"name,attr,omitempty"`
	Type      string `xml:"type,attr,omitempty"`
	ArraySize int    `xml:"arraysize,attr,omitempty"`
	Unit      string `xml:"unit,attr,omitempty"`
}

// TableSource is an input whose chunks carry names and header cards.
type TableSource interface {
	chunk.InputFile
	chunk.HeaderReader
	ChunkName() (string, error)
}

func ddlType(t chunk.FieldType) string {
	switch t {
	case chunk.TypeUInt8:
		return "byte"
	case chunk.TypeInt16, chunk.TypeInt32, chunk.TypeInt64:
		return t.String()
	case chunk.TypeFloat:
		return "float32"
	case chunk.TypeDouble:
		return "float64"
	case chunk.TypeString:
		return "string"
	default:
		return ""
	}
}

// BuildDDL visits every chunk of src and describes each table. Image chunks
// are skipped. The cursor is left on the last chunk.
func BuildDDL(src TableSource) (*DDL, error) {
	n, err := src.ChunkCount()
	if err != nil {
		return nil, err
	}

	doc := &DDL{}
	for i := 0; i < n; i++ {
		if err := src.MoveToChunk(i); err != nil {
			return nil, err
		}
		fields, err := src.Columns()
		if chunk.StatusOf(err) == chunk.StatusNotTable {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}

		extname, err := src.ChunkName()
		if err != nil {
			return nil, err
		}
		creatID, _, err := src.KeywordValue("CREAT_ID")
		if err != nil {
			return nil, err
		}
		tmID, _, err := src.KeywordValue("TM_ID")
		if err != nil {
			return nil, err
		}

		typ := DDLType{Name: creatID + "_" + extname, Description: tmID}
		for _, f := range fields {
			col := DDLColumn{Name: f.Name, Type: ddlType(f.Type), Unit: f.Unit}
			if f.VectorSize > 1 {
				col.ArraySize = f.VectorSize
			}
			typ.Columns = append(typ.Columns, col)
		}
		doc.Types = append(doc.Types, typ)
	}
	return doc, nil
}

// WriteDDL writes the XML description of src to w.
func WriteDDL(w io.Writer, src TableSource) error {
	doc, err := BuildDDL(src)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode ddl: %w", err)
	}
	_, err = io.WriteString(w, "\n")
	return err
}
