package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/linkedin/goavro/v2"
)

// AvroRecordName is the name of the record type written to Avro files.
const AvroRecordName = "chunk"

// avroName rewrites s into a valid Avro name.
func avroName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func avroType(dt arrow.DataType) (any, error) {
	switch t := dt.(type) {
	case *arrow.Uint8Type, *arrow.Int16Type, *arrow.Int32Type:
		return "int", nil
	case *arrow.Int64Type:
		return "long", nil
	case *arrow.Float32Type:
		return "float", nil
	case *arrow.Float64Type:
		return "double", nil
	case *arrow.StringType:
		return "string", nil
	case *arrow.FixedSizeListType:
		items, err := avroType(t.Elem())
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	default:
		return nil, fmt.Errorf("unsupported arrow type: %s", dt)
	}
}

// AvroSchema derives the Avro schema of records with the given Arrow
// schema. Field names are rewritten to valid Avro names; units are kept in
// the field doc.
func AvroSchema(schema *arrow.Schema) (string, error) {
	fields := make([]map[string]any, schema.NumFields())
	seen := make(map[string]bool)
	for i, f := range schema.Fields() {
		typ, err := avroType(f.Type)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", f.Name, err)
		}
		name := avroName(f.Name)
		if seen[name] {
			return "", fmt.Errorf("column %q: duplicate avro name %q", f.Name, name)
		}
		seen[name] = true

		field := map[string]any{"name": name, "type": typ}
		if unit, ok := f.Metadata.GetValue(UnitKey); ok {
			field["doc"] = unit
		}
		fields[i] = field
	}

	data, err := json.Marshal(map[string]any{
		"type":   "record",
		"name":   AvroRecordName,
		"fields": fields,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// avroValue returns element i of arr in the native form goavro encodes.
func avroValue(arr arrow.Array, i int) (any, error) {
	switch a := arr.(type) {
	case *array.Uint8:
		return int32(a.Value(i)), nil
	case *array.Int16:
		return int32(a.Value(i)), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Float32:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.FixedSizeList:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		out := make([]any, 0, end-start)
		for k := start; k < end; k++ {
			v, err := avroValue(values, int(k))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported arrow array: %T", arr)
	}
}

// WriteAvro writes records as a deflate-compressed Avro object container
// file. w is not closed.
func WriteAvro(w io.Writer, records ...arrow.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to write")
	}
	schema := records[0].Schema()

	avroSchema, err := AvroSchema(schema)
	if err != nil {
		return err
	}
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return fmt.Errorf("failed to create avro codec: %w", err)
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: "deflate",
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = avroName(f.Name)
	}

	for _, rec := range records {
		batch := make([]any, 0, rec.NumRows())
		for r := 0; r < int(rec.NumRows()); r++ {
			row := make(map[string]any, len(names))
			for c, name := range names {
				v, err := avroValue(rec.Column(c), r)
				if err != nil {
					return fmt.Errorf("column %q: %w", schema.Field(c).Name, err)
				}
				row[name] = v
			}
			batch = append(batch, row)
		}
		if len(batch) == 0 {
			continue
		}
		if err := ocf.Append(batch); err != nil {
			return fmt.Errorf("failed to append records: %w", err)
		}
	}
	return nil
}

// ReadAvro decodes every record of an Avro object container file.
func ReadAvro(r io.Reader) ([]map[string]any, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF reader: %w", err)
	}

	var out []map[string]any
	for ocf.Scan() {
		record, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		m, ok := record.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected record type %T", record)
		}
		out = append(out, m)
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("error reading avro file: %w", err)
	}
	return out, nil
}
