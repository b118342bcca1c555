package export

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/go-cmp/cmp"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/filter"
	"github.com/go-qlio/go-qlio/fits"
	qio "github.com/go-qlio/go-qlio/io"
)

var eventFields = []chunk.Field{
	{Name: "TIME", Type: chunk.TypeDouble, Unit: "s", VectorSize: 1},
	{Name: "PH", Type: chunk.TypeUInt8, VectorSize: 1},
	{Name: "ENERGY", Type: chunk.TypeFloat, Unit: "keV", VectorSize: 1},
	{Name: "POS", Type: chunk.TypeInt16, VectorSize: 2},
	{Name: "MODE", Type: chunk.TypeString, VectorSize: 4},
}

// writeEvents writes a primary image followed by a three-row EVENTS table.
func writeEvents(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.fits")

	out := fits.NewOutputFile()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	must(out.Create(context.Background(), path))
	must(out.CreateTable("EVENTS", eventFields))
	must(out.WriteKeyword("CREAT_ID", "AG01", "creator"))
	must(out.WriteKeyword("TM_ID", "3901", "telemetry packet"))
	must(out.WriteFloat64(0, []float64{10.5, 11.5, 12.5}, 0, 2))
	must(out.WriteUint8(1, []uint8{1, 2, 3}, 0, 2))
	must(out.WriteFloat32(2, []float32{50, 150, 250}, 0, 2))
	must(out.WriteInt16Vector(3, [][]int16{{1, 2}, {3, 4}, {5, 6}}, 0, 2))
	must(out.WriteString(4, []string{"SPOT", "GRID", "SPOT"}, 0, 2))
	must(out.Close())
	return path
}

func openEvents(t *testing.T) *fits.InputFile {
	t.Helper()
	in := fits.NewInputFile()
	if err := in.Open(context.Background(), writeEvents(t)); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if in.IsOpened() {
			in.Close()
		}
	})
	return in
}

func TestSchema(t *testing.T) {
	schema, err := Schema(eventFields)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}

	want := []arrow.DataType{
		arrow.PrimitiveTypes.Float64,
		arrow.PrimitiveTypes.Uint8,
		arrow.PrimitiveTypes.Float32,
		arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Int16),
		arrow.BinaryTypes.String,
	}
	if schema.NumFields() != len(want) {
		t.Fatalf("NumFields() = %d, want %d", schema.NumFields(), len(want))
	}
	for i, f := range schema.Fields() {
		if f.Name != eventFields[i].Name {
			t.Errorf("field %d name = %q, want %q", i, f.Name, eventFields[i].Name)
		}
		if !arrow.TypeEqual(f.Type, want[i]) {
			t.Errorf("field %q type = %s, want %s", f.Name, f.Type, want[i])
		}
	}

	unit, ok := schema.Field(2).Metadata.GetValue(UnitKey)
	if !ok || unit != "keV" {
		t.Errorf("ENERGY unit = %q, %v; want keV", unit, ok)
	}
	if _, ok := schema.Field(1).Metadata.GetValue(UnitKey); ok {
		t.Error("PH should carry no unit")
	}
}

func TestSchemaRejectsUnknownType(t *testing.T) {
	_, err := Schema([]chunk.Field{{Name: "X", Type: chunk.FieldType(99), VectorSize: 1}})
	if err == nil {
		t.Fatal("Schema() expected error for unknown type")
	}
}

func TestReadRecord(t *testing.T) {
	in := openEvents(t)

	rec, err := ReadAll(in, memory.NewGoAllocator())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 3 || rec.NumCols() != 5 {
		t.Fatalf("record shape = %dx%d, want 3x5", rec.NumRows(), rec.NumCols())
	}

	energy := rec.Column(2).(*array.Float32).Float32Values()
	if diff := cmp.Diff([]float32{50, 150, 250}, energy); diff != "" {
		t.Errorf("ENERGY mismatch (-want +got):\n%s", diff)
	}

	pos := rec.Column(3).(*array.FixedSizeList)
	values := pos.ListValues().(*array.Int16).Int16Values()
	if diff := cmp.Diff([]int16{1, 2, 3, 4, 5, 6}, values); diff != "" {
		t.Errorf("POS mismatch (-want +got):\n%s", diff)
	}

	mode := rec.Column(4).(*array.String)
	if mode.Value(1) != "GRID" {
		t.Errorf("MODE[1] = %q, want GRID", mode.Value(1))
	}
}

func TestReadRecordFiltered(t *testing.T) {
	in := openEvents(t)
	in.SetFilter(filter.NewExprFilter(filter.Gt("ENERGY", 100)))

	rec, err := ReadRecord(in, 0, 2, nil)
	if err != nil {
		t.Fatalf("ReadRecord() error = %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", rec.NumRows())
	}
	ph := rec.Column(1).(*array.Uint8).Uint8Values()
	if diff := cmp.Diff([]uint8{2, 3}, ph); diff != "" {
		t.Errorf("PH mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRecordOnImage(t *testing.T) {
	in := openEvents(t)
	if err := in.MoveToChunk(0); err != nil {
		t.Fatalf("MoveToChunk() error = %v", err)
	}
	_, err := ReadAll(in, nil)
	if chunk.StatusOf(err) != chunk.StatusNotTable {
		t.Errorf("ReadAll() status = %d, want %d", chunk.StatusOf(err), chunk.StatusNotTable)
	}
}

func readEventsRecord(t *testing.T) arrow.Record {
	t.Helper()
	rec, err := ReadAll(openEvents(t), nil)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	t.Cleanup(rec.Release)
	return rec
}

func TestWriteParquet(t *testing.T) {
	rec := readEventsRecord(t)

	var buf bytes.Buffer
	if err := WriteParquet(&buf, rec); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 3 {
		t.Errorf("NumRows() = %d, want 3", tbl.NumRows())
	}
	got := make([]string, 0, tbl.NumCols())
	for _, f := range tbl.Schema().Fields() {
		got = append(got, f.Name)
	}
	if diff := cmp.Diff([]string{"TIME", "PH", "ENERGY", "POS", "MODE"}, got); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteParquetNoRecords(t *testing.T) {
	if err := WriteParquet(&bytes.Buffer{}); err == nil {
		t.Error("WriteParquet() expected error without records")
	}
}

func TestAvroRoundTrip(t *testing.T) {
	rec := readEventsRecord(t)

	var buf bytes.Buffer
	if err := WriteAvro(&buf, rec); err != nil {
		t.Fatalf("WriteAvro() error = %v", err)
	}

	rows, err := ReadAvro(&buf)
	if err != nil {
		t.Fatalf("ReadAvro() error = %v", err)
	}
	want := []map[string]any{
		{"TIME": 10.5, "PH": int32(1), "ENERGY": float32(50), "POS": []any{int32(1), int32(2)}, "MODE": "SPOT"},
		{"TIME": 11.5, "PH": int32(2), "ENERGY": float32(150), "POS": []any{int32(3), int32(4)}, "MODE": "GRID"},
		{"TIME": 12.5, "PH": int32(3), "ENERGY": float32(250), "POS": []any{int32(5), int32(6)}, "MODE": "SPOT"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("avro rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAvroSchema(t *testing.T) {
	schema, err := Schema([]chunk.Field{
		{Name: "TIME-SEC", Type: chunk.TypeDouble, Unit: "s", VectorSize: 1},
		{Name: "2D", Type: chunk.TypeInt64, VectorSize: 1},
	})
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	got, err := AvroSchema(schema)
	if err != nil {
		t.Fatalf("AvroSchema() error = %v", err)
	}
	want := `{"fields":[{"doc":"s","name":"TIME_SEC","type":"double"},{"name":"_2D","type":"long"}],"name":"chunk","type":"record"}`
	if got != want {
		t.Errorf("AvroSchema() = %s\nwant %s", got, want)
	}
}

func TestAvroSchemaDuplicateNames(t *testing.T) {
	schema, err := Schema([]chunk.Field{
		{Name: "A-B", Type: chunk.TypeDouble, VectorSize: 1},
		{Name: "A_B", Type: chunk.TypeDouble, VectorSize: 1},
	})
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if _, err := AvroSchema(schema); err == nil {
		t.Error("AvroSchema() expected duplicate name error")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"parquet", FormatParquet, false},
		{" AVRO ", FormatAvro, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("ParseFormat(%q) error = %v, want ErrUnknownFormat", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	a := FileName("EVENTS", FormatParquet)
	b := FileName("EVENTS", FormatParquet)
	if a == b {
		t.Errorf("FileName() returned %q twice", a)
	}
	if !strings.HasPrefix(a, "EVENTS-") || !strings.HasSuffix(a, ".parquet") {
		t.Errorf("FileName() = %q", a)
	}

	p := FilePath("s3://bucket/out/", "EVENTS", FormatAvro)
	if !strings.HasPrefix(p, "s3://bucket/out/EVENTS-") || !strings.HasSuffix(p, ".avro") {
		t.Errorf("FilePath() = %q", p)
	}
}

func TestWriteFile(t *testing.T) {
	rec := readEventsRecord(t)
	fio := qio.NewLocalFileIO(t.TempDir())
	ctx := context.Background()

	location := FilePath("out", "EVENTS", FormatAvro)
	n, err := WriteFile(ctx, fio, location, FormatAvro, rec)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := qio.ReadFile(ctx, fio, location)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if int64(len(data)) != n {
		t.Errorf("stored %d bytes, WriteFile reported %d", len(data), n)
	}
	rows, err := ReadAvro(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadAvro() error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("len(rows) = %d, want 3", len(rows))
	}

	if _, err := WriteFile(ctx, fio, location, Format("csv"), rec); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("WriteFile(csv) error = %v, want ErrUnknownFormat", err)
	}
}

func TestBuildDDL(t *testing.T) {
	in := openEvents(t)

	doc, err := BuildDDL(in)
	if err != nil {
		t.Fatalf("BuildDDL() error = %v", err)
	}
	want := []DDLType{{
		Name:        "AG01_EVENTS",
		Description: "3901",
		Columns: []DDLColumn{
			{Name: "TIME", Type: "float64", Unit: "s"},
			{Name: "PH", Type: "byte"},
			{Name: "ENERGY", Type: "float32", Unit: "keV"},
			{Name: "POS", Type: "int16", ArraySize: 2},
			{Name: "MODE", Type: "string", ArraySize: 4},
		},
	}}
	if diff := cmp.Diff(want, doc.Types); diff != "" {
		t.Errorf("BuildDDL() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDDL(t *testing.T) {
	in := openEvents(t)

	var buf bytes.Buffer
	if err := WriteDDL(&buf, in); err != nil {
		t.Fatalf("WriteDDL() error = %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, xml.Header) {
		t.Errorf("WriteDDL() output lacks XML header:\n%s", out)
	}
	for _, frag := range []string{
		`<ddl xmlns="http://oats.inaf.it/das">`,
		`<type name="AG01_EVENTS" description="3901">`,
		`<column name="POS" type="int16" arraysize="2"></column>`,
	} {
		if !strings.Contains(out, frag) {
			t.Errorf("WriteDDL() output missing %s:\n%s", frag, out)
		}
	}

	var back DDL
	if err := xml.Unmarshal([]byte(strings.TrimPrefix(out, xml.Header)), &back); err != nil {
		t.Fatalf("xml.Unmarshal() error = %v", err)
	}
	if len(back.Types) != 1 || len(back.Types[0].Columns) != 5 {
		t.Errorf("decoded ddl = %+v", back)
	}
}
