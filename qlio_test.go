package goqlio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/export"
	"github.com/go-qlio/go-qlio/fits"
	"github.com/go-qlio/go-qlio/text"
)

func newClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClientDefaults(t *testing.T) {
	c := newClient(t)
	cfg := c.Config()
	if cfg.Separator != " " {
		t.Errorf("Separator = %q, want %q", cfg.Separator, " ")
	}
	if cfg.LabelWidth != chunk.DefaultLabelWidth {
		t.Errorf("LabelWidth = %d, want %d", cfg.LabelWidth, chunk.DefaultLabelWidth)
	}
	if c.FileIO() == nil || c.Metrics() == nil {
		t.Error("client is missing its storage or counters")
	}
}

func TestNewClientInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"unknown format", []Option{WithFormat("hdf5")}},
		{"negative label width", []Option{WithLabelWidth(-1)}},
		{"negative filter rows", []Option{WithMaxFilterRows(-5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tt.opts...)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewClient() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func writeTable(t *testing.T, c *Client, path string) {
	t.Helper()
	ctx := context.Background()
	out, err := c.CreateOutput(ctx, path)
	if err != nil {
		t.Fatalf("CreateOutput() error = %v", err)
	}
	fields := []chunk.Field{
		{Name: "TIME", Type: chunk.TypeDouble, Unit: "s", VectorSize: 1},
		{Name: "ENERGY", Type: chunk.TypeInt32, Unit: "keV", VectorSize: 1},
	}
	if err := out.CreateTable("EVENTS", fields); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if err := out.WriteFloat64(0, []float64{1, 2, 3, 4}, 0, 3); err != nil {
		t.Fatalf("WriteFloat64() error = %v", err)
	}
	if err := out.WriteInt32(1, []int32{50, 150, 250, 90}, 0, 3); err != nil {
		t.Fatalf("WriteInt32() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestOpenInputDetectsFITS(t *testing.T) {
	dir := t.TempDir()
	c := newClient(t, WithLocalStorage(dir))
	ctx := context.Background()
	writeTable(t, c, "events.fits")

	format, err := c.DetectFormat(ctx, "events.fits")
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}
	if format != FormatFITS {
		t.Errorf("DetectFormat() = %q, want fits", format)
	}

	in, err := c.OpenInput(ctx, "events.fits")
	if err != nil {
		t.Fatalf("OpenInput() error = %v", err)
	}
	defer in.Close()

	if _, ok := in.(*fits.InputFile); !ok {
		t.Fatalf("OpenInput() returned %T, want *fits.InputFile", in)
	}
	got, err := in.ReadInt32(1, 0, 3)
	if err != nil {
		t.Fatalf("ReadInt32() error = %v", err)
	}
	if len(got) != 4 || got[2] != 250 {
		t.Errorf("ReadInt32() = %v", got)
	}
}

func TestOpenInputDetectsText(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "table.csv"), []byte("1,2\n3,4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newClient(t, WithLocalStorage(dir), WithSeparator(","))

	in, err := c.OpenInput(context.Background(), "table.csv")
	if err != nil {
		t.Fatalf("OpenInput() error = %v", err)
	}
	defer in.Close()

	if _, ok := in.(*text.InputFile); !ok {
		t.Fatalf("OpenInput() returned %T, want *text.InputFile", in)
	}
	got, err := in.ReadInt64(1, 0, 1)
	if err != nil {
		t.Fatalf("ReadInt64() error = %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("ReadInt64() = %v, want [2 4]", got)
	}
}

func TestOpenInputForcedFormat(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "short.txt"), []byte("1 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newClient(t, WithLocalStorage(dir), WithFormat(FormatFITS))

	_, err := c.OpenInput(context.Background(), "short.txt")
	if chunk.KindOf(err) != chunk.KindOpen {
		t.Errorf("OpenInput() error = %v, want an open error", err)
	}
}

func TestOpenInputMissing(t *testing.T) {
	c := newClient(t, WithLocalStorage(t.TempDir()))
	_, err := c.OpenInput(context.Background(), "missing.fits")
	if !errors.Is(err, chunk.ErrOpen) {
		t.Errorf("OpenInput() error = %v, want ErrOpen", err)
	}
}

func TestOpenInputUnknownScheme(t *testing.T) {
	c := newClient(t)
	_, err := c.OpenInput(context.Background(), "gs://bucket/events.fits")
	if err == nil || !strings.Contains(err.Error(), "gs") {
		t.Errorf("OpenInput() error = %v, want unknown scheme", err)
	}
}

func TestOpenOutputUpdates(t *testing.T) {
	dir := t.TempDir()
	c := newClient(t, WithLocalStorage(dir))
	ctx := context.Background()
	writeTable(t, c, "events.fits")

	out, err := c.OpenOutput(ctx, "events.fits")
	if err != nil {
		t.Fatalf("OpenOutput() error = %v", err)
	}
	if err := out.WriteInt32(1, []int32{999}, 0, 0); err != nil {
		t.Fatalf("WriteInt32() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	in, err := c.OpenFITS(ctx, "events.fits")
	if err != nil {
		t.Fatalf("OpenFITS() error = %v", err)
	}
	defer in.Close()
	got, err := in.ReadInt32(1, 0, 1)
	if err != nil {
		t.Fatalf("ReadInt32() error = %v", err)
	}
	if got[0] != 999 || got[1] != 150 {
		t.Errorf("ReadInt32() = %v, want [999 150]", got)
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	c := newClient(t, WithLocalStorage(dir), WithRegisterer(reg))
	ctx := context.Background()
	writeTable(t, c, "events.fits")

	in, err := c.OpenFITS(ctx, "events.fits")
	if err != nil {
		t.Fatalf("OpenFITS() error = %v", err)
	}
	defer in.Close()
	if err := in.ApplyFilter("ENERGY > 100"); err != nil {
		t.Fatalf("ApplyFilter() error = %v", err)
	}

	location, err := c.Export(ctx, in, "out", export.FormatAvro)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasPrefix(location, "out/EVENTS-") {
		t.Errorf("Export() location = %q", location)
	}

	f, err := os.Open(filepath.Join(dir, location))
	if err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	defer f.Close()
	rows, err := export.ReadAvro(f)
	if err != nil {
		t.Fatalf("ReadAvro() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("exported %d rows, want 2", len(rows))
	}

	if got := testutil.ToFloat64(c.Metrics().BytesWritten.WithLabelValues("avro")); got <= 0 {
		t.Errorf("avro bytes written = %v, want > 0", got)
	}
}
