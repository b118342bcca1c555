package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	goqlio "github.com/go-qlio/go-qlio"
	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/export"
)

func writeEvents(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.fits")

	c, err := goqlio.NewClient(ctx)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
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
	if err := out.WriteKeyword("CREAT_ID", "AG01", ""); err != nil {
		t.Fatalf("WriteKeyword() error = %v", err)
	}
	if err := out.WriteKeyword("TM_ID", "3901", ""); err != nil {
		t.Fatalf("WriteKeyword() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), strings.NewReader(""), &stdout, &stderr, append([]string{"qlio"}, args...), nil)
	return stdout.String(), stderr.String(), code
}

func TestRunUsage(t *testing.T) {
	stdout, _, code := run(t)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	for _, name := range []string{"info", "dump", "ddl", "export", "print-config"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("usage does not list %q:\n%s", name, stdout)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	_, stderr, code := run(t, "frobnicate")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "unknown command: frobnicate") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunInfo(t *testing.T) {
	path := writeEvents(t)

	stdout, stderr, code := run(t, "info", path)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 4 {
		t.Fatalf("info printed %d lines, want 4:\n%s", len(lines), stdout)
	}
	if lines[0] != "chunk 0: image" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "chunk 1: table EVENTS rows=4 columns=2" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if !strings.Contains(lines[3], "ENERGY") || !strings.Contains(lines[3], "keV") {
		t.Errorf("line 3 = %q", lines[3])
	}
}

func TestRunDump(t *testing.T) {
	path := writeEvents(t)

	stdout, stderr, code := run(t, "dump", path, "--filter", "ENERGY > 100")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	want := "TIME\tENERGY\n2\t150\n3\t250\n"
	if diff := cmp.Diff(want, stdout); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDumpRange(t *testing.T) {
	path := writeEvents(t)

	stdout, stderr, code := run(t, "dump", path, "--first", "3")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	want := "TIME\tENERGY\n4\t90\n"
	if diff := cmp.Diff(want, stdout); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDumpBadChunk(t *testing.T) {
	path := writeEvents(t)

	_, stderr, code := run(t, "dump", path, "--chunk", "7")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "error:") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunDDL(t *testing.T) {
	path := writeEvents(t)

	stdout, stderr, code := run(t, "ddl", path)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	for _, want := range []string{`name="AG01_EVENTS"`, `description="3901"`, `name="ENERGY"`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("ddl output missing %s:\n%s", want, stdout)
		}
	}
}

func TestRunExport(t *testing.T) {
	path := writeEvents(t)
	dir := t.TempDir()

	stdout, stderr, code := run(t, "export", path, "--to", "avro", "--out", dir)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	location := strings.TrimSpace(stdout)
	if !strings.HasPrefix(location, dir+"/EVENTS-") || !strings.HasSuffix(location, ".avro") {
		t.Fatalf("export location = %q", location)
	}

	f, err := os.Open(location)
	if err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	defer f.Close()
	rows, err := export.ReadAvro(f)
	if err != nil {
		t.Fatalf("ReadAvro() error = %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("exported %d rows, want 4", len(rows))
	}
}

func TestRunExportRequiresOut(t *testing.T) {
	path := writeEvents(t)

	_, stderr, code := run(t, "export", path)
	if code != 1 || !strings.Contains(stderr, "--out is required") {
		t.Errorf("exit code = %d, stderr = %q", code, stderr)
	}
}

func TestRunPrintConfig(t *testing.T) {
	stdout, stderr, code := run(t, "--separator", ",", "print-config")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, `"separator": ","`) {
		t.Errorf("print-config output:\n%s", stdout)
	}
}

func TestRunConfigFromEnv(t *testing.T) {
	path := writeConfig(t, `{"label_width": 4}`)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), strings.NewReader(""), &stdout, &stderr,
		[]string{"qlio", "print-config"}, map[string]string{ConfigEnv: path})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"label_width": 4`) {
		t.Errorf("print-config output:\n%s", stdout.String())
	}
}
