package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qlio.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `{
  // comma separated tables
  "separator": ",",
  "label_width": 0,
  "log_level": "debug",
  "s3": {
    "region": "eu-south-1",
    "force_path_style": true, // minio
  },
}`)

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := DefaultConfig()
	want.Separator = ","
	want.LabelWidth = 0
	want.LogLevel = "debug"
	want.S3 = &S3Config{Region: "eu-south-1", ForcePathStyle: true}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `{"format": "text", "separator": ";"}`)

	cfg, err := LoadConfig(path, func(c *Config) {
		c.Format = "fits"
	})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Format != "fits" {
		t.Errorf("Format = %q, want flag value fits", cfg.Format)
	}
	if cfg.Separator != ";" {
		t.Errorf("Separator = %q, want file value ;", cfg.Separator)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"malformed", `{"format": `, errConfigInvalid},
		{"unknown format", `{"format": "hdf5"}`, errConfigInvalid},
		{"unknown level", `{"log_level": "trace"}`, errConfigInvalid},
		{"empty separator", `{"separator": ""}`, errConfigInvalid},
		{"negative width", `{"label_width": -1}`, errConfigInvalid},
		{"negative rows", `{"max_filter_rows": -1}`, errConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadConfig() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.jsonc"), nil)
	if !errors.Is(err, errConfigFileNotFound) {
		t.Errorf("LoadConfig() error = %v, want errConfigFileNotFound", err)
	}
}

func TestFormatConfigMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.S3 = &S3Config{AccessKeyID: "AKIA123", SecretAccessKey: "secret", SessionToken: "token"}

	s, err := FormatConfig(cfg)
	if err != nil {
		t.Fatalf("FormatConfig() error = %v", err)
	}
	if strings.Contains(s, `"secret"`) || strings.Contains(s, `"token"`) {
		t.Errorf("FormatConfig() leaked a secret:\n%s", s)
	}
	if !strings.Contains(s, "AKIA123") {
		t.Errorf("FormatConfig() dropped the access key id:\n%s", s)
	}
	if cfg.S3.SecretAccessKey != "secret" {
		t.Error("FormatConfig() modified its argument")
	}
}
