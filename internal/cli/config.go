package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/tailscale/hujson"

	goqlio "github.com/go-qlio/go-qlio"
	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/filter"
)

// ConfigEnv names a config file when --config is not given.
const ConfigEnv = "QLIO_CONFIG"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config")
)

// Config holds all configuration options.
type Config struct {
	Format        string    `json:"format"`
	Separator     string    `json:"separator"`
	LabelWidth    int       `json:"label_width"`
	MaxFilterRows int64     `json:"max_filter_rows"`
	LogLevel      string    `json:"log_level"`
	S3            *S3Config `json:"s3,omitempty"`
}

// S3Config holds the S3 storage settings.
type S3Config struct {
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`
	ForcePathStyle  bool   `json:"force_path_style,omitempty"`
}

// fileConfig mirrors Config with optional fields, so that a file can set a
// value to its zero.
type fileConfig struct {
	Format        *string   `json:"format"`
	Separator     *string   `json:"separator"`
	LabelWidth    *int      `json:"label_width"`
	MaxFilterRows *int64    `json:"max_filter_rows"`
	LogLevel      *string   `json:"log_level"`
	S3            *S3Config `json:"s3"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Format:        "auto",
		Separator:     " ",
		LabelWidth:    chunk.DefaultLabelWidth,
		MaxFilterRows: filter.DefaultMaxRows,
		LogLevel:      "info",
	}
}

// LoadConfig resolves the configuration with the following precedence
// (highest wins):
// 1. Defaults
// 2. Config file at path (if non-empty)
// 3. CLI overrides.
func LoadConfig(path string, overrides func(*Config)) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}
			return Config{}, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		fc, err := parseConfig(data)
		if err != nil {
			return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
		}
		cfg = mergeConfig(cfg, fc)
	}

	if overrides != nil {
		overrides(&cfg)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseConfig(data []byte) (fileConfig, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return fc, nil
}

func mergeConfig(base Config, overlay fileConfig) Config {
	if overlay.Format != nil {
		base.Format = *overlay.Format
	}
	if overlay.Separator != nil {
		base.Separator = *overlay.Separator
	}
	if overlay.LabelWidth != nil {
		base.LabelWidth = *overlay.LabelWidth
	}
	if overlay.MaxFilterRows != nil {
		base.MaxFilterRows = *overlay.MaxFilterRows
	}
	if overlay.LogLevel != nil {
		base.LogLevel = *overlay.LogLevel
	}
	if overlay.S3 != nil {
		s3 := *overlay.S3
		base.S3 = &s3
	}
	return base
}

func validateConfig(cfg Config) error {
	if _, err := parseFormat(cfg.Format); err != nil {
		return err
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Separator == "" {
		return fmt.Errorf("%w: separator cannot be empty", errConfigInvalid)
	}
	if cfg.LabelWidth < 0 {
		return fmt.Errorf("%w: label_width cannot be negative", errConfigInvalid)
	}
	if cfg.MaxFilterRows < 0 {
		return fmt.Errorf("%w: max_filter_rows cannot be negative", errConfigInvalid)
	}
	return nil
}

func parseFormat(s string) (goqlio.Format, error) {
	switch s {
	case "", "auto":
		return goqlio.FormatAuto, nil
	case "fits":
		return goqlio.FormatFITS, nil
	case "text":
		return goqlio.FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want auto, fits or text)", errConfigInvalid, s)
	}
}

func parseLevel(s string) (level.Option, error) {
	switch s {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, fmt.Errorf("%w: unknown log_level %q (want debug, info, warn or error)", errConfigInvalid, s)
	}
}

// NewLogger returns a logfmt logger writing to w, filtered at the
// configured level.
func (c Config) NewLogger(w io.Writer) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	allow, err := parseLevel(c.LogLevel)
	if err != nil {
		allow = level.AllowInfo()
	}
	return level.NewFilter(logger, allow)
}

// ClientOptions translates the configuration into client options.
func (c Config) ClientOptions(logger log.Logger) []goqlio.Option {
	format, _ := parseFormat(c.Format)
	opts := []goqlio.Option{
		goqlio.WithFormat(format),
		goqlio.WithSeparator(c.Separator),
		goqlio.WithLabelWidth(c.LabelWidth),
		goqlio.WithMaxFilterRows(c.MaxFilterRows),
		goqlio.WithLogger(logger),
	}
	if c.S3 != nil {
		opts = append(opts, goqlio.WithS3(&goqlio.S3Config{
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			SessionToken:    c.S3.SessionToken,
			ForcePathStyle:  c.S3.ForcePathStyle,
		}))
	}
	return opts
}

// FormatConfig returns the config as formatted JSON with secrets masked.
func FormatConfig(cfg Config) (string, error) {
	if cfg.S3 != nil {
		s3 := *cfg.S3
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = "********"
		}
		if s3.SessionToken != "" {
			s3.SessionToken = "********"
		}
		cfg.S3 = &s3
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}
	return string(data), nil
}
