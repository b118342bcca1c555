package goqlio

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/filter"
)

// Format selects the backend used to read a file.
type Format string

const (
	// FormatAuto detects FITS by its SIMPLE card and falls back to text.
	FormatAuto Format = ""
	// FormatFITS reads FITS files.
	FormatFITS Format = "fits"
	// FormatText reads delimiter-separated text tables.
	FormatText Format = "text"
)

// Config holds the client configuration.
type Config struct {
	// Input format; FormatAuto sniffs each file.
	Format Format

	// Field separator characters of text tables.
	Separator string

	// Maximum length of table names, column names and units written to
	// FITS headers.
	LabelWidth int

	// Row window limit of selection filters.
	MaxFilterRows int64

	Logger     log.Logger
	Registerer prometheus.Registerer

	// Storage configuration. Local paths are always served; S3 is added
	// when S3Config is set.
	S3Config    *S3Config
	LocalConfig *LocalConfig
}

// S3Config holds S3-specific configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Endpoint        string // For MinIO, LocalStack, etc.
	ForcePathStyle  bool
}

// LocalConfig holds local filesystem configuration.
type LocalConfig struct {
	BasePath string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Format:        FormatAuto,
		Separator:     " ",
		LabelWidth:    chunk.DefaultLabelWidth,
		MaxFilterRows: filter.DefaultMaxRows,
		Logger:        log.NewNopLogger(),
	}
}

// Option is a functional option for client configuration.
type Option func(*Config)

// WithFormat forces the input format instead of detecting it.
func WithFormat(f Format) Option {
	return func(c *Config) {
		c.Format = f
	}
}

// WithSeparator sets the field separator characters of text tables.
func WithSeparator(sep string) Option {
	return func(c *Config) {
		c.Separator = sep
	}
}

// WithLabelWidth sets the maximum header label length. Zero disables
// truncation.
func WithLabelWidth(width int) Option {
	return func(c *Config) {
		c.LabelWidth = width
	}
}

// WithMaxFilterRows sets the row window limit of selection filters.
func WithMaxFilterRows(n int64) Option {
	return func(c *Config) {
		c.MaxFilterRows = n
	}
}

// WithLogger sets the logger handed to every file.
func WithLogger(logger log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRegisterer registers the client counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// WithS3 enables s3:// and s3a:// paths.
func WithS3(cfg *S3Config) Option {
	return func(c *Config) {
		c.S3Config = cfg
	}
}

// WithLocalStorage resolves relative local paths against basePath.
func WithLocalStorage(basePath string) Option {
	return func(c *Config) {
		c.LocalConfig = &LocalConfig{BasePath: basePath}
	}
}
