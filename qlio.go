package goqlio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/export"
	"github.com/go-qlio/go-qlio/fits"
	qio "github.com/go-qlio/go-qlio/io"
	"github.com/go-qlio/go-qlio/metrics"
	"github.com/go-qlio/go-qlio/text"
)

// fitsSignature starts the primary header of every FITS file.
var fitsSignature = []byte("SIMPLE  =")

// Client is the main entry point: it owns the storage layer, the counters
// and the logger shared by the files it opens.
type Client struct {
	config  *Config
	io      qio.FileIO
	metrics *metrics.Metrics
	logger  log.Logger
}

// NewClient creates a new client with the given configuration. Counters are
// registered with the configured registerer, so a registerer can back only
// one client.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = log.NewNopLogger()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	fileIO, err := createFileIO(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create file IO: %w", err)
	}

	return &Client{
		config:  config,
		io:      fileIO,
		metrics: metrics.NewMetrics(config.Registerer),
		logger:  config.Logger,
	}, nil
}

// validateConfig validates the client configuration.
func validateConfig(config *Config) error {
	switch config.Format {
	case FormatAuto, FormatFITS, FormatText:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrUnknownFormat, config.Format)
	}
	if config.LabelWidth < 0 {
		return fmt.Errorf("%w: label width %d is negative", ErrInvalidConfig, config.LabelWidth)
	}
	if config.MaxFilterRows < 0 {
		return fmt.Errorf("%w: max filter rows %d is negative", ErrInvalidConfig, config.MaxFilterRows)
	}
	return nil
}

// createFileIO routes plain and file:// paths to the local filesystem and,
// when configured, s3:// and s3a:// paths to S3.
func createFileIO(ctx context.Context, config *Config) (qio.FileIO, error) {
	var basePath string
	if config.LocalConfig != nil {
		basePath = config.LocalConfig.BasePath
	}
	router := qio.NewRouterFileIO(qio.NewLocalFileIO(basePath))

	if config.S3Config != nil {
		s3, err := qio.NewS3FileIO(ctx, &qio.S3Config{
			Region:          config.S3Config.Region,
			Endpoint:        config.S3Config.Endpoint,
			AccessKeyID:     config.S3Config.AccessKeyID,
			SecretAccessKey: config.S3Config.SecretAccessKey,
			SessionToken:    config.S3Config.SessionToken,
			ForcePathStyle:  config.S3Config.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		router.Register("s3", s3)
		router.Register("s3a", s3)
	}
	return router, nil
}

// Config returns the client configuration.
func (c *Client) Config() *Config {
	return c.config
}

// FileIO returns the file I/O handler.
func (c *Client) FileIO() qio.FileIO {
	return c.io
}

// Metrics returns the client counters.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

func (c *Client) chunkOptions() []chunk.Option {
	return []chunk.Option{
		chunk.WithFileIO(c.io),
		chunk.WithLogger(c.logger),
		chunk.WithMetrics(c.metrics),
		chunk.WithLabelWidth(c.config.LabelWidth),
		chunk.WithMaxFilterRows(c.config.MaxFilterRows),
	}
}

// DetectFormat reports whether path holds a FITS file by its first card.
// Anything else is taken as text.
func (c *Client) DetectFormat(ctx context.Context, path string) (Format, error) {
	in, err := c.io.Open(ctx, path)
	if err != nil {
		return "", err
	}
	r, err := in.OpenRange(ctx, 0, int64(len(fitsSignature)))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer r.Close()

	head := make([]byte, len(fitsSignature))
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if bytes.Equal(head[:n], fitsSignature) {
		return FormatFITS, nil
	}
	return FormatText, nil
}

// OpenInput opens path with the configured format, detecting it when the
// client is set to FormatAuto.
func (c *Client) OpenInput(ctx context.Context, path string) (chunk.InputFile, error) {
	format := c.config.Format
	if format == FormatAuto {
		var err error
		if format, err = c.DetectFormat(ctx, path); err != nil {
			return nil, chunk.OpenError("OpenInput", path, err)
		}
		level.Debug(c.logger).Log("msg", "detected format", "path", path, "format", format)
	}

	switch format {
	case FormatFITS:
		return c.OpenFITS(ctx, path)
	case FormatText:
		return c.OpenText(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// OpenFITS opens a FITS input.
func (c *Client) OpenFITS(ctx context.Context, path string) (*fits.InputFile, error) {
	f := fits.NewInputFile(c.chunkOptions()...)
	if err := f.Open(ctx, path); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenText opens a text input with the configured separator.
func (c *Client) OpenText(ctx context.Context, path string) (*text.InputFile, error) {
	f := text.NewInputFile(c.config.Separator, c.chunkOptions()...)
	if err := f.Open(ctx, path); err != nil {
		return nil, err
	}
	return f, nil
}

// CreateOutput starts a new FITS file at path. It replaces any existing
// file when closed.
func (c *Client) CreateOutput(ctx context.Context, path string) (*fits.OutputFile, error) {
	f := fits.NewOutputFile(c.chunkOptions()...)
	if err := f.Create(ctx, path); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenOutput opens an existing FITS file for update.
func (c *Client) OpenOutput(ctx context.Context, path string) (*fits.OutputFile, error) {
	f := fits.NewOutputFile(c.chunkOptions()...)
	if err := f.Open(ctx, path); err != nil {
		return nil, err
	}
	return f, nil
}

// Export writes every row of the selected chunk of in to a new file under
// dir and returns its location. A row filter set on in applies.
func (c *Client) Export(ctx context.Context, in chunk.InputFile, dir string, format export.Format) (string, error) {
	rec, err := export.ReadAll(in, memory.NewGoAllocator())
	if err != nil {
		return "", err
	}
	defer rec.Release()

	name := export.AvroRecordName
	if named, ok := in.(interface{ ChunkName() (string, error) }); ok {
		if n, err := named.ChunkName(); err == nil && n != "" {
			name = n
		}
	}

	location := export.FilePath(dir, name, format)
	n, err := export.WriteFile(ctx, c.io, location, format, rec)
	if err != nil {
		return "", err
	}
	c.metrics.AddBytesWritten(string(format), n)
	level.Info(c.logger).Log("msg", "exported chunk", "path", in.Path(), "location", location, "rows", rec.NumRows(), "bytes", n)
	return location, nil
}
