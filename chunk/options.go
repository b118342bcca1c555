package chunk

import (
	"github.com/go-kit/log"

	qio "github.com/go-qlio/go-qlio/io"
	"github.com/go-qlio/go-qlio/metrics"
)

// Options carries the collaborators shared by backends.
type Options struct {
	FileIO     qio.FileIO
	Logger     log.Logger
	Metrics    *metrics.Metrics
	LabelWidth int

	// MaxFilterRows caps the row window of filters built from a selection
	// string. Zero keeps the filter default.
	MaxFilterRows int64
}

// Option is a function that configures Options.
type Option func(*Options)

// DefaultOptions returns options backed by the local filesystem, a no-op
// logger and unregistered counters.
func DefaultOptions() *Options {
	return &Options{
		FileIO:     qio.NewLocalFileIO(""),
		Logger:     log.NewNopLogger(),
		Metrics:    metrics.NewMetrics(nil),
		LabelWidth: DefaultLabelWidth,
	}
}

// NewOptions applies opts over DefaultOptions.
func NewOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.FileIO == nil {
		o.FileIO = qio.NewLocalFileIO("")
	}
	return o
}

// WithFileIO sets the storage layer.
func WithFileIO(fio qio.FileIO) Option {
	return func(o *Options) {
		o.FileIO = fio
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics sets the counters. A nil value disables counting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithLabelWidth sets the maximum length of table names, column names and
// units written to headers. Zero or less disables truncation.
func WithLabelWidth(width int) Option {
	return func(o *Options) {
		o.LabelWidth = width
	}
}

// WithMaxFilterRows sets the row window limit of selection filters.
func WithMaxFilterRows(n int64) Option {
	return func(o *Options) {
		o.MaxFilterRows = n
	}
}
