package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"

	qio "github.com/go-qlio/go-qlio/io"
)

// Format is an export file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatAvro    Format = "avro"
)

// ErrUnknownFormat is returned for an unrecognised export format name.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat resolves a format name, ignoring case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatParquet:
		return FormatParquet, nil
	case FormatAvro:
		return FormatAvro, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Ext returns the file extension of the format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// FileName returns a unique file name for an export of the named chunk:
// {name}-{uuid}.{ext}.
func FileName(name string, format Format) string {
	if name == "" {
		name = AvroRecordName
	}
	return fmt.Sprintf("%s-%s.%s", avroName(name), uuid.New().String(), format.Ext())
}

// FilePath joins dir and a fresh FileName. dir may be a URI such as
// s3://bucket/prefix.
func FilePath(dir, name string, format Format) string {
	file := FileName(name, format)
	if dir == "" {
		return file
	}
	return strings.TrimRight(dir, "/") + "/" + file
}

// WriteFile encodes records in format and stores them at location through
// fio, replacing any existing file. It returns the number of bytes stored.
func WriteFile(ctx context.Context, fio qio.FileIO, location string, format Format, records ...arrow.Record) (int64, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatParquet:
		err = WriteParquet(&buf, records...)
	case FormatAvro:
		err = WriteAvro(&buf, records...)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
	if err != nil {
		return 0, err
	}

	if err := qio.WriteFile(ctx, fio, location, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("failed to store %s: %w", location, err)
	}
	return int64(buf.Len()), nil
}
