// Package io provides the storage layer under chunked files: plain local
// paths by default, S3 objects for s3:// locations.
package io

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// FileIO is the interface for file operations.
type FileIO interface {
	// Open opens a file for reading.
	Open(ctx context.Context, path string) (InputFile, error)

	// Create creates a new file for writing.
	Create(ctx context.Context, path string) (OutputFile, error)

	// Delete deletes a file.
	Delete(ctx context.Context, path string) error

	// Exists checks if a file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Properties returns the properties of this FileIO.
	Properties() map[string]string
}

// InputFile represents a readable file.
type InputFile interface {
	// Location returns the file location.
	Location() string

	// Exists checks if the file exists.
	Exists(ctx context.Context) (bool, error)

	// Length returns the file length in bytes.
	Length(ctx context.Context) (int64, error)

	// Open opens the file for reading.
	Open(ctx context.Context) (io.ReadCloser, error)

	// OpenRange opens a range of the file for reading.
	OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// OutputFile represents a writable file. Nothing is visible at the location
// until the writer returned by Create or CreateOverwrite is closed.
type OutputFile interface {
	// Location returns the file location.
	Location() string

	// Create creates the file for writing, failing if it exists.
	Create(ctx context.Context) (io.WriteCloser, error)

	// CreateOverwrite creates or overwrites the file.
	CreateOverwrite(ctx context.Context) (io.WriteCloser, error)

	// ToInputFile converts this to an InputFile after writing.
	ToInputFile() InputFile
}

// ReadFile reads the whole content at path.
func ReadFile(ctx context.Context, fio FileIO, path string) ([]byte, error) {
	in, err := fio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	r, err := in.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile replaces the content at path with data.
func WriteFile(ctx context.Context, fio FileIO, path string, data []byte) error {
	out, err := fio.Create(ctx, path)
	if err != nil {
		return err
	}
	w, err := out.CreateOverwrite(ctx)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return w.Close()
}

// Scheme returns the URI scheme of path, or "" for plain paths.
func Scheme(path string) string {
	i := strings.Index(path, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(path[:i])
}
