package io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// LocalFileIO implements FileIO for local filesystem.
type LocalFileIO struct {
	basePath   string
	properties map[string]string
}

// NewLocalFileIO creates a new local file I/O handler. Relative paths are
// resolved against basePath when it is not empty.
func NewLocalFileIO(basePath string) *LocalFileIO {
	props := make(map[string]string)
	if basePath != "" {
		props["base-path"] = basePath
	}
	return &LocalFileIO{
		basePath:   basePath,
		properties: props,
	}
}

func (l *LocalFileIO) resolve(path string) string {
	path = normalizePath(path)
	if l.basePath != "" && !filepath.IsAbs(path) {
		return filepath.Join(l.basePath, path)
	}
	return path
}

// Open opens a file for reading.
func (l *LocalFileIO) Open(ctx context.Context, path string) (InputFile, error) {
	return &localInputFile{path: l.resolve(path)}, nil
}

// Create creates a new file for writing.
func (l *LocalFileIO) Create(ctx context.Context, path string) (OutputFile, error) {
	return &localOutputFile{path: l.resolve(path)}, nil
}

// Delete deletes a file.
func (l *LocalFileIO) Delete(ctx context.Context, path string) error {
	return os.Remove(l.resolve(path))
}

// Exists checks if a file exists.
func (l *LocalFileIO) Exists(ctx context.Context, path string) (bool, error) {
	return statExists(l.resolve(path))
}

// Properties returns the properties of this FileIO.
func (l *LocalFileIO) Properties() map[string]string {
	return l.properties
}

// normalizePath removes file:// prefix if present.
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "file://")
}

func statExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// localInputFile implements InputFile for local filesystem.
type localInputFile struct {
	path string
}

func (f *localInputFile) Location() string {
	return f.path
}

func (f *localInputFile) Exists(ctx context.Context) (bool, error) {
	return statExists(f.path)
}

func (f *localInputFile) Length(ctx context.Context) (int64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *localInputFile) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(f.path)
}

func (f *localInputFile) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	return &limitedReadCloser{
		Reader: io.LimitReader(file, length),
		Closer: file,
	}, nil
}

// localOutputFile implements OutputFile for local filesystem.
type localOutputFile struct {
	path string
}

func (f *localOutputFile) Location() string {
	return f.path
}

func (f *localOutputFile) Create(ctx context.Context) (io.WriteCloser, error) {
	exists, err := statExists(f.path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("file already exists: %s", f.path)
	}
	return f.CreateOverwrite(ctx)
}

func (f *localOutputFile) CreateOverwrite(ctx context.Context) (io.WriteCloser, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &atomicWriter{path: f.path, buffer: new(bytes.Buffer)}, nil
}

func (f *localOutputFile) ToInputFile() InputFile {
	return &localInputFile{path: f.path}
}

// atomicWriter buffers writes and replaces the target on close, so readers
// never observe a half-written file.
type atomicWriter struct {
	path   string
	buffer *bytes.Buffer
	closed bool
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}
	return w.buffer.Write(p)
}

func (w *atomicWriter) Close() error {
	if w.closed {
		return os.ErrClosed
	}
	w.closed = true
	if err := atomic.WriteFile(w.path, bytes.NewReader(w.buffer.Bytes())); err != nil {
		return fmt.Errorf("failed to commit %s: %w", w.path, err)
	}
	return nil
}

// limitedReadCloser wraps a limited reader with a closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
