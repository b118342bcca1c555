package io

import (
	"context"
	"fmt"
)

// RouterFileIO dispatches each path to a FileIO by its URI scheme. Plain
// paths and file:// go to the local handler.
type RouterFileIO struct {
	local   FileIO
	schemes map[string]FileIO
}

// NewRouterFileIO creates a router whose default handler is local.
func NewRouterFileIO(local FileIO) *RouterFileIO {
	return &RouterFileIO{
		local:   local,
		schemes: make(map[string]FileIO),
	}
}

// Register routes paths with the given scheme to fio.
func (r *RouterFileIO) Register(scheme string, fio FileIO) {
	r.schemes[scheme] = fio
}

func (r *RouterFileIO) route(path string) (FileIO, error) {
	switch scheme := Scheme(path); scheme {
	case "", "file":
		return r.local, nil
	default:
		fio, ok := r.schemes[scheme]
		if !ok {
			return nil, fmt.Errorf("no storage configured for scheme %q", scheme)
		}
		return fio, nil
	}
}

// Open opens a file for reading.
func (r *RouterFileIO) Open(ctx context.Context, path string) (InputFile, error) {
	fio, err := r.route(path)
	if err != nil {
		return nil, err
	}
	return fio.Open(ctx, path)
}

// Create creates a new file for writing.
func (r *RouterFileIO) Create(ctx context.Context, path string) (OutputFile, error) {
	fio, err := r.route(path)
	if err != nil {
		return nil, err
	}
	return fio.Create(ctx, path)
}

// Delete deletes a file.
func (r *RouterFileIO) Delete(ctx context.Context, path string) error {
	fio, err := r.route(path)
	if err != nil {
		return err
	}
	return fio.Delete(ctx, path)
}

// Exists checks if a file exists.
func (r *RouterFileIO) Exists(ctx context.Context, path string) (bool, error) {
	fio, err := r.route(path)
	if err != nil {
		return false, err
	}
	return fio.Exists(ctx, path)
}

// Properties returns the properties of the local handler.
func (r *RouterFileIO) Properties() map[string]string {
	return r.local.Properties()
}
