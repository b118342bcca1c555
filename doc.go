// Package goqlio reads and writes chunked scientific tables: FITS files,
// whose HDUs are chunks holding binary tables or images, and plain text
// tables read as a single chunk.
//
// # Quick Start
//
// Create a client and open an input; the format is detected from the
// file content:
//
//	client, err := goqlio.NewClient(ctx, goqlio.WithSeparator(","))
//	in, err := client.OpenInput(ctx, "events.fits")
//	defer in.Close()
//	energy, err := in.ReadFloat32(3, 0, 99)
//
// Write a table:
//
//	out, err := client.CreateOutput(ctx, "s3://bucket/out.fits")
//	err = out.CreateTable("EVENTS", fields)
//	err = out.WriteInt32(0, values, 0, int64(len(values))-1)
//	err = out.Close() // commits the file
//
// # Storage
//
// Paths are plain local paths, file:// URIs, or s3:// URIs when the client
// is built WithS3. Nothing is visible at an output location until Close.
//
// # Selection
//
// FITS inputs accept a row filter. Every row-range read then returns only
// the rows accepted by the filter:
//
//	fin := in.(*fits.InputFile)
//	err = fin.ApplyFilter("ENERGY > 100 && MODE == 'SPOT'")
//	rows, err := fin.ReadFloat64(0, 0, 999)
//	n := fin.LastReadRows()
package goqlio
