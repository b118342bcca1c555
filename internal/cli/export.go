package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/go-qlio/go-qlio/export"
)

// ExportCmd returns the export command.
func ExportCmd(a *app) *Command {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	format := flags.String("to", string(export.FormatParquet), "Output format: parquet or avro")
	out := flags.StringP("out", "o", "", "Directory to write into, local or s3:// (required)")
	index := flags.Int("chunk", -1, "Chunk to export (default: the chunk selected on open)")
	expr := flags.StringP("filter", "f", "", "Keep only rows matching a selection expression (FITS only)")

	return &Command{
		Flags: flags,
		Usage: "export <file> --out <dir> [flags]",
		Short: "Convert a table chunk to Parquet or Avro",
		Long: `Convert every row of a table chunk to a Parquet or Avro file.

The file is named after the chunk with a random suffix and its location
is printed on success.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("export requires exactly one file")
			}
			if *out == "" {
				return errors.New("--out is required")
			}
			f, err := export.ParseFormat(*format)
			if err != nil {
				return err
			}
			return execExport(ctx, o, a, args[0], *out, f, *index, *expr)
		},
	}
}

func execExport(ctx context.Context, o *IO, a *app, path, dir string, format export.Format, index int, expr string) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	in, err := client.OpenInput(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close()

	if index >= 0 {
		if err := in.MoveToChunk(index); err != nil {
			return err
		}
	}
	if expr != "" {
		f, ok := in.(filterable)
		if !ok {
			return errors.New("--filter needs a FITS input")
		}
		if err := f.ApplyFilter(expr); err != nil {
			return err
		}
	}

	location, err := client.Export(ctx, in, dir, format)
	if err != nil {
		return err
	}
	o.Println(location)
	return nil
}
