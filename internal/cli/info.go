package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/go-qlio/go-qlio/chunk"
)

// InfoCmd returns the info command.
func InfoCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("info", flag.ContinueOnError),
		Usage: "info <file>",
		Short: "List the chunks and columns of a file",
		Long: `List every chunk of a FITS or text file.

Tables print their name, row count and one line per column with its
type, width and unit. Image chunks print as "image".`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("info requires exactly one file")
			}
			return execInfo(ctx, o, a, args[0])
		},
	}
}

func execInfo(ctx context.Context, o *IO, a *app, path string) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	in, err := client.OpenInput(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close()

	n, err := in.ChunkCount()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := in.MoveToChunk(i); err != nil {
			return err
		}
		if err := printChunk(o, in, i); err != nil {
			return err
		}
	}
	return nil
}

func printChunk(o *IO, in chunk.InputFile, index int) error {
	rows, err := in.RowCount()
	if chunk.StatusOf(err) == chunk.StatusNotTable {
		o.Printf("chunk %d: image\n", index)
		return nil
	}
	if err != nil {
		return err
	}
	fields, err := in.Columns()
	if err != nil {
		return err
	}

	name := "-"
	if named, ok := in.(interface{ ChunkName() (string, error) }); ok {
		if s, err := named.ChunkName(); err == nil && s != "" {
			name = s
		}
	}

	o.Printf("chunk %d: table %s rows=%d columns=%d\n", index, name, rows, len(fields))
	for i, f := range fields {
		o.Printf("  %3d %-16s %-8s %s\n", i, f.Name, fieldShape(f), f.Unit)
	}
	return nil
}

func fieldShape(f chunk.Field) string {
	if f.VectorSize > 1 {
		return fmt.Sprintf("%s[%d]", f.Type, f.VectorSize)
	}
	return f.Type.String()
}
