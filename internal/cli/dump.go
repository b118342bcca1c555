package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	flag "github.com/spf13/pflag"

	"github.com/go-qlio/go-qlio/chunk"
	"github.com/go-qlio/go-qlio/export"
)

// DumpCmd returns the dump command.
func DumpCmd(a *app) *Command {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	index := flags.Int("chunk", -1, "Chunk to dump (default: the chunk selected on open)")
	first := flags.Int64("first", 0, "First row to dump")
	last := flags.Int64("last", -1, "Last row to dump (default: last row of the table)")
	expr := flags.StringP("filter", "f", "", "Keep only rows matching a selection expression (FITS only)")

	return &Command{
		Flags: flags,
		Usage: "dump <file> [flags]",
		Short: "Print table rows as tab-separated values",
		Long: `Print rows of a table chunk as tab-separated values.

The first line holds the column names. Vector cells print as JSON arrays.
A selection expression such as "ENERGY > 100 && PH != 0" restricts the
printed rows.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("dump requires exactly one file")
			}
			return execDump(ctx, o, a, args[0], dumpOptions{
				chunk:  *index,
				first:  *first,
				last:   *last,
				filter: *expr,
			})
		},
	}
}

type dumpOptions struct {
	chunk  int
	first  int64
	last   int64
	filter string
}

type filterable interface {
	ApplyFilter(expr string) error
}

func execDump(ctx context.Context, o *IO, a *app, path string, opts dumpOptions) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	in, err := client.OpenInput(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close()

	if opts.chunk >= 0 {
		if err := in.MoveToChunk(opts.chunk); err != nil {
			return err
		}
	}
	if opts.filter != "" {
		f, ok := in.(filterable)
		if !ok {
			return errors.New("--filter needs a FITS input")
		}
		if err := f.ApplyFilter(opts.filter); err != nil {
			return err
		}
	}

	last := opts.last
	if last < 0 {
		n, err := in.RowCount()
		if err != nil {
			return err
		}
		last = n - 1
	}
	if last < opts.first {
		return printHeader(o, in)
	}

	rec, err := export.ReadRecord(in, opts.first, last, memory.NewGoAllocator())
	if err != nil {
		return err
	}
	defer rec.Release()

	if err := printHeader(o, in); err != nil {
		return err
	}
	cells := make([]string, rec.NumCols())
	for row := 0; row < int(rec.NumRows()); row++ {
		for col := range cells {
			cells[col] = rec.Column(col).ValueStr(row)
		}
		o.Println(strings.Join(cells, "\t"))
	}
	return nil
}

func printHeader(o *IO, in chunk.InputFile) error {
	fields, err := in.Columns()
	if err != nil {
		return err
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	o.Println(strings.Join(names, "\t"))
	return nil
}
