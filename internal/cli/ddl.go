package cli

import (
	"bytes"
	"context"
	"errors"

	"github.com/go-kit/log/level"
	flag "github.com/spf13/pflag"

	"github.com/go-qlio/go-qlio/export"
	qio "github.com/go-qlio/go-qlio/io"
)

// DDLCmd returns the ddl command.
func DDLCmd(a *app) *Command {
	flags := flag.NewFlagSet("ddl", flag.ContinueOnError)
	output := flags.StringP("output", "o", "", "Write the description to this path instead of stdout")

	return &Command{
		Flags: flags,
		Usage: "ddl <file> [flags]",
		Short: "Describe the tables of a FITS file as XML",
		Long: `Describe every binary table of a FITS file in the data description
language. Each table becomes a type named CREAT_ID_EXTNAME whose
description is the TM_ID keyword. Image chunks are skipped.

The output path may be local or s3://.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("ddl requires exactly one file")
			}
			return execDDL(ctx, o, a, args[0], *output)
		},
	}
}

func execDDL(ctx context.Context, o *IO, a *app, path, output string) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	in, err := client.OpenFITS(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close()

	if output == "" {
		return export.WriteDDL(o.Out(), in)
	}

	var buf bytes.Buffer
	if err := export.WriteDDL(&buf, in); err != nil {
		return err
	}
	if err := qio.WriteFile(ctx, client.FileIO(), output, buf.Bytes()); err != nil {
		return err
	}
	level.Info(a.logger).Log("msg", "wrote ddl", "path", path, "output", output)
	o.Println(output)
	return nil
}
