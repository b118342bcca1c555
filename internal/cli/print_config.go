package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after defaults, the config file and flags
are merged. Secrets are masked.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return errors.New("print-config takes no arguments")
			}
			if a.source != "" {
				o.Println("# source:", a.source)
			}
			s, err := FormatConfig(a.cfg)
			if err != nil {
				return err
			}
			o.Println(s)
			return nil
		},
	}
}
