package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	flag "github.com/spf13/pflag"

	goqlio "github.com/go-qlio/go-qlio"
)

// app holds what the commands share. The client is built on first use so
// that commands not touching storage never load S3 credentials.
type app struct {
	cfg    Config
	source string
	logger log.Logger
	client *goqlio.Client
}

func (a *app) Client(ctx context.Context) (*goqlio.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	c, err := goqlio.NewClient(ctx, a.cfg.ClientOptions(a.logger)...)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

type globalFlags struct {
	set        *flag.FlagSet
	configPath string
	format     string
	separator  string
	labelWidth int
	maxRows    int64
	logLevel   string
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet("qlio", flag.ContinueOnError)}
	g.set.SetInterspersed(false)
	g.set.SetOutput(&strings.Builder{})
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use specified JSONC config file")
	g.set.StringVar(&g.format, "format", "", "Input format: auto, fits or text")
	g.set.StringVarP(&g.separator, "separator", "s", "", "Field separator characters of text tables")
	g.set.IntVar(&g.labelWidth, "label-width", 0, "Maximum length of labels written to FITS headers")
	g.set.Int64Var(&g.maxRows, "max-filter-rows", 0, "Row window limit of selection filters")
	g.set.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	return g
}

// overrides applies the flags given on the command line.
func (g *globalFlags) overrides(cfg *Config) {
	if g.set.Changed("format") {
		cfg.Format = g.format
	}
	if g.set.Changed("separator") {
		cfg.Separator = g.separator
	}
	if g.set.Changed("label-width") {
		cfg.LabelWidth = g.labelWidth
	}
	if g.set.Changed("max-filter-rows") {
		cfg.MaxFilterRows = g.maxRows
	}
	if g.set.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
}

func commands(a *app) []*Command {
	return []*Command{
		InfoCmd(a),
		DumpCmd(a),
		DDLCmd(a),
		ExportCmd(a),
		PrintConfigCmd(a),
	}
}

// Run is the main entry point. Returns exit code.
func Run(ctx context.Context, _ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string) int {
	o := NewIO(out, errOut)

	g := newGlobalFlags()
	if len(args) > 0 {
		args = args[1:]
	}
	if err := g.set.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(o, g, commands(nil))
			return 0
		}
		o.ErrPrintln("error:", err)
		printUsage(NewIO(errOut, errOut), g, commands(nil))
		return 1
	}

	rest := g.set.Args()
	if len(rest) == 0 {
		printUsage(o, g, commands(nil))
		return 0
	}

	configPath := g.configPath
	if configPath == "" {
		configPath = env[ConfigEnv]
	}
	cfg, err := LoadConfig(configPath, g.overrides)
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	a := &app{cfg: cfg, source: configPath, logger: cfg.NewLogger(errOut)}

	name := rest[0]
	for _, cmd := range commands(a) {
		if cmd.Name() == name {
			level.Debug(a.logger).Log("msg", "running command", "command", name)
			return cmd.Run(ctx, o, rest[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", name)
	printUsage(NewIO(errOut, errOut), g, commands(nil))
	return 1
}

func printUsage(o *IO, g *globalFlags, cmds []*Command) {
	o.Println("qlio - read, inspect and convert FITS and text tables")
	o.Println()
	o.Println("Usage: qlio [global flags] <command> [args]")
	o.Println()
	o.Println("Global flags:")

	var buf strings.Builder
	g.set.SetOutput(&buf)
	g.set.PrintDefaults()
	g.set.SetOutput(&strings.Builder{})
	o.Printf("%s", buf.String())

	o.Println()
	o.Println("Commands:")
	for _, c := range cmds {
		o.Println(c.HelpLine())
	}
}
