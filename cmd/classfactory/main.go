// classfactory compiles source files at runtime and loads the resulting
// classes.
//
// Usage:
//
//	classfactory compile [flags] [pattern...]
//	classfactory run -file=FILE [flags] [arg...]
//	classfactory serve [-port=PORT]
//	classfactory fmt [-w] file...
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stackb/classfactory/pkg/procutil"
)

// DebugEnv forces debug logging regardless of -log_level.
const DebugEnv procutil.EnvVar = "CLASSFACTORY_DEBUG"

type command struct {
	name  string
	usage string
	run   func(logger zerolog.Logger, args []string, stdout, stderr io.Writer) error
}

var commands = []*command{
	{name: "compile", usage: "compile source files and report diagnostics", run: runCompile},
	{name: "run", usage: "create a class from a source file and call a function", run: runRun},
	{name: "serve", usage: "run the gRPC compiler backend", run: runServe},
	{name: "fmt", usage: "format source files", run: runFmt},
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "classfactory: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("classfactory", flag.ContinueOnError)
	fs.SetOutput(stderr)
	logLevel := fs.String("log_level", "info", "log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: classfactory [-log_level=LEVEL] <command> [args]")
		fmt.Fprintln(stderr)
		for _, cmd := range commands {
			fmt.Fprintf(stderr, "  %-8s %s\n", cmd.name, cmd.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(stderr, *logLevel)
	if err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}
	name := fs.Arg(0)
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(logger.With().Str("cmd", name).Logger(), fs.Args()[1:], stdout, stderr)
		}
	}
	fs.Usage()
	return fmt.Errorf("unknown command %q", name)
}

func newLogger(out io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("bad -log_level: %w", err)
	}
	if procutil.LookupBoolEnv(DebugEnv, false) {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: true}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}

// stringSliceFlag collects a repeatable string flag.
type stringSliceFlag []string

func (f *stringSliceFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *stringSliceFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}
