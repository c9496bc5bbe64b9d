package compile

import (
	"flag"
	"fmt"
	"io"

	"go.starlark.net/syntax"
)

// DefaultOptions returns the flags applied before any caller-supplied
// options.  They pin the language dialect.
func DefaultOptions() []string {
	return []string{
		"-set=true",
		"-while=false",
		"-toplevelcontrol=false",
		"-globalreassign=false",
		"-recursion=false",
		"-Werror=false",
	}
}

// MergeOptions concatenates the two lists.  Flags are parsed left to right,
// so an entry in extra overrides the same flag in defaults.
func MergeOptions(defaults, extra []string) []string {
	merged := make([]string, 0, len(defaults)+len(extra))
	merged = append(merged, defaults...)
	return append(merged, extra...)
}

// Options is the parsed form of a compiler option list.
type Options struct {
	File syntax.FileOptions
	// WarningsAsErrors fails the compilation if any warning is reported.
	WarningsAsErrors bool
}

// ParseOptions parses a list of compiler flags.
func ParseOptions(args []string) (*Options, error) {
	opts := &Options{}

	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&opts.File.Set, "set", false, "allow references to the 'set' built-in function")
	fs.BoolVar(&opts.File.While, "while", false, "allow 'while' statements")
	fs.BoolVar(&opts.File.TopLevelControl, "toplevelcontrol", false, "allow if/for/while statements at top-level")
	fs.BoolVar(&opts.File.GlobalReassign, "globalreassign", false, "allow reassignment to top-level names")
	fs.BoolVar(&opts.File.Recursion, "recursion", false, "allow recursive functions")
	fs.BoolVar(&opts.WarningsAsErrors, "Werror", false, "treat warnings as errors")

	if err := fs.Parse(args); err != nil {
		return nil, &OptionsError{Options: args, Err: err}
	}
	if fs.NArg() > 0 {
		return nil, &OptionsError{Options: args, Err: fmt.Errorf("unexpected argument %q", fs.Arg(0))}
	}
	return opts, nil
}
