package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Compiler turns a compilation unit into compiled artifacts.  A failed
// compilation is reported as a *CompilationError; any other error is a fault
// of the compiler invocation itself.
type Compiler interface {
	Compile(ctx context.Context, unit *Unit, options []string) (Artifacts, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, unit *Unit, options []string) (Artifacts, error)

// Compile implements Compiler.
func (f CompilerFunc) Compile(ctx context.Context, unit *Unit, options []string) (Artifacts, error) {
	return f(ctx, unit, options)
}

type StarlarkCompilerOption func(*StarlarkCompiler) *StarlarkCompiler

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) StarlarkCompilerOption {
	return func(c *StarlarkCompiler) *StarlarkCompiler {
		c.logger = logger
		return c
	}
}

// WithPredeclared declares names that resolve as predeclared identifiers.
// The loader that defines the compiled classes must provide the same values.
func WithPredeclared(predeclared starlark.StringDict) StarlarkCompilerOption {
	return func(c *StarlarkCompiler) *StarlarkCompiler {
		c.predeclared = predeclared
		return c
	}
}

// WithKeepScratchOnFailure controls whether the scratch directory survives a
// failed compilation.
func WithKeepScratchOnFailure(keep bool) StarlarkCompilerOption {
	return func(c *StarlarkCompiler) *StarlarkCompiler {
		c.keepScratchOnFailure = keep
		return c
	}
}

// WithDefaultOptions replaces the flags that precede the caller's options.
func WithDefaultOptions(options ...string) StarlarkCompilerOption {
	return func(c *StarlarkCompiler) *StarlarkCompiler {
		c.defaultOptions = options
		return c
	}
}

var defaultStarlarkCompilerOptions = []StarlarkCompilerOption{
	WithLogger(zerolog.Nop()),
	WithKeepScratchOnFailure(true),
	WithDefaultOptions(DefaultOptions()...),
}

// NewStarlarkCompiler constructs a new StarlarkCompiler.
func NewStarlarkCompiler(options ...StarlarkCompilerOption) *StarlarkCompiler {
	c := &StarlarkCompiler{}
	for _, opt := range append(defaultStarlarkCompilerOptions, options...) {
		c = opt(c)
	}
	return c
}

// StarlarkCompiler compiles sources with the embedded starlark toolchain.
// The source is written to a scratch file, read back and compiled one class
// section at a time; each compiled program is serialized into the artifacts.
type StarlarkCompiler struct {
	logger               zerolog.Logger
	predeclared          starlark.StringDict
	keepScratchOnFailure bool
	defaultOptions       []string
}

// Compile implements Compiler.
func (c *StarlarkCompiler) Compile(ctx context.Context, unit *Unit, options []string) (Artifacts, error) {
	t1 := time.Now()

	opts, err := ParseOptions(MergeOptions(c.defaultOptions, options))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scratch, err := writeScratchFile(unit)
	if err != nil {
		return nil, err
	}
	src, err := scratch.read()
	if err != nil {
		return nil, err
	}

	details := &Details{ClassName: unit.Name, Source: unit.Source}
	programs := make(map[string]*starlark.Program)

	if !ValidClassName(unit.Name) {
		details.Diagnostics = append(details.Diagnostics, &Diagnostic{
			Severity: SeverityError,
			Message:  fmt.Sprintf("invalid class name %q", unit.Name),
		})
	} else {
		sections, diagnostics := splitSections(unit.Name, src)
		for _, d := range diagnostics {
			d.Source = scratch.path
		}
		details.Diagnostics = append(details.Diagnostics, diagnostics...)

		for _, s := range sections {
			prog, diagnostics := c.compileSection(&opts.File, scratch.path, s)
			details.Diagnostics = append(details.Diagnostics, diagnostics...)
			if prog != nil {
				programs[s.name] = prog
			}
		}
	}

	if details.Errors() > 0 || (opts.WarningsAsErrors && details.Warnings() > 0) {
		details.Stderr = formatStderr(details, opts.WarningsAsErrors)
		if c.keepScratchOnFailure {
			c.logger.Debug().Str("class", unit.Name).Msgf("scratch source retained: %s", scratch.path)
		} else if err := scratch.remove(); err != nil {
			return nil, err
		}
		return nil, &CompilationError{Details: *details}
	}

	for _, d := range details.Diagnostics {
		c.logger.Warn().Str("class", unit.Name).Msg(d.String())
	}

	artifacts := make(Artifacts, len(programs))
	for name, prog := range programs {
		var buf bytes.Buffer
		if err := prog.Write(&buf); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", name, err)
		}
		artifacts[name] = buf.Bytes()
	}

	if err := scratch.remove(); err != nil {
		return nil, err
	}

	t2 := time.Since(t1).Round(1 * time.Millisecond)
	c.logger.Debug().Str("class", unit.Name).Msgf("compiled %v (%v)", artifacts.Names(), t2)

	return artifacts, nil
}

func (c *StarlarkCompiler) compileSection(opts *syntax.FileOptions, filename string, s *section) (*starlark.Program, []*Diagnostic) {
	// each section gets its own copy: parsing records the options in the file
	fileOpts := *opts
	portion := syntax.FilePortion{Content: s.content, FirstLine: int32(s.firstLine), FirstCol: 1}

	_, prog, err := starlark.SourceProgramOptions(&fileOpts, filename, portion, c.isPredeclared)
	if err == nil {
		for i := 0; i < prog.NumLoads(); i++ {
			module, pos := prog.Load(i)
			c.logger.Debug().Str("class", s.name).Msgf("%v: load %q", pos, module)
		}
		return prog, nil
	}
	return nil, diagnosticsFromError(filename, err)
}

func (c *StarlarkCompiler) isPredeclared(name string) bool {
	return c.predeclared.Has(name)
}

// diagnosticsFromError converts errors reported by the starlark parser and
// resolver.
func diagnosticsFromError(filename string, err error) []*Diagnostic {
	var syntaxErr syntax.Error
	if errors.As(err, &syntaxErr) {
		return []*Diagnostic{diagnosticAt(syntaxErr.Pos, syntaxErr.Msg)}
	}
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		diagnostics := make([]*Diagnostic, len(resolveErrs))
		for i, e := range resolveErrs {
			diagnostics[i] = diagnosticAt(e.Pos, e.Msg)
		}
		return diagnostics
	}
	return []*Diagnostic{{Severity: SeverityError, Source: filename, Message: err.Error()}}
}

func diagnosticAt(pos syntax.Position, msg string) *Diagnostic {
	return &Diagnostic{
		Severity: SeverityError,
		Source:   pos.Filename(),
		Line:     int(pos.Line),
		Col:      int(pos.Col),
		Message:  msg,
	}
}

// formatStderr renders the diagnostics the way a command-line compiler would
// print them to its error stream.
func formatStderr(details *Details, warningsAsErrors bool) string {
	var b strings.Builder
	for _, d := range details.Diagnostics {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	if warningsAsErrors && details.Errors() == 0 && details.Warnings() > 0 {
		b.WriteString("error: warnings found and -Werror specified\n")
	}
	if n := details.Errors(); n > 0 {
		fmt.Fprintf(&b, "%d %s\n", n, plural(n, "error"))
	}
	if n := details.Warnings(); n > 0 {
		fmt.Fprintf(&b, "%d %s\n", n, plural(n, "warning"))
	}
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
