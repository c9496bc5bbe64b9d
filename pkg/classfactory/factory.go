// Package classfactory compiles source text at runtime and defines the result
// in the running process.
package classfactory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/stackb/classfactory/pkg/builtins"
	"github.com/stackb/classfactory/pkg/classloader"
	"github.com/stackb/classfactory/pkg/compile"
	"github.com/stackb/classfactory/pkg/procutil"
)

// KeepScratchEnv controls whether scratch sources of failed compilations are
// kept for inspection (default true).
const KeepScratchEnv procutil.EnvVar = "CLASSFACTORY_KEEP_SCRATCH"

// ClassFactory creates classes from source.
type ClassFactory interface {
	// CreateClass compiles source as the class fullName and returns the
	// defined class.  A nil compiler selects the factory's default compiler
	// and a nil parent selects builtins.System().  A compilation failure is
	// returned as a *compile.CompilationError.
	CreateClass(ctx context.Context, fullName, source string, compiler compile.Compiler, extraOptions []string, parent classloader.Resolver) (*classloader.Class, error)
}

type Option func(*DefaultClassFactory) *DefaultClassFactory

// WithLogger sets the logger handed to the compiler and the loaders.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *DefaultClassFactory) *DefaultClassFactory {
		f.logger = logger
		return f
	}
}

// WithPredeclared replaces the predeclared environment.
func WithPredeclared(predeclared starlark.StringDict) Option {
	return func(f *DefaultClassFactory) *DefaultClassFactory {
		f.predeclared = predeclared
		return f
	}
}

// WithCompiler sets the compiler used when CreateClass is given none.
func WithCompiler(compiler compile.Compiler) Option {
	return func(f *DefaultClassFactory) *DefaultClassFactory {
		f.compiler = compiler
		return f
	}
}

// New constructs a DefaultClassFactory.
func New(options ...Option) *DefaultClassFactory {
	f := &DefaultClassFactory{
		logger:      zerolog.Nop(),
		predeclared: builtins.Predeclared(),
	}
	for _, opt := range options {
		f = opt(f)
	}
	if f.compiler == nil {
		f.compiler = compile.NewStarlarkCompiler(
			compile.WithLogger(f.logger),
			compile.WithPredeclared(f.predeclared),
			compile.WithKeepScratchOnFailure(procutil.LookupBoolEnv(KeepScratchEnv, true)),
		)
	}
	return f
}

// DefaultClassFactory implements ClassFactory.  A fresh loader is created for
// every call; nothing is shared between calls.
type DefaultClassFactory struct {
	logger      zerolog.Logger
	predeclared starlark.StringDict
	compiler    compile.Compiler
}

// CreateClass implements ClassFactory.
func (f *DefaultClassFactory) CreateClass(ctx context.Context, fullName, source string, compiler compile.Compiler, extraOptions []string, parent classloader.Resolver) (*classloader.Class, error) {
	artifacts, err := f.CompileClasses(ctx, fullName, source, compiler, extraOptions)
	if err != nil {
		return nil, err
	}
	return f.LoadClass(ctx, fullName, artifacts, parent)
}

// CompileClasses runs the compiler and returns the compiled artifacts.
func (f *DefaultClassFactory) CompileClasses(ctx context.Context, fullName, source string, compiler compile.Compiler, extraOptions []string) (compile.Artifacts, error) {
	if compiler == nil {
		compiler = f.compiler
	}
	artifacts, err := compiler.Compile(ctx, &compile.Unit{Name: fullName, Source: source}, extraOptions)
	if err != nil {
		var compileErr *compile.CompilationError
		if errors.As(err, &compileErr) {
			return nil, compileErr
		}
		return nil, fmt.Errorf("compiling %s: %w", fullName, err)
	}
	return artifacts, nil
}

// LoadClass defines fullName from artifacts in a new in-memory loader.
func (f *DefaultClassFactory) LoadClass(ctx context.Context, fullName string, artifacts compile.Artifacts, parent classloader.Resolver) (*classloader.Class, error) {
	if parent == nil {
		parent = builtins.System()
	}
	loader := classloader.NewInMemoryLoader(artifacts, parent,
		classloader.WithLogger(f.logger),
		classloader.WithPredeclared(f.predeclared),
	)
	class, err := loader.LoadClass(ctx, fullName)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", fullName, err)
	}
	return class, nil
}
