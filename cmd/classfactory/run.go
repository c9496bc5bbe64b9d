package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/stackb/classfactory/pkg/builtins"
	"github.com/stackb/classfactory/pkg/classfactory"
	"github.com/stackb/classfactory/pkg/classloader"
	"github.com/stackb/classfactory/pkg/compile"
)

type runConfig struct {
	file       string
	className  string
	call       string
	classPath  string
	remoteAddr string
	options    stringSliceFlag
}

func runRun(logger zerolog.Logger, args []string, stdout, stderr io.Writer) error {
	conf := runConfig{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&conf.file, "file", "", "source file to compile (required)")
	fs.StringVar(&conf.className, "class", "", "class name; defaults to the file's base name")
	fs.StringVar(&conf.call, "call", "main", "function to call; arguments are the remaining command line arguments")
	fs.StringVar(&conf.classPath, "classpath", "", "directories of compiled class files searched for loads")
	fs.StringVar(&conf.remoteAddr, "remote", "", "address of a compiler backend (see 'serve'); compiles in-process if unset")
	fs.Var(&conf.options, "copt", "compiler option (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if conf.file == "" {
		return errors.New("-file is required")
	}
	if conf.className == "" {
		base := filepath.Base(conf.file)
		conf.className = base[:len(base)-len(filepath.Ext(base))]
	}

	source, err := os.ReadFile(conf.file)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	var parent classloader.Resolver = builtins.System()
	if conf.classPath != "" {
		cp, err := classloader.NewClassPath(conf.classPath, parent,
			classloader.WithLogger(logger),
			classloader.WithPredeclared(builtins.Predeclared()),
		)
		if err != nil {
			return err
		}
		parent = cp
	}

	compiler, closer, err := newCompiler(logger, conf.remoteAddr)
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	factory := classfactory.New(classfactory.WithLogger(logger))
	class, err := factory.CreateClass(ctx, conf.className, string(source), compiler, conf.options, parent)
	if err != nil {
		var compileErr *compile.CompilationError
		if errors.As(err, &compileErr) {
			fmt.Fprint(stdout, compileErr.Report())
		}
		return err
	}

	callArgs := make([]starlark.Value, fs.NArg())
	for i, arg := range fs.Args() {
		callArgs[i] = starlark.String(arg)
	}
	result, err := class.Call(ctx, conf.call, callArgs...)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			fmt.Fprintln(stderr, evalErr.Backtrace())
		}
		return err
	}
	if result != starlark.None {
		fmt.Fprintln(stdout, result.String())
	}
	return nil
}
