package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/davecgh/go-spew/spew"
	"github.com/pcj/mobyprogress"
	"github.com/rs/zerolog"

	"github.com/stackb/classfactory/pkg/builtins"
	"github.com/stackb/classfactory/pkg/classloader"
	"github.com/stackb/classfactory/pkg/compile"
	"github.com/stackb/classfactory/pkg/procutil"
	"github.com/stackb/classfactory/pkg/remote"
)

const defaultPattern = "**/*" + compile.SourceFileSuffix

type compileConfig struct {
	dir          string
	outDir       string
	reportFile   string
	remoteAddr   string
	load         bool
	dump         bool
	showProgress bool
	options      stringSliceFlag
	patterns     []string
}

func runCompile(logger zerolog.Logger, args []string, stdout, stderr io.Writer) error {
	conf := compileConfig{}
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&conf.dir, "dir", ".", "directory the source patterns are relative to")
	fs.StringVar(&conf.outDir, "out_dir", "", "if set, write compiled class files under this directory")
	fs.StringVar(&conf.reportFile, "report_file", "", "if set, write failure details as JSON to this file")
	fs.StringVar(&conf.remoteAddr, "remote", "", "address of a compiler backend (see 'serve'); compiles in-process if unset")
	fs.BoolVar(&conf.load, "load", true, "define every compiled class to check that it initializes")
	fs.BoolVar(&conf.dump, "dump", false, "dump failure diagnostics in full")
	fs.BoolVar(&conf.showProgress, "progress", true, "show progress on stderr")
	fs.Var(&conf.options, "copt", "compiler option (repeatable), e.g. -copt=-recursion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conf.patterns = fs.Args()
	if len(conf.patterns) == 0 {
		conf.patterns = []string{defaultPattern}
	}

	files, err := globSourceFiles(os.DirFS(conf.dir), conf.patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files match %v in %s", conf.patterns, conf.dir)
	}

	compiler, closer, err := newCompiler(logger, conf.remoteAddr)
	if err != nil {
		return err
	}
	defer closer()

	var output mobyprogress.Output
	if conf.showProgress {
		output = mobyprogress.NewProgressOutput(mobyprogress.NewOut(stderr))
	}

	ctx := context.Background()
	all := make(compile.Artifacts)
	var failures []*compile.Details

	for i, filename := range files {
		data, err := os.ReadFile(filepath.Join(conf.dir, filepath.FromSlash(filename)))
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		unit := &compile.Unit{Name: classNameForFile(filename), Source: string(data)}

		artifacts, err := compiler.Compile(ctx, unit, conf.options)
		if output != nil {
			writeCompileProgress(output, i+1, len(files), i+1 == len(files))
		}
		if err != nil {
			var compileErr *compile.CompilationError
			if !errors.As(err, &compileErr) {
				return fmt.Errorf("compiling %s: %w", filename, err)
			}
			failures = append(failures, &compileErr.Details)
			fmt.Fprint(stdout, compileErr.Report())
			if conf.dump {
				spew.Fdump(stdout, compileErr.Diagnostics)
			}
			continue
		}
		for name, data := range artifacts {
			if _, ok := all[name]; ok {
				return fmt.Errorf("%s: class %s is defined by more than one file", filename, name)
			}
			all[name] = data
		}
	}

	if conf.outDir != "" {
		written, err := compile.WriteArtifacts(conf.outDir, all)
		if err != nil {
			return err
		}
		logger.Debug().Msgf("wrote %d class files to %s", len(written), conf.outDir)
	}

	if conf.reportFile != "" {
		if err := compile.WriteJSONFile(conf.reportFile, failures); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if conf.load {
		loader := classloader.NewInMemoryLoader(all, builtins.System(),
			classloader.WithLogger(logger),
			classloader.WithPredeclared(builtins.Predeclared()),
		)
		for _, name := range loader.ClassNames() {
			if _, err := loader.LoadClass(ctx, name); err != nil {
				return err
			}
		}
	}

	for _, name := range all.Names() {
		fmt.Fprintln(stdout, name)
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d files failed to compile", len(failures), len(files))
	}
	return nil
}

// globSourceFiles expands the patterns against fsys and returns the unique
// matches in sorted order.
func globSourceFiles(fsys iofs.FS, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		names, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// classNameForFile derives the class name from a slash-separated relative
// path: "com/example/Foo.star" -> "com.example.Foo".
func classNameForFile(filename string) string {
	return strings.ReplaceAll(strings.TrimSuffix(filename, path.Ext(filename)), "/", ".")
}

// RemoteTimeoutEnv bounds each call to a compiler backend, e.g. "30s".
const RemoteTimeoutEnv procutil.EnvVar = "CLASSFACTORY_REMOTE_TIMEOUT"

func newCompiler(logger zerolog.Logger, remoteAddr string) (compile.Compiler, func(), error) {
	if remoteAddr == "" {
		return compile.NewStarlarkCompiler(
			compile.WithLogger(logger),
			compile.WithPredeclared(builtins.Predeclared()),
		), func() {}, nil
	}
	client, err := remote.Dial(remoteAddr)
	if err != nil {
		return nil, nil, err
	}
	timeout := procutil.LookupDurationEnv(RemoteTimeoutEnv, 0)
	var compiler compile.Compiler = client
	if timeout > 0 {
		compiler = compile.CompilerFunc(func(ctx context.Context, unit *compile.Unit, options []string) (compile.Artifacts, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return client.Compile(ctx, unit, options)
		})
	}
	return compiler, func() {
		if err := client.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing compiler backend connection")
		}
	}, nil
}

func writeCompileProgress(output mobyprogress.Output, current, total int, lastUpdate bool) {
	output.WriteProgress(mobyprogress.Progress{
		ID:         "compile",
		Action:     "compiling",
		Current:    int64(current),
		Total:      int64(total),
		Units:      "files",
		LastUpdate: lastUpdate,
	})
}
