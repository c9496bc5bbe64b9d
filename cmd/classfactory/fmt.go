package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/bazelbuild/buildtools/build"
	"github.com/rs/zerolog"
)

func runFmt(logger zerolog.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fmt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	write := fs.Bool("w", false, "write result to the source file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	for _, filename := range fs.Args() {
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		formatted, err := formatSource(filename, data)
		if err != nil {
			return err
		}
		if !*write {
			stdout.Write(formatted)
			continue
		}
		if bytes.Equal(data, formatted) {
			continue
		}
		if err := os.WriteFile(filename, formatted, 0o644); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		logger.Debug().Msgf("formatted %s", filename)
	}
	return nil
}

// formatSource pretty-prints a source file.  Class section headers are
// comments, so they survive formatting.
func formatSource(filename string, data []byte) ([]byte, error) {
	f, err := build.ParseDefault(filename, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return build.Format(f), nil
}
