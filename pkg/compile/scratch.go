package compile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bazelbuild/rules_go/go/tools/bazel"
)

// scratchFile is the on-disk copy of a unit's source handed to the compiler.
type scratchFile struct {
	// dir is unique per compilation, so concurrent compilations of the same
	// class name never share a path.
	dir string
	// path is dir joined with the unit's SourcePath.
	path string
}

func writeScratchFile(unit *Unit) (*scratchFile, error) {
	dir, err := bazel.NewTmpDir("classfactory-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	path := filepath.Join(dir, filepath.FromSlash(unit.SourcePath()))
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("creating scratch package dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(unit.Source), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &scratchFile{dir: dir, path: path}, nil
}

func (f *scratchFile) read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	return data, nil
}

func (f *scratchFile) remove() error {
	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("removing scratch dir %s: %w", f.dir, err)
	}
	return nil
}
