package classloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stackb/classfactory/pkg/compile"
)

// ClassPath resolves classes from class files previously written with
// compile.WriteArtifacts.  Entries are searched in order.
type ClassPath struct {
	entries []string
	options []InMemoryLoaderOption
	parent  Resolver

	mu      sync.Mutex
	loaders map[string]*InMemoryLoader
}

// NewClassPath parses a colon-separated list of directories.  Names not
// found on the class path are delegated to parent, which may be nil.
func NewClassPath(classPath string, parent Resolver, options ...InMemoryLoaderOption) (*ClassPath, error) {
	cp := &ClassPath{
		options: options,
		parent:  parent,
		loaders: make(map[string]*InMemoryLoader),
	}
	for _, entry := range strings.Split(classPath, string(filepath.ListSeparator)) {
		if entry == "" {
			continue
		}
		dir, err := filepath.Abs(entry)
		if err != nil {
			return nil, fmt.Errorf("class path entry %q: %w", entry, err)
		}
		cp.entries = append(cp.entries, dir)
	}
	return cp, nil
}

func (cp *ClassPath) String() string {
	return strings.Join(cp.entries, string(filepath.ListSeparator))
}

// LoadClass implements Resolver.  Every class file is defined by its own
// loader whose parent is the class path, so load statements in one class
// find their siblings on the same path.
func (cp *ClassPath) LoadClass(ctx context.Context, name string) (*Class, error) {
	cp.mu.Lock()
	loader, ok := cp.loaders[name]
	cp.mu.Unlock()
	if ok {
		return loader.LoadClass(ctx, name)
	}

	data, err := cp.readClass(name)
	if errors.Is(err, ErrClassNotFound) {
		if cp.parent == nil {
			return nil, err
		}
		return cp.parent.LoadClass(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	loader = NewInMemoryLoader(compile.Artifacts{name: data}, cp, cp.options...)
	cp.mu.Lock()
	if prev, ok := cp.loaders[name]; ok {
		loader = prev
	} else {
		cp.loaders[name] = loader
	}
	cp.mu.Unlock()

	return loader.LoadClass(ctx, name)
}

func (cp *ClassPath) readClass(name string) ([]byte, error) {
	if !compile.ValidClassName(name) {
		return nil, NotFound(name)
	}
	for _, dir := range cp.entries {
		data, err := compile.ReadArtifact(dir, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading class %s from %s: %w", name, dir, err)
		}
	}
	return nil, NotFound(name)
}
