package classloader

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/stackb/classfactory/pkg/compile"
)

type InMemoryLoaderOption func(*InMemoryLoader) *InMemoryLoader

// WithLogger sets the logger.  It also receives print() output of code
// running in classes defined by the loader.
func WithLogger(logger zerolog.Logger) InMemoryLoaderOption {
	return func(l *InMemoryLoader) *InMemoryLoader {
		l.logger = logger
		return l
	}
}

// WithPredeclared sets the predeclared environment classes are initialized
// with.  It must match the environment the artifacts were compiled against.
func WithPredeclared(predeclared starlark.StringDict) InMemoryLoaderOption {
	return func(l *InMemoryLoader) *InMemoryLoader {
		l.predeclared = predeclared
		return l
	}
}

// NewInMemoryLoader constructs a loader that defines classes from the given
// artifacts and delegates every other name to parent.  parent may be nil.
func NewInMemoryLoader(artifacts compile.Artifacts, parent Resolver, options ...InMemoryLoaderOption) *InMemoryLoader {
	l := &InMemoryLoader{
		parent:    parent,
		artifacts: newArtifactIndex(artifacts),
		classes:   make(map[string]*Class),
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		l = opt(l)
	}
	return l
}

// InMemoryLoader defines classes directly from compiled bytes held in memory.
// A class is defined at most once per loader, the first time it is
// requested, either by a caller or by a load statement of another class.
type InMemoryLoader struct {
	parent      Resolver
	artifacts   *artifactIndex
	predeclared starlark.StringDict
	logger      zerolog.Logger

	mu      sync.Mutex
	classes map[string]*Class
}

// Parent returns the resolver unknown names are delegated to.
func (l *InMemoryLoader) Parent() Resolver {
	return l.parent
}

// ClassNames returns the names of all classes the loader can define.
func (l *InMemoryLoader) ClassNames() []string {
	return l.artifacts.names()
}

// PackageClasses returns the names of the classes the loader can define in
// the given package.
func (l *InMemoryLoader) PackageClasses(pkg string) []string {
	return l.artifacts.packageClasses(pkg)
}

// LoadClass implements Resolver.
func (l *InMemoryLoader) LoadClass(ctx context.Context, name string) (*Class, error) {
	if class, ok := l.defined(name); ok {
		return class, nil
	}
	data, ok := l.artifacts.get(name)
	if !ok {
		if l.parent == nil {
			return nil, NotFound(name)
		}
		return l.parent.LoadClass(ctx, name)
	}
	class, err := l.defineClass(ctx, name, data)
	if err != nil {
		return nil, err
	}
	// a concurrent caller may have defined the class meanwhile; the first
	// one stored wins.
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.classes[name]; ok {
		return prev, nil
	}
	l.classes[name] = class
	return class, nil
}

func (l *InMemoryLoader) defined(name string) (*Class, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	class, ok := l.classes[name]
	return class, ok
}

func (l *InMemoryLoader) defineClass(ctx context.Context, name string, data []byte) (*Class, error) {
	t1 := time.Now()

	ctx, err := withLoading(ctx, name)
	if err != nil {
		return nil, err
	}

	prog, err := starlark.CompiledProgram(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding class %s: %w", name, err)
	}

	thread := newThread(ctx, name, l, l.logger)
	globals, err := prog.Init(thread, l.predeclared)
	if err != nil {
		return nil, fmt.Errorf("initializing class %s: %w", name, err)
	}
	globals.Freeze()

	l.logger.Debug().
		Str("class", name).
		Int("members", len(globals)).
		Msgf("defined class (%v)", time.Since(t1).Round(time.Microsecond))

	return &Class{Name: name, globals: globals, loader: l, logger: l.logger}, nil
}
