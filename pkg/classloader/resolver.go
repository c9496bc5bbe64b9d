package classloader

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ErrClassNotFound is returned (wrapped) when no resolver can supply a class.
var ErrClassNotFound = errors.New("class not found")

// NotFound returns an error wrapping ErrClassNotFound for the named class.
func NotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

// Resolver resolves a fully-qualified class name to a defined class.
type Resolver interface {
	LoadClass(ctx context.Context, name string) (*Class, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, name string) (*Class, error)

// LoadClass implements Resolver.
func (f ResolverFunc) LoadClass(ctx context.Context, name string) (*Class, error) {
	return f(ctx, name)
}

// Chain returns a resolver that tries each resolver in order, moving on only
// when a resolver reports ErrClassNotFound.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, name string) (*Class, error) {
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			class, err := r.LoadClass(ctx, name)
			if err == nil {
				return class, nil
			}
			if !errors.Is(err, ErrClassNotFound) {
				return nil, err
			}
		}
		return nil, NotFound(name)
	})
}

// ModuleResolver serves a fixed set of modules implemented in Go.
type ModuleResolver struct {
	classes map[string]*Class
}

// NewModuleResolver constructs a resolver for the given modules.  Each
// module's members become the globals of a class named by its key.
func NewModuleResolver(modules map[string]*starlarkstruct.Module) *ModuleResolver {
	r := &ModuleResolver{classes: make(map[string]*Class, len(modules))}
	for name, module := range modules {
		globals := make(starlark.StringDict, len(module.Members))
		for k, v := range module.Members {
			globals[k] = v
		}
		globals.Freeze()
		r.classes[name] = &Class{Name: name, globals: globals, loader: r, logger: zerolog.Nop()}
	}
	return r
}

// Names returns the module names in sorted order.
func (r *ModuleResolver) Names() []string {
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadClass implements Resolver.
func (r *ModuleResolver) LoadClass(ctx context.Context, name string) (*Class, error) {
	if class, ok := r.classes[name]; ok {
		return class, nil
	}
	return nil, NotFound(name)
}
