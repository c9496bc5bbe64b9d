package classloader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/stackb/classfactory/pkg/compile"
)

// Class is a handle to a class defined in the running process.
type Class struct {
	// Name is the fully-qualified class name.
	Name string

	globals starlark.StringDict
	loader  Resolver
	logger  zerolog.Logger
}

func (c *Class) String() string {
	return "class " + c.Name
}

// SimpleName returns the last dotted segment of the name.
func (c *Class) SimpleName() string {
	return compile.SimpleName(c.Name)
}

// PackageName returns the package of the class, empty for the default
// package.
func (c *Class) PackageName() string {
	return compile.PackageName(c.Name)
}

// Loader returns the resolver that defined the class.
func (c *Class) Loader() Resolver {
	return c.loader
}

// Globals returns the frozen top-level bindings of the class.
func (c *Class) Globals() starlark.StringDict {
	return c.globals
}

// Names returns the names of the class members in sorted order.
func (c *Class) Names() []string {
	return c.globals.Keys()
}

// Member returns the named top-level binding.
func (c *Class) Member(name string) (starlark.Value, bool) {
	v, ok := c.globals[name]
	return v, ok
}

// Call invokes the named member with positional arguments.  The call runs
// on a fresh thread that is cancelled when ctx is done.
func (c *Class) Call(ctx context.Context, name string, args ...starlark.Value) (starlark.Value, error) {
	return c.CallKwargs(ctx, name, args, nil)
}

// CallKwargs invokes the named member with positional and keyword arguments.
func (c *Class) CallKwargs(ctx context.Context, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	fn, ok := c.globals[name]
	if !ok {
		return nil, fmt.Errorf("%s has no member %q", c.Name, name)
	}
	if _, ok := fn.(starlark.Callable); !ok {
		return nil, fmt.Errorf("%s.%s is not callable (%s)", c.Name, name, fn.Type())
	}

	thread := newThread(ctx, c.Name+"."+name, c.loader, c.logger)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	v, err := starlark.Call(thread, fn, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("calling %s.%s: %w", c.Name, name, err)
	}
	return v, nil
}
