package classloader

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
)

type loadingKey struct{}

// loading returns the chain of classes currently being defined on behalf of
// the caller, outermost first.
func loading(ctx context.Context) []string {
	stack, _ := ctx.Value(loadingKey{}).([]string)
	return stack
}

// withLoading pushes name onto the chain carried by ctx.  It fails if name is
// already being defined further up the chain.
func withLoading(ctx context.Context, name string) (context.Context, error) {
	stack := loading(ctx)
	for i, n := range stack {
		if n == name {
			cycle := append(append([]string{}, stack[i:]...), name)
			return nil, fmt.Errorf("cycle in load graph: %s", strings.Join(cycle, " -> "))
		}
	}
	next := make([]string, len(stack), len(stack)+1)
	copy(next, stack)
	return context.WithValue(ctx, loadingKey{}, append(next, name)), nil
}

// newThread returns a thread whose load statements resolve through resolver
// and whose print output goes to logger.
func newThread(ctx context.Context, name string, resolver Resolver, logger zerolog.Logger) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			logger.Info().Str("thread", thread.Name).Msg(msg)
		},
		Load: func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
			if resolver == nil {
				return nil, NotFound(module)
			}
			class, err := resolver.LoadClass(ctx, module)
			if err != nil {
				return nil, err
			}
			return class.globals, nil
		},
	}
}
