// Package builtins provides the environment shared by the compiler and the
// loaders: predeclared names and the system modules every class can load.
package builtins

import (
	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/stackb/classfactory/pkg/classloader"
)

// Predeclared returns a new dictionary of the names available to every class
// without a load statement, in addition to the starlark universe.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module": starlark.NewBuiltin("module", starlarkstruct.MakeModule),
	}
}

// System returns the bootstrap resolver: the root of every parent chain.
// It serves the "math", "json" and "time" modules.
func System() *classloader.ModuleResolver {
	return classloader.NewModuleResolver(map[string]*starlarkstruct.Module{
		"math": math.Module,
		"json": json.Module,
		"time": time.Module,
	})
}
