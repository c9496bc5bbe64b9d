package classloader

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/stackb/classfactory/pkg/compile"
	"github.com/stackb/classfactory/pkg/testutil"
)

// mustCompile compiles source as the named class and returns every class it
// defines.
func mustCompile(t *testing.T, name, source string, options ...string) compile.Artifacts {
	t.Helper()
	t.Setenv("TEST_TMPDIR", t.TempDir())
	artifacts, err := compile.NewStarlarkCompiler().Compile(context.Background(), &compile.Unit{Name: name, Source: source}, options)
	if err != nil {
		var compileErr *compile.CompilationError
		if errors.As(err, &compileErr) {
			t.Fatal(compileErr.Report())
		}
		t.Fatal(err)
	}
	return artifacts
}

func mathResolver() *ModuleResolver {
	return NewModuleResolver(map[string]*starlarkstruct.Module{"math": math.Module})
}

func TestInMemoryLoader(t *testing.T) {
	for name, tc := range map[string]struct {
		className string
		source    string
		parent    Resolver
		call      string
		args      []starlark.Value
		want      string
		wantErr   string
	}{
		"call": {
			className: "Foo",
			source:    "def val():\n    return 42\n",
			call:      "val",
			want:      "42",
		},
		"args": {
			className: "Foo",
			source:    "def add(a, b):\n    return a + b\n",
			call:      "add",
			args:      []starlark.Value{starlark.MakeInt(40), starlark.MakeInt(2)},
			want:      "42",
		},
		"load sibling": {
			className: "a.Foo",
			source:    "load('a.Helper', 'answer')\ndef val():\n    return answer()\n# class a.Helper\ndef answer():\n    return 42\n",
			call:      "val",
			want:      "42",
		},
		"load from parent": {
			className: "Foo",
			source:    "load('math', 'sqrt')\ndef val():\n    return sqrt(16)\n",
			parent:    mathResolver(),
			call:      "val",
			want:      "4.0",
		},
		"load missing without parent": {
			className: "Foo",
			source:    "load('math', 'sqrt')\n",
			wantErr:   "class not found: math",
		},
		"load missing from parent": {
			className: "Foo",
			source:    "load('a.Missing', 'x')\n",
			parent:    mathResolver(),
			wantErr:   "class not found: a.Missing",
		},
		"cycle": {
			className: "a.A",
			source:    "load('a.B', 'b')\na = 1\n# class a.B\nload('a.A', 'a')\nb = 2\n",
			wantErr:   "cycle in load graph: a.A -> a.B -> a.A",
		},
		"init failure": {
			className: "Foo",
			source:    "x = fail('boom')\n",
			wantErr:   "initializing class Foo",
		},
		"frozen globals": {
			className: "Foo",
			source:    "L = []\ndef push():\n    L.append(1)\n",
			call:      "push",
			wantErr:   "frozen list",
		},
		"no member": {
			className: "Foo",
			source:    "x = 1\n",
			call:      "val",
			wantErr:   `Foo has no member "val"`,
		},
		"not callable": {
			className: "Foo",
			source:    "x = 1\n",
			call:      "x",
			wantErr:   "Foo.x is not callable (int)",
		},
	} {
		t.Run(name, func(t *testing.T) {
			artifacts := mustCompile(t, tc.className, tc.source)
			loader := NewInMemoryLoader(artifacts, tc.parent, WithLogger(testutil.NewTestLogger(t)))

			class, err := loader.LoadClass(context.Background(), tc.className)
			if err == nil && tc.call != "" {
				var got starlark.Value
				got, err = class.Call(context.Background(), tc.call, tc.args...)
				if err == nil {
					assert.Equal(t, tc.want, got.String())
				}
			}
			if testutil.ExpectErrorContains(t, tc.wantErr, err) {
				return
			}
			assert.Equal(t, tc.className, class.Name)
			assert.Same(t, loader, class.Loader())
		})
	}
}

func TestInMemoryLoaderNotFound(t *testing.T) {
	loader := NewInMemoryLoader(nil, nil)
	_, err := loader.LoadClass(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrClassNotFound)
	assert.EqualError(t, err, "class not found: Missing")
}

func TestInMemoryLoaderArtifactsBeforeParent(t *testing.T) {
	parent := NewModuleResolver(map[string]*starlarkstruct.Module{
		"Foo": {Name: "Foo", Members: starlark.StringDict{"X": starlark.MakeInt(1)}},
	})
	loader := NewInMemoryLoader(mustCompile(t, "Foo", "X = 2\n"), parent)

	class, err := loader.LoadClass(context.Background(), "Foo")
	require.NoError(t, err)
	x, ok := class.Member("X")
	require.True(t, ok)
	assert.Equal(t, "2", x.String())
}

func TestInMemoryLoaderDefinesOnce(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := zerolog.New(&lockedWriter{w: &buf, mu: &mu})

	loader := NewInMemoryLoader(mustCompile(t, "Foo", "print('init')\nX = 1\n"), nil, WithLogger(logger))

	const n = 8
	classes := make([]*Class, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			class, err := loader.LoadClass(context.Background(), "Foo")
			assert.NoError(t, err)
			classes[i] = class
		}(i)
	}
	wg.Wait()

	for _, class := range classes[1:] {
		assert.Same(t, classes[0], class)
	}

	again, err := loader.LoadClass(context.Background(), "Foo")
	require.NoError(t, err)
	assert.Same(t, classes[0], again)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, buf.String(), `"message":"init"`)
	assert.Contains(t, buf.String(), `"thread":"Foo"`)
}

func TestInMemoryLoaderClassNames(t *testing.T) {
	artifacts := compile.Artifacts{
		"a.Foo":   []byte{},
		"a.Bar":   []byte{},
		"a.b.Baz": []byte{},
		"Top":     []byte{},
	}
	loader := NewInMemoryLoader(artifacts, nil)

	if diff := cmp.Diff([]string{"Top", "a.Bar", "a.Foo", "a.b.Baz"}, loader.ClassNames()); diff != "" {
		t.Errorf("ClassNames (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.Bar", "a.Foo"}, loader.PackageClasses("a")); diff != "" {
		t.Errorf("PackageClasses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Top"}, loader.PackageClasses("")); diff != "" {
		t.Errorf("PackageClasses default (-want +got):\n%s", diff)
	}
}

func TestInMemoryLoaderBadArtifact(t *testing.T) {
	loader := NewInMemoryLoader(compile.Artifacts{"Foo": []byte("not a program")}, nil)
	_, err := loader.LoadClass(context.Background(), "Foo")
	testutil.ExpectErrorContains(t, "decoding class Foo", err)
}

func TestClassCallCancel(t *testing.T) {
	artifacts := mustCompile(t, "Foo", "def spin():\n    while True:\n        pass\n", "-while")
	class, err := NewInMemoryLoader(artifacts, nil).LoadClass(context.Background(), "Foo")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = class.Call(ctx, "spin")
	testutil.ExpectErrorContains(t, "context deadline exceeded", err)
}

func TestClassCallKwargs(t *testing.T) {
	artifacts := mustCompile(t, "Foo", "def greet(name, greeting = 'hello'):\n    return greeting + ', ' + name\n")
	class, err := NewInMemoryLoader(artifacts, nil).LoadClass(context.Background(), "Foo")
	require.NoError(t, err)

	got, err := class.CallKwargs(context.Background(), "greet",
		starlark.Tuple{starlark.String("world")},
		[]starlark.Tuple{{starlark.String("greeting"), starlark.String("hi")}},
	)
	require.NoError(t, err)
	assert.Equal(t, `"hi, world"`, got.String())
	assert.Equal(t, []string{"greet"}, class.Names())
	assert.Equal(t, "Foo", class.SimpleName())
	assert.Equal(t, "", class.PackageName())
}

func TestChain(t *testing.T) {
	boom := errors.New("boom")
	failing := ResolverFunc(func(ctx context.Context, name string) (*Class, error) {
		return nil, boom
	})

	for name, tc := range map[string]struct {
		resolvers []Resolver
		load      string
		wantName  string
		wantErr   error
	}{
		"first hit": {
			resolvers: []Resolver{mathResolver()},
			load:      "math",
			wantName:  "math",
		},
		"skips nil and not found": {
			resolvers: []Resolver{nil, NewModuleResolver(nil), mathResolver()},
			load:      "math",
			wantName:  "math",
		},
		"not found": {
			resolvers: []Resolver{mathResolver()},
			load:      "json",
			wantErr:   ErrClassNotFound,
		},
		"stops at other errors": {
			resolvers: []Resolver{failing, mathResolver()},
			load:      "math",
			wantErr:   boom,
		},
	} {
		t.Run(name, func(t *testing.T) {
			class, err := Chain(tc.resolvers...).LoadClass(context.Background(), tc.load)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, class.Name)
		})
	}
}

func TestNameSegmenter(t *testing.T) {
	var got []string
	for part, i := nameSegmenter("com.example.Foo", 0); part != ""; part, i = nameSegmenter("com.example.Foo", i) {
		got = append(got, part)
	}
	if diff := cmp.Diff([]string{"com", ".example", ".Foo"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestWithLoading(t *testing.T) {
	ctx, err := withLoading(context.Background(), "a")
	require.NoError(t, err)
	ctx, err = withLoading(ctx, "b")
	require.NoError(t, err)

	// siblings must not observe each other's frames
	c1, err := withLoading(ctx, "c")
	require.NoError(t, err)
	c2, err := withLoading(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, loading(c1))
	assert.Equal(t, []string{"a", "b", "d"}, loading(c2))

	_, err = withLoading(c1, "b")
	assert.EqualError(t, err, "cycle in load graph: b -> c -> b")
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func TestModuleResolverNames(t *testing.T) {
	r := NewModuleResolver(map[string]*starlarkstruct.Module{
		"math": math.Module,
		"b":    {Name: "b"},
	})
	assert.Equal(t, []string{"b", "math"}, r.Names())

	class, err := r.LoadClass(context.Background(), "math")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(class.String(), "class math"))
	assert.Same(t, r, class.Loader())
}
