package remote

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/stackb/classfactory/pkg/builtins"
	"github.com/stackb/classfactory/pkg/classloader"
	"github.com/stackb/classfactory/pkg/compile"
	"github.com/stackb/classfactory/pkg/testutil"
)

// startBufconnServer serves compiler on an in-memory listener and returns a
// connected client.
func startBufconnServer(t *testing.T, compiler compile.Compiler) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	server := NewServer(compiler, WithServerLogger(testutil.NewTestLogger(t)))
	go func() {
		if err := server.Serve(lis); err != nil {
			t.Logf("serve: %v", err)
		}
	}()
	t.Cleanup(server.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestClientServer(t *testing.T) {
	t.Setenv("TEST_TMPDIR", t.TempDir())

	client := startBufconnServer(t, compile.NewStarlarkCompiler(
		compile.WithPredeclared(builtins.Predeclared()),
	))

	for name, tc := range map[string]struct {
		unit    *compile.Unit
		options []string
		// want is the sorted list of returned class names
		want       []string
		wantFailed string
		wantCode   codes.Code
	}{
		"compiles": {
			unit: &compile.Unit{Name: "Foo", Source: "def val():\n    return 42\n"},
			want: []string{"Foo"},
		},
		"auxiliary": {
			unit: &compile.Unit{Name: "a.Foo", Source: "X = 1\n# class a.Bar\nY = struct(z = 2)\n"},
			want: []string{"a.Bar", "a.Foo"},
		},
		"options": {
			unit:    &compile.Unit{Name: "Foo", Source: "def f():\n    while True:\n        pass\n"},
			options: []string{"-while"},
			want:    []string{"Foo"},
		},
		"compilation failure": {
			unit:       &compile.Unit{Name: "Bad", Source: "x = "},
			wantFailed: "want primary expression",
		},
		"bad options": {
			unit:     &compile.Unit{Name: "Foo", Source: "x = 1\n"},
			options:  []string{"-nope"},
			wantCode: codes.InvalidArgument,
		},
		"missing class name": {
			unit:     &compile.Unit{Source: "x = 1\n"},
			wantCode: codes.InvalidArgument,
		},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := client.Compile(context.Background(), tc.unit, tc.options)

			if tc.wantCode != codes.OK {
				require.Error(t, err)
				assert.Equal(t, tc.wantCode, status.Code(err), err.Error())
				return
			}
			if tc.wantFailed != "" {
				var compileErr *compile.CompilationError
				require.ErrorAs(t, err, &compileErr)
				assert.Equal(t, tc.unit.Name, compileErr.ClassName)
				assert.Equal(t, tc.unit.Source, compileErr.Source)
				require.NotEmpty(t, compileErr.Diagnostics)
				assert.Contains(t, compileErr.Diagnostics[0].Message, tc.wantFailed)
				assert.Equal(t, compile.SeverityError, compileErr.Diagnostics[0].Severity)
				assert.NotEmpty(t, compileErr.Stderr)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got.Names()); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestClientArtifactsLoad(t *testing.T) {
	t.Setenv("TEST_TMPDIR", t.TempDir())

	client := startBufconnServer(t, compile.NewStarlarkCompiler(
		compile.WithPredeclared(builtins.Predeclared()),
	))

	artifacts, err := client.Compile(context.Background(), &compile.Unit{
		Name:   "Foo",
		Source: "load('math', 'pow')\ndef val():\n    return int(pow(2, 5)) + 10\n",
	}, nil)
	require.NoError(t, err)

	loader := classloader.NewInMemoryLoader(artifacts, builtins.System(), classloader.WithPredeclared(builtins.Predeclared()))
	class, err := loader.LoadClass(context.Background(), "Foo")
	require.NoError(t, err)
	got, err := class.Call(context.Background(), "val")
	require.NoError(t, err)
	assert.Equal(t, "42", got.String())
}

func TestServerFaults(t *testing.T) {
	for name, tc := range map[string]struct {
		err      error
		wantCode codes.Code
	}{
		"internal": {
			err:      errors.New("disk full"),
			wantCode: codes.Internal,
		},
		"status passthrough": {
			err:      status.Error(codes.Unavailable, "busy"),
			wantCode: codes.Unavailable,
		},
	} {
		t.Run(name, func(t *testing.T) {
			client := startBufconnServer(t, compile.CompilerFunc(func(ctx context.Context, unit *compile.Unit, options []string) (compile.Artifacts, error) {
				return nil, tc.err
			}))
			_, err := client.Compile(context.Background(), &compile.Unit{Name: "Foo"}, nil)
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, status.Code(err))
		})
	}
}

func TestServerCanceled(t *testing.T) {
	server := NewServer(compile.CompilerFunc(func(ctx context.Context, unit *compile.Unit, options []string) (compile.Artifacts, error) {
		<-ctx.Done()
		return nil, errors.New("interrupted")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := server.Compile(ctx, &CompileRequest{ClassName: "Foo"})
	assert.Equal(t, codes.Canceled, status.Code(err))
}
