// Package remote runs a compile.Compiler behind a gRPC service so that
// compilation can happen in a separate backend process.
package remote

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/stackb/classfactory/pkg/compile"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName   = "classfactory.Compiler"
	compileMethod = "/" + ServiceName + "/Compile"
)

// CompileRequest asks the backend to compile one unit.
type CompileRequest struct {
	ClassName string   `json:"className"`
	Source    string   `json:"source"`
	Options   []string `json:"options,omitempty"`
}

// CompileResponse carries either the artifacts or, when Failed is set, the
// diagnostics of the compilation.
type CompileResponse struct {
	Artifacts   map[string][]byte     `json:"artifacts,omitempty"`
	Failed      bool                  `json:"failed,omitempty"`
	Diagnostics []*compile.Diagnostic `json:"diagnostics,omitempty"`
	Stderr      string                `json:"stderr,omitempty"`
}

// CompilerServer is the server API for the compiler service.
type CompilerServer interface {
	Compile(context.Context, *CompileRequest) (*CompileResponse, error)
}

// RegisterCompilerServer registers srv with the given gRPC server.
func RegisterCompilerServer(s grpc.ServiceRegistrar, srv CompilerServer) {
	s.RegisterService(&compilerServiceDesc, srv)
}

var compilerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompilerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Compile",
			Handler:    compileHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "classfactory/remote/service.go",
}

func compileHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CompileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CompilerServer).Compile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: compileMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CompilerServer).Compile(ctx, req.(*CompileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Codec marshals service messages as JSON.
type Codec struct{}

// Name implements encoding.Codec.
func (Codec) Name() string { return "json" }

// Marshal implements encoding.Codec.
func (Codec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(Codec{})
}
