package remote

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stackb/classfactory/pkg/compile"
)

type ServerOption func(*Server) *Server

// WithServerLogger sets the server logger.
func WithServerLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) *Server {
		s.logger = logger
		return s
	}
}

// NewServer constructs a Server that delegates to compiler.
func NewServer(compiler compile.Compiler, options ...ServerOption) *Server {
	s := &Server{
		compiler: compiler,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		s = opt(s)
	}
	s.grpcServer = grpc.NewServer(grpc.ForceServerCodec(Codec{}))
	RegisterCompilerServer(s.grpcServer, s)
	return s
}

// Server implements CompilerServer.
type Server struct {
	compiler compile.Compiler
	logger   zerolog.Logger

	grpcServer *grpc.Server
}

// Compile implements CompilerServer.  A failed compilation is a successful
// RPC whose response has Failed set; only faults are returned as errors.
func (s *Server) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	if req.ClassName == "" {
		return nil, status.Error(codes.InvalidArgument, "className is required")
	}
	t1 := time.Now()

	s.logger.Debug().Str("class", req.ClassName).Msgf("new compile request: options=%q", req.Options)

	artifacts, err := s.compiler.Compile(ctx, &compile.Unit{Name: req.ClassName, Source: req.Source}, req.Options)
	if err != nil {
		var compileErr *compile.CompilationError
		if errors.As(err, &compileErr) {
			return &CompileResponse{
				Failed:      true,
				Diagnostics: compileErr.Diagnostics,
				Stderr:      compileErr.Stderr,
			}, nil
		}
		if st, ok := status.FromError(err); ok {
			return nil, st.Err()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, status.Errorf(codes.Internal, "compiling %s: %v", req.ClassName, err)
	}

	s.logger.Debug().Str("class", req.ClassName).Msgf("compiled %v (%v)", artifacts.Names(), time.Since(t1).Round(time.Millisecond))

	return &CompileResponse{Artifacts: artifacts}, nil
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Msgf("compiler backend listening on %s", lis.Addr())

	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops a serving server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
