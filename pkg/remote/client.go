package remote

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stackb/classfactory/pkg/compile"
)

// Dial connects to a compiler backend at target.  Extra dial options are
// applied after the defaults.
func Dial(target string, options ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, options...)...)
	if err != nil {
		return nil, fmt.Errorf("dialing compiler backend %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Client is a compile.Compiler that forwards to a compiler backend.
type Client struct {
	conn *grpc.ClientConn
}

// Compile implements compile.Compiler.
func (c *Client) Compile(ctx context.Context, unit *compile.Unit, options []string) (compile.Artifacts, error) {
	req := &CompileRequest{
		ClassName: unit.Name,
		Source:    unit.Source,
		Options:   options,
	}
	var resp CompileResponse
	if err := c.conn.Invoke(ctx, compileMethod, req, &resp); err != nil {
		return nil, fmt.Errorf("compiler backend error: %w", err)
	}
	if resp.Failed {
		return nil, &compile.CompilationError{Details: compile.Details{
			ClassName:   unit.Name,
			Source:      unit.Source,
			Diagnostics: resp.Diagnostics,
			Stderr:      resp.Stderr,
		}}
	}
	return compile.Artifacts(resp.Artifacts), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
