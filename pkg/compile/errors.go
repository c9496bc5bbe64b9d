package compile

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CompilationError is returned when the compiler reports an unsuccessful
// run.  It carries everything needed to render a report for the caller.
type CompilationError struct {
	Details
}

func (e *CompilationError) Error() string {
	msg := "compilation of " + e.ClassName + " failed"
	if d := e.first(); d != nil {
		msg += ": " + d.String()
	}
	return msg
}

// first returns the first error diagnostic, falling back to the first
// diagnostic of any severity.
func (e *CompilationError) first() *Diagnostic {
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			return d
		}
	}
	if len(e.Diagnostics) > 0 {
		return e.Diagnostics[0]
	}
	return nil
}

// GRPCStatus lets status.FromError and status.Code classify the failure.
func (e *CompilationError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// OptionsError reports compiler options that could not be parsed.
type OptionsError struct {
	Options []string
	Err     error
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid compiler options %q: %v", e.Options, e.Err)
}

func (e *OptionsError) Unwrap() error {
	return e.Err
}

// GRPCStatus lets status.FromError and status.Code classify the failure.
func (e *OptionsError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}
