package procutil

import (
	"errors"
	"os/exec"
)

// CmdExitCode returns the exit status of a finished command given the error
// returned by Run or Wait.
func CmdExitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return cmd.ProcessState.ExitCode()
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode()
	}

	// the process never started (e.g. executable not found) so there is no
	// status to report
	return -1
}
