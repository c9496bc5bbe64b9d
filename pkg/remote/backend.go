package remote

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/amenzhinsky/go-memexec"
	"github.com/rs/zerolog"

	"github.com/stackb/classfactory/pkg/procutil"
)

type BackendOption func(*Backend) *Backend

// WithExecutable runs the backend from an executable on disk.
func WithExecutable(path string) BackendOption {
	return func(b *Backend) *Backend {
		b.execPath = path
		return b
	}
}

// WithExecutableImage runs the backend from an executable image held in
// memory.
func WithExecutableImage(image []byte) BackendOption {
	return func(b *Backend) *Backend {
		b.execImage = image
		return b
	}
}

// WithArgs sets the arguments preceding the "-port" flag.
func WithArgs(args ...string) BackendOption {
	return func(b *Backend) *Backend {
		b.args = args
		return b
	}
}

// WithEnv appends "key=value" entries to the backend environment.
func WithEnv(env ...string) BackendOption {
	return func(b *Backend) *Backend {
		b.env = append(b.env, env...)
		return b
	}
}

// WithPort sets the port; zero picks a free one.
func WithPort(port int) BackendOption {
	return func(b *Backend) *Backend {
		b.port = port
		return b
	}
}

// WithDialTimeout bounds how long Start waits for the backend to listen.
func WithDialTimeout(timeout time.Duration) BackendOption {
	return func(b *Backend) *Backend {
		b.dialTimeout = timeout
		return b
	}
}

// WithBackendLogger sets the logger.
func WithBackendLogger(logger zerolog.Logger) BackendOption {
	return func(b *Backend) *Backend {
		b.logger = logger
		return b
	}
}

var defaultBackendOptions = []BackendOption{
	WithArgs("serve"),
	WithDialTimeout(10 * time.Second),
	WithBackendLogger(zerolog.Nop()),
}

// NewBackend constructs a Backend.  One of WithExecutable or
// WithExecutableImage is required.
func NewBackend(options ...BackendOption) *Backend {
	b := &Backend{host: "localhost"}
	for _, opt := range append(defaultBackendOptions, options...) {
		b = opt(b)
	}
	return b
}

// Backend is a compiler backend subprocess.
type Backend struct {
	host        string
	port        int
	args        []string
	env         []string
	execPath    string
	execImage   []byte
	dialTimeout time.Duration
	logger      zerolog.Logger

	exe *memexec.Exec
	cmd *exec.Cmd
}

// Address returns the host:port the backend listens on.
func (b *Backend) Address() string {
	return net.JoinHostPort(b.host, strconv.Itoa(b.port))
}

// Start launches the process and waits until it accepts connections.
func (b *Backend) Start() error {
	t1 := time.Now()

	if b.port == 0 {
		port, err := getFreePort()
		if err != nil {
			return fmt.Errorf("getting backend port: %w", err)
		}
		b.port = port
	}

	args := append(append([]string{}, b.args...), fmt.Sprintf("-port=%d", b.port))

	var cmd *exec.Cmd
	switch {
	case b.execImage != nil:
		exe, err := memexec.New(b.execImage)
		if err != nil {
			return fmt.Errorf("preparing backend image: %w", err)
		}
		b.exe = exe
		cmd = exe.Command(args...)
	case b.execPath != "":
		cmd = exec.Command(b.execPath, args...)
	default:
		return errors.New("backend executable not configured")
	}
	cmd.Env = append(os.Environ(), b.env...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	b.cmd = cmd

	if err := cmd.Start(); err != nil {
		b.close()
		return fmt.Errorf("starting backend process: %w", err)
	}
	go func() {
		err := cmd.Wait()
		if err != nil && err.Error() != "signal: killed" {
			b.logger.Warn().Int("exit_code", procutil.CmdExitCode(cmd, err)).Msgf("backend exited: %v", err)
		}
	}()

	if !waitForConnectionAvailable(b.host, b.port, b.dialTimeout) {
		b.Stop()
		return fmt.Errorf("waiting to connect to compiler backend %s within %s", b.Address(), b.dialTimeout)
	}

	b.logger.Debug().Msgf("compiler backend started at %s (%v)", b.Address(), time.Since(t1).Round(time.Millisecond))

	return nil
}

// Stop kills the process and releases the executable image.
func (b *Backend) Stop() error {
	var err error
	if b.cmd != nil && b.cmd.Process != nil {
		err = b.cmd.Process.Kill()
		b.cmd = nil
	}
	b.close()
	return err
}

func (b *Backend) close() {
	if b.exe != nil {
		b.exe.Close()
		b.exe = nil
	}
}

// getFreePort asks the kernel for a free open port that is ready to use.
func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitForConnectionAvailable dials host:port every 100 milliseconds until it
// connects and returns true.  If it fails to connect by the timeout deadline,
// returns false.
func waitForConnectionAvailable(host string, port int, timeout time.Duration) bool {
	target := net.JoinHostPort(host, strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", target, 250*time.Millisecond)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
