package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/stackb/classfactory/pkg/builtins"
	"github.com/stackb/classfactory/pkg/compile"
	"github.com/stackb/classfactory/pkg/remote"
)

func runServe(logger zerolog.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	host := fs.String("host", "localhost", "bind host")
	port := fs.Int("port", 8040, "bind port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", *host, *port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	compiler := compile.NewStarlarkCompiler(
		compile.WithLogger(logger),
		compile.WithPredeclared(builtins.Predeclared()),
	)
	server := remote.NewServer(compiler, remote.WithServerLogger(logger))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Info().Msgf("received %v, stopping", sig)
		server.Stop()
	}()

	return server.Serve(lis)
}
