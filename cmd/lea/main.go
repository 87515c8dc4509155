// Command lea is the CLI entry point: cobra command dispatch plus the
// process-level concern of mapping a returned error to spec.md §6's exit
// code contract.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carbonfact/lea/internal/cli"
	"github.com/carbonfact/lea/pkg/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lea:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var leaErr *core.Error
	if errors.As(err, &leaErr) {
		return leaErr.Kind.ExitCode()
	}
	return 1
}
