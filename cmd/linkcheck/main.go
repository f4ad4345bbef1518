// Command linkcheck discovers and validates links between tabular files.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/ekaya-inc/ekaya-linkage/pkg/cli"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := cli.NewRootCmd(Version).ExecuteContext(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, cli.ErrChecksFailed) {
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(2)
}
