// chunkgraph partitions bundler module graphs into chunks, optimizes them
// and keeps snapshots for incremental rebuilds.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/chunkgraph/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	os.Exit(cli.GetExitCode(err))
}
