// Command jobq runs and operates a jobq deployment: the HTTP API, the
// worker pool, and one-off administrative commands against the configured
// store.
//
// Usage:
//
//	JOBQ_STORE=postgres JOBQ_DSN=postgres://localhost/jobq jobq migrate
//	JOBQ_API_TOKEN=secret jobq serve
//	jobq enqueue mcq_import --payload '{"fileId":"f-1"}'
//	jobq dlq list
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
