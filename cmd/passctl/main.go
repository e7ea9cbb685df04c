// Command passctl predicts overpasses and imaging opportunities from orbital
// elements without a running server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "passctl:", err)
		os.Exit(1)
	}
}
