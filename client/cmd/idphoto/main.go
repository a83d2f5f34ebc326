package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close(context.Background())
	if err != nil {
		os.Exit(1)
	}
}
