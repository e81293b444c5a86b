package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LeoCommon/efiboot/cmd/efiboot/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewEfibootCommand(ctx).Execute(); err != nil {
		stop()
		os.Exit(1)
	}
}
