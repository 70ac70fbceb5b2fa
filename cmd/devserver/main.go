// Command devserver runs the in-memory reference backend for local
// development: the same pull/push/catalog/status surface the real backend
// serves, minus persistence.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wordnest/wordnest/internal/devserver"
	"github.com/wordnest/wordnest/internal/platform/logger"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	secret := flag.String("secret", "", "HMAC token secret (at least 32 characters)")
	level := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.Setup(logger.Options{Level: *level})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := devserver.Run(ctx, *addr, *secret, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
