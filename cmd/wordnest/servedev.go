package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wordnest/wordnest/internal/devserver"
	"github.com/wordnest/wordnest/internal/platform/logger"
)

func newServeDevCmd() *cobra.Command {
	var addr, secret, level string

	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Run the in-memory reference backend",
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC token secret (at least 32 characters)")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		log, err := logger.Setup(logger.Options{Level: level})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return devserver.Run(ctx, addr, secret, log)
	}
	return cmd
}
