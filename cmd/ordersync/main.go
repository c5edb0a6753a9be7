package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mess-ordersync/internal/config"
	"mess-ordersync/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	opts, err := parseFlags(os.Args[1:], cfg)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.Layer("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, nil); err != nil {
		log.Error("ordersync stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	log.Info("ordersync stopped")
}
