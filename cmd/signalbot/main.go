package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/firstsignal/signalbot/pkg/advisory"
	"github.com/firstsignal/signalbot/pkg/config"
	"github.com/firstsignal/signalbot/pkg/directory"
	"github.com/firstsignal/signalbot/pkg/gateway"
	"github.com/firstsignal/signalbot/pkg/ledger"
	"github.com/firstsignal/signalbot/pkg/logger"
	"github.com/firstsignal/signalbot/pkg/loop"
	"github.com/firstsignal/signalbot/pkg/telegram"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Logging.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath); err != nil {
			logger.Warn("Failed to enable file logging: " + err.Error())
		}
	}

	dir, err := directory.Open(cfg.DirectoryDBPath())
	if err != nil {
		logger.Fatal("Failed to open directory store: " + err.Error())
	}
	defer dir.Close()

	transport, err := telegram.NewClient(cfg.Telegram)
	if err != nil {
		logger.Fatal("Failed to create telegram client: " + err.Error())
	}

	led := ledger.NewClient(cfg.Ledger)

	advisor, err := advisory.NewProvider(cfg.Advisory)
	if err != nil {
		logger.Fatal("Failed to create advisory provider: " + err.Error())
	}
	if advisor == nil {
		logger.Info("Advisory provider not configured, using static fallbacks")
	}

	lp := loop.NewLoop(cfg, transport, dir, led, advisor)
	gw := gateway.NewServer(cfg.Gateway, lp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := gw.Run(ctx); err != nil {
			logger.ErrorC("gateway", "Gateway stopped: "+err.Error())
			stop()
		}
	}()

	if err := lp.Run(ctx); err != nil {
		logger.Fatal("Event loop failed: " + err.Error())
	}

	logger.Info("Shutdown complete")
}
