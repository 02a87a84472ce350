package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"SubmissionRelay/internal/app"
	"SubmissionRelay/internal/config"
	"SubmissionRelay/internal/logging"
)

func main() {
	var cfgPath string
	var once bool
	flag.StringVar(&cfgPath, "config", os.Getenv("SUBMISSION_RELAY_CONFIG"), "path to YAML or TOML config")
	flag.BoolVar(&once, "once", false, "run a single relay cycle and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadFile(cfgPath)
	logger := logging.NewWithFormat(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}

	if once {
		err := application.Pipeline().RunCycle(ctx)
		_ = application.Stop(context.Background())
		if err != nil {
			logger.Error("relay cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := application.Start(ctx); err != nil {
		logger.Error("application start failed", "error", err)
		_ = application.Stop(context.Background())
		os.Exit(1)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify ready failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
