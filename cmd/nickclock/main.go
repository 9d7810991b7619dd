package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/danhigham/nickclock/internal/app"
	"github.com/danhigham/nickclock/internal/config"
	"github.com/danhigham/nickclock/internal/logging"
	"github.com/danhigham/nickclock/internal/state"
	"github.com/danhigham/nickclock/internal/telegram"
	"github.com/danhigham/nickclock/internal/ui"
)

func main() {
	cfgPath := pflag.String("config", config.DefaultPath(), "path to the config file")
	headless := pflag.Bool("headless", false, "run the refresh loop without the terminal UI")
	logLevel := pflag.String("log-level", "", "log level (debug, info, warn, error); overrides the config")
	pflag.Parse()

	// Load config
	cfgStore, err := config.Open(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", *cfgPath, err)
		os.Exit(1)
	}
	cfg := cfgStore.Get()

	// Setup logging to file; the TUI owns the terminal.
	cfgDir := filepath.Dir(*cfgPath)
	if err := os.MkdirAll(cfgDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", cfgDir, err)
		os.Exit(1)
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	paths := []string{filepath.Join(cfgDir, "nickclock.log")}
	if *headless {
		paths = append(paths, "stderr")
	}
	logger, fellBack, err := logging.New(level, paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if fellBack {
		logger.Warn("Unknown log level, using info", zap.String("level", level))
	}

	// Create store (drawFunc will be set after the UI is created)
	store := state.New(nil)

	connector := telegram.NewConnector(telegram.NewGotdDialer(logger.Named("telegram")), logger.Named("connector"))
	svc := app.NewService(connector, cfgStore, store, logger)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *headless {
		if err := runHeadless(ctx, svc, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	tui := ui.NewApp(store, svc)
	store.SetDrawFunc(tui.DrawFunc())

	// Run TUI (blocks until quit)
	if err := tui.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	shutdown(svc)
}

// runHeadless resumes the stored session and keeps refreshing until ctx
// is cancelled.
func runHeadless(ctx context.Context, svc *app.Service, logger *zap.Logger) error {
	screen, err := svc.Boot(ctx)
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	if screen != app.ScreenMain {
		return fmt.Errorf("no usable session (next step: %s); log in with the terminal UI first", screen)
	}
	if !svc.SchedulerRunning() {
		if err := svc.SetAutoUpdate(ctx, true); err != nil {
			return fmt.Errorf("enable auto refresh: %w", err)
		}
	}

	logger.Info("Running headless", zap.String("preview", svc.Preview()))
	<-ctx.Done()
	shutdown(svc)
	return nil
}

func shutdown(svc *app.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Shutdown(ctx)
}
