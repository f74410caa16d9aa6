package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"freightgate/internal/app"
	"freightgate/internal/config"
)

var (
	configFile = flag.String("config", "configs/freightgate.yaml", "config file path")
	logLevel   = flag.String("log-level", "", "log level override")
	watch      = flag.Bool("watch-config", true, "reload configuration on file change")
)

func main() {
	flag.Parse()

	cfg, err := config.NewLoader(*configFile).Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := cfg.Gateway.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	levelVar := setupLogging(level, cfg.Gateway.Logging.Format)

	server, err := app.NewServer(cfg, slog.Default())
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	var watcher *config.Watcher
	if *watch {
		watcher, err = config.NewWatcher(*configFile, func(next *config.Config) {
			// CLI override beats the file, even across reloads
			if *logLevel == "" {
				levelVar.Set(parseLevel(next.Gateway.Logging.Level))
			}
			server.ApplyConfig(next)
		}, slog.Default())
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			slog.Warn("config hot reload unavailable", "error", err)
			watcher = nil
		}
	}

	<-ctx.Done()

	if watcher != nil {
		watcher.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("failed to stop server", "error", err)
		os.Exit(1)
	}
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func parseLevel(level string) slog.Level {
	if lvl, ok := logLevels[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

func setupLogging(level, format string) *slog.LevelVar {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))

	opts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return levelVar
}
