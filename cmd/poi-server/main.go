package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/poi-cache/internal/app"
	"github.com/mohammed-shakir/poi-cache/internal/core/config"
	"github.com/mohammed-shakir/poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/poi-cache/internal/core/server"
	"github.com/mohammed-shakir/poi-cache/internal/logger"
	"github.com/mohammed-shakir/poi-cache/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "poi-cache",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting poi-cache",
		"addr", cfg.Addr,
		"version", Version,
		"cache_backend", cfg.Cache.Backend,
		"places_url", cfg.Places.URL,
		"h3_res", cfg.H3Res)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mp := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	a, err := app.New(ctx, cfg, appLog, app.Options{Metrics: mp})
	if err != nil {
		appLog.Error("service setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("shutdown", "err", err)
		}
	}()

	if srv := mp.Server(); srv != nil {
		go func() {
			appLog.Info("metrics listen", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				appLog.Warn("metrics shutdown", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg.Addr, appLog, a.Handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
