package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/layer-ingest/internal/cache/layercache"
	"github.com/mohammed-shakir/layer-ingest/internal/core/config"
	"github.com/mohammed-shakir/layer-ingest/internal/core/executor"
	"github.com/mohammed-shakir/layer-ingest/internal/core/httpclient"
	"github.com/mohammed-shakir/layer-ingest/internal/core/server"
	"github.com/mohammed-shakir/layer-ingest/internal/ingest"
	"github.com/mohammed-shakir/layer-ingest/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/layer-ingest/internal/logger"
	"github.com/mohammed-shakir/layer-ingest/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "layer-ingest",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting layer-ingest",
		"addr", cfg.Addr,
		"version", Version,
		"cache_max_bytes", cfg.CacheMaxBytes,
		"cache_max_age", cfg.CacheMaxAge.String(),
		"fetch_timeout", cfg.FetchTimeout.String(),
		"invalidation", cfg.Invalidation.Enabled)

	cache := layercache.New(layercache.Config{
		MaxBytes: cfg.CacheMaxBytes,
		MaxAge:   cfg.CacheMaxAge,
	})
	exec := executor.New(appLog, httpclient.NewOutbound(cfg.FetchTimeout), cfg.FetchMaxBody)
	pipeline := ingest.New(exec, cache, ingest.Options{
		Logger:           appLog,
		ValidationSample: cfg.ValidationSample,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{Layers: pipeline, Invalidator: pipeline}

	if cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			Build: metrics.BuildInfo{
				Version:   firstNonEmpty(os.Getenv("BUILD_VERSION"), Version),
				Revision:  os.Getenv("BUILD_REVISION"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		deps.Metrics = p.Handler()
	}

	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), pipeline, kafkaconsumer.Options{
			Logger: appLog,
			ZLog:   &zl,
		})
		deps.Ready = consumer
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
