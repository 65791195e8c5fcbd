// framepace-backend: receives paced frames and relays them to viewers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-framepace/internal/config"
	"github.com/teslashibe/go-framepace/internal/log"
	"github.com/teslashibe/go-framepace/pkg/ingest"
	"github.com/teslashibe/go-framepace/pkg/metrics"
	"github.com/teslashibe/go-framepace/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	noMetrics := flag.Bool("no-metrics", false, "Do not serve /metrics")
	flag.Parse()

	cfg, err := config.LoadBackend(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *noMetrics {
		cfg.Metrics = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)
	logger := log.Component("backend")

	var metricsHandler http.Handler
	if cfg.Metrics {
		metricsHandler = metrics.Handler()
	}

	in := ingest.NewServer(logger)
	srv := web.NewServer(cfg.Addr(), in, metricsHandler, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting backend",
		"streaming", fmt.Sprintf("ws://localhost:%s/streaming", cfg.Port),
		"video_feed", fmt.Sprintf("http://localhost:%s/video_feed", cfg.Port),
		"metrics", cfg.Metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("backend exited", "error", err)
		os.Exit(1)
	}
	logger.Info("backend stopped", "frames_received", in.GetStats().FramesReceived)
}
