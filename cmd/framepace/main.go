// framepace: streams paced camera frames to a processing backend.
//
// Streaming is toggled with SIGUSR1 or by typing "t" + Enter on stdin;
// --autostart begins as soon as the backend channel is up.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-framepace/internal/config"
	"github.com/teslashibe/go-framepace/internal/log"
	"github.com/teslashibe/go-framepace/pkg/camera"
	"github.com/teslashibe/go-framepace/pkg/metrics"
	"github.com/teslashibe/go-framepace/pkg/platform"
	"github.com/teslashibe/go-framepace/pkg/protocol"
	"github.com/teslashibe/go-framepace/pkg/streamer"
	"github.com/teslashibe/go-framepace/pkg/transport"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("framepace exited", "error", err)
		os.Exit(1)
	}
}

// parseFlags loads the config file and environment, then applies flags.
func parseFlags() (config.StreamerConfig, error) {
	configPath := flag.String("config", "", "YAML config file")
	backendURL := flag.String("backend", "", "Backend websocket URL (overrides BACKEND_URL)")
	fps := flag.Float64("fps", 0, "Target frame rate (overrides FRAMEPACE_FPS)")
	cameraBackend := flag.String("camera", "", "Camera backend: auto, gocv, mock")
	device := flag.String("device", "", "Camera device index or path")
	preset := flag.String("preset", "", "Camera preset: "+strings.Join(camera.PresetNames(), ", "))
	format := flag.String("format", "", "Wire format: json, msgpack")
	autostart := flag.Bool("autostart", false, "Start streaming once connected")
	noWait := flag.Bool("no-wait", false, "Do not wait for the backend health check")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.LoadStreamer(*configPath)
	if err != nil {
		return cfg, err
	}

	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			return cfg, fmt.Errorf("unknown preset %q", *preset)
		}
		p.Device = cfg.Camera.Device
		cfg.Camera = *p
	}
	if *backendURL != "" {
		cfg.Transport.URL = *backendURL
	}
	if *fps > 0 {
		cfg.Pacing.FPS = *fps
	}
	if *cameraBackend != "" {
		cfg.CameraBackend = *cameraBackend
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *format != "" {
		cfg.Transport.Format = protocol.Format(*format)
	}
	if *autostart {
		cfg.Autostart = true
	}
	if *noWait {
		cfg.WaitForBackend = false
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.StreamerConfig) error {
	logger := log.Component("framepace")

	backend, err := platform.ParseBackend(cfg.CameraBackend)
	if err != nil {
		return err
	}
	cam, err := platform.NewAcquirer(ctx, backend, cfg.Camera, logger)
	if err != nil {
		return err
	}

	client, err := transport.NewClient(cfg.Transport, logger)
	if err != nil {
		return err
	}

	session, err := streamer.NewSession(streamer.Config{
		Camera: cfg.Camera,
		Target: cfg.Target(),
	}, cam.Acquirer, client, streamer.WithLogger(logger), streamer.WithEncoder(cam.Encoder))
	if err != nil {
		return err
	}
	session.OnStateChange(func(phase streamer.Phase, err error) {
		if err != nil {
			fmt.Printf("camera unavailable: %v\n", err)
		}
		// The toggle label offers the opposite action.
		if phase == streamer.PhaseActive {
			fmt.Println("[streaming] press t to stop")
		} else {
			fmt.Println("[idle] press t to start")
		}
	})

	if cfg.WaitForBackend {
		logger.Info("waiting for backend", "url", cfg.Transport.HealthURL())
		if err := transport.WaitForBackend(ctx, cfg.Transport.HealthURL(), cfg.HealthInterval, logger); err != nil {
			return err
		}
	}

	var autostart sync.Once
	client.OnConnect(func() {
		if cfg.Autostart {
			autostart.Do(func() { session.Start(ctx) })
		}
	})
	client.OnDisconnect(func(err error) {
		logger.Warn("backend channel lost; frames are dropped until it returns", "error", err)
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Run(gctx)
	})

	g.Go(func() error {
		toggles := make(chan struct{}, 1)
		go readToggles(os.Stdin, toggles)

		usr1 := make(chan os.Signal, 1)
		signal.Notify(usr1, syscall.SIGUSR1)
		defer signal.Stop(usr1)

		for {
			select {
			case <-gctx.Done():
				session.Stop()
				return nil
			case <-usr1:
				session.Toggle(gctx)
			case <-toggles:
				session.Toggle(gctx)
			}
		}
	})

	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter(cfg.MetricsAddr)
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return exporter.Shutdown(shutdownCtx)
		})
	}

	fmt.Println("[idle] press t to start")
	err = g.Wait()

	stats := session.Stats()
	logger.Info("session summary",
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"dropped", stats.Dropped)
	return err
}

// readToggles signals out for every "t" line on r.
func readToggles(r io.Reader, out chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.TrimSpace(strings.ToLower(scanner.Text())) != "t" {
			continue
		}
		select {
		case out <- struct{}{}:
		default:
		}
	}
}
