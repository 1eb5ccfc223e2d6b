// streamer runs the quote stream pipeline with the ops HTTP server.
// Usage: go run ./cmd/streamer --config configs/streamer.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quote-stream/internal/config"
	"github.com/rickgao/quote-stream/internal/connection"
	"github.com/rickgao/quote-stream/internal/metrics"
	"github.com/rickgao/quote-stream/internal/pipeline"
	"github.com/rickgao/quote-stream/internal/server"
	"github.com/rickgao/quote-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("streamer failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging
	logger, err := pipeline.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	logger = logger.With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	// Create context cancelled on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg, p.Client, p.Router); err != nil {
		return err
	}

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		MetricsPath: cfg.Server.MetricsPath,
		InstanceID:  cfg.Instance.ID,
	}, p.Client, p.Board, reg, logger.With("component", "server"))

	// Exhaustion is terminal until the process is restarted
	p.Status.OnStateChange(func(st connection.ConnectionStatus) {
		if st.Exhausted {
			logger.Error("stream gave up reconnecting",
				"retries", st.RetryCount,
				"error", st.LastError,
			)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()
	logger.Info("streamer stopped")
	return err
}
