// Package pipeline assembles the stream client, router, coalescing buffer and
// sinks from configuration and runs them as one unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rickgao/quote-stream/internal/auth"
	"github.com/rickgao/quote-stream/internal/config"
	"github.com/rickgao/quote-stream/internal/connection"
	"github.com/rickgao/quote-stream/internal/router"
	"github.com/rickgao/quote-stream/internal/sink"
)

// Pipeline owns every component between the socket and the sinks.
type Pipeline struct {
	cfg    *config.StreamerConfig
	logger *slog.Logger

	Client    *connection.StreamClient
	Router    *router.Router
	Buffer    *router.CoalescingBuffer
	Scheduler *router.FrameScheduler
	Board     *sink.Board
	Status    *sink.StatusStore
}

type options struct {
	transport connection.Transport
	status    []connection.StatusSink
	client    []connection.Option
}

// Option customizes New.
type Option func(*options)

// WithTransport replaces the WebSocket transport.
func WithTransport(t connection.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithStatusSink adds a status sink next to the built-in StatusStore.
func WithStatusSink(s connection.StatusSink) Option {
	return func(o *options) { o.status = append(o.status, s) }
}

// WithClientOptions passes options through to the stream client.
func WithClientOptions(opts ...connection.Option) Option {
	return func(o *options) { o.client = append(o.client, opts...) }
}

// New builds a pipeline from a validated config.
func New(cfg *config.StreamerConfig, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.transport == nil {
		tcfg := cfg.TransportConfig()
		if cfg.Auth.Enabled() {
			creds, err := auth.LoadCredentials(cfg.Auth.APIKey, cfg.Auth.PrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("load credentials: %w", err)
			}
			tcfg.Header = creds.HandshakeHeader
		}
		o.transport = connection.NewWebSocketTransport(tcfg, logger.With("component", "transport"))
	}

	rcfg := cfg.RouterConfig()
	p := &Pipeline{
		cfg:       cfg,
		logger:    logger,
		Board:     sink.NewBoard(),
		Status:    sink.NewStatusStore(),
		Scheduler: router.NewFrameScheduler(rcfg.FlushInterval),
	}

	p.Buffer = router.NewCoalescingBuffer(rcfg.QueueCapacity, p.Scheduler, p.Board.ApplyBatch)
	p.Router = router.NewRouter(p.Buffer, p.Board, logger.With("component", "router"))

	status := append(sink.MultiStatus{p.Status}, o.status...)
	p.Client = connection.NewStreamClient(
		cfg.StreamClientConfig(),
		o.transport,
		p.Router,
		status,
		logger.With("component", "stream"),
		o.client...,
	)

	return p, nil
}

// Run subscribes the configured symbols, connects and drives the frame
// scheduler on the calling goroutine until ctx is cancelled. The client is
// disposed on return.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, symbol := range p.cfg.Stream.Symbols {
		p.Client.Subscribe(symbol)
	}

	p.logger.Info("starting stream pipeline",
		"instance_id", p.cfg.Instance.ID,
		"url", p.cfg.Stream.URL,
		"symbols", len(p.cfg.Stream.Symbols),
		"queue_capacity", p.cfg.Buffer.QueueCapacity,
		"flush_interval", p.cfg.Buffer.FlushInterval,
	)

	p.Client.Connect(p.cfg.Stream.URL)
	defer p.Client.Dispose()

	err := p.Scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}

	p.logger.Info("stream pipeline stopped", "frames", p.Scheduler.Frames())
	return err
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
