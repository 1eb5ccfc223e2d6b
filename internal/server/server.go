// Package server exposes the ops HTTP API: health, connection status,
// subscription management, latest quotes and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/quote-stream/internal/connection"
	"github.com/rickgao/quote-stream/internal/model"
	"github.com/rickgao/quote-stream/internal/version"
)

// Stream is the part of the stream client the server drives.
type Stream interface {
	Status() connection.ConnectionStatus
	SubscribedSymbols() []string
	RefCount(symbol string) int
	Subscribe(symbol string)
	Unsubscribe(symbol string) (remaining int, ok bool)
}

// Quotes is the data sink as seen by the server.
type Quotes interface {
	Tick(symbol string) (model.Tick, bool)
	Book(symbol string) (model.OrderBook, bool)
	Ticks() []model.Tick
	Forget(symbol string)
}

// Config holds server settings.
type Config struct {
	Port        int
	MetricsPath string
	InstanceID  string
}

// Server is the ops HTTP server.
type Server struct {
	cfg    Config
	stream Stream
	quotes Quotes
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the server and its routes. gatherer may be nil to disable the
// metrics endpoint.
func New(cfg Config, stream Stream, quotes Quotes, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		cfg:    cfg,
		stream: stream,
		quotes: quotes,
		logger: logger,
		engine: engine,
	}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/status", s.getStatus)

	subs := s.engine.Group("/subscriptions")
	subs.GET("", s.listSubscriptions)
	subs.POST("/:symbol", s.subscribe)
	subs.DELETE("/:symbol", s.unsubscribe)

	if s.quotes != nil {
		quotes := s.engine.Group("/debug/quotes")
		quotes.GET("", s.listQuotes)
		quotes.GET("/:symbol", s.getQuote)
	}

	if gatherer != nil {
		s.engine.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	s.logger.Info("ops server stopped")
	return nil
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// statusView is the JSON form of a ConnectionStatus.
type statusView struct {
	State         string     `json:"state"`
	URL           string     `json:"url,omitempty"`
	AttemptID     string     `json:"attempt_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	RetryCount    int        `json:"retry_count"`
	LastError     string     `json:"last_error,omitempty"`
	Exhausted     bool       `json:"exhausted"`
}

func newStatusView(st connection.ConnectionStatus) statusView {
	v := statusView{
		State:      st.State.String(),
		URL:        st.URL,
		RetryCount: st.RetryCount,
		Exhausted:  st.Exhausted,
	}
	if st.AttemptID != uuid.Nil {
		v.AttemptID = st.AttemptID.String()
	}
	if !st.LastMessageAt.IsZero() {
		t := st.LastMessageAt
		v.LastMessageAt = &t
	}
	if st.LastError != nil {
		v.LastError = st.LastError.Error()
	}
	return v
}

func (s *Server) getHealth(c *gin.Context) {
	st := s.stream.Status()

	code := http.StatusOK
	health := "ok"
	if st.State != connection.StateOpen {
		code = http.StatusServiceUnavailable
		health = "degraded"
	}

	c.JSON(code, gin.H{
		"status":   health,
		"state":    st.State.String(),
		"instance": s.cfg.InstanceID,
		"version":  version.Get(),
	})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, newStatusView(s.stream.Status()))
}

type subscriptionView struct {
	Symbol   string `json:"symbol"`
	RefCount int    `json:"ref_count"`
}

func (s *Server) listSubscriptions(c *gin.Context) {
	symbols := s.stream.SubscribedSymbols()
	out := make([]subscriptionView, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, subscriptionView{Symbol: sym, RefCount: s.stream.RefCount(sym)})
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func (s *Server) subscribe(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	s.stream.Subscribe(symbol)
	s.logger.Info("subscribed via api", "symbol", symbol)
	c.JSON(http.StatusOK, subscriptionView{Symbol: symbol, RefCount: s.stream.RefCount(symbol)})
}

func (s *Server) unsubscribe(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	remaining, ok := s.stream.Unsubscribe(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not subscribed"})
		return
	}
	if remaining == 0 && s.quotes != nil {
		s.quotes.Forget(symbol)
	}
	s.logger.Info("unsubscribed via api", "symbol", symbol, "remaining", remaining)
	c.JSON(http.StatusOK, subscriptionView{Symbol: symbol, RefCount: remaining})
}

type quoteView struct {
	Tick      *model.Tick      `json:"tick,omitempty"`
	OrderBook *model.OrderBook `json:"orderbook,omitempty"`
}

func (s *Server) listQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ticks": s.quotes.Ticks()})
}

func (s *Server) getQuote(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}

	var v quoteView
	if t, ok := s.quotes.Tick(symbol); ok {
		v.Tick = &t
	}
	if b, ok := s.quotes.Book(symbol); ok {
		v.OrderBook = &b
	}
	if v.Tick == nil && v.OrderBook == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for symbol"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func symbolParam(c *gin.Context) (string, bool) {
	symbol := connection.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return "", false
	}
	return symbol, true
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
