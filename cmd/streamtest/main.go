// streamtest connects to a quote stream and prints every coalesced batch to
// the console as a table.
// Usage: go run ./cmd/streamtest --url wss://stream.example.com/v1/quotes --symbols AAPL,MSFT
//
// Optional environment variables for signed handshakes:
//
//	STREAM_API_KEY          - API key ID
//	STREAM_PRIVATE_KEY_PATH - Path to your RSA private key PEM file
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/rickgao/quote-stream/internal/config"
	"github.com/rickgao/quote-stream/internal/connection"
	"github.com/rickgao/quote-stream/internal/model"
	"github.com/rickgao/quote-stream/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	url := flag.String("url", "", "stream URL, overrides config")
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides config")
	every := flag.Int("every", 1, "print every Nth batch")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(*configPath, *url, *symbols)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	p.Status.OnStateChange(func(st connection.ConnectionStatus) {
		fmt.Fprintf(os.Stderr, "%s  state=%s retry=%d", time.Now().Format("15:04:05.000"), st.State, st.RetryCount)
		if st.LastError != nil {
			fmt.Fprintf(os.Stderr, " error=%v", st.LastError)
		}
		fmt.Fprintln(os.Stderr)
	})

	var batches atomic.Int64
	n := int64(*every)
	if n < 1 {
		n = 1
	}
	p.Board.OnBatch(func(batch map[string]model.Tick) {
		if batches.Add(1)%n != 0 {
			return
		}
		printBatch(batch)
	})

	if err := p.Run(ctx); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}

	rs := p.Router.Stats()
	fmt.Printf("\nframes=%d ticks=%d dropped=%d batches=%d parse_errors=%d\n",
		rs.MessagesReceived, rs.Ticks, rs.Buffer.Dropped, batches.Load(), rs.ParseErrors)
}

func loadConfig(path, url, symbols string) (*config.StreamerConfig, error) {
	var cfg *config.StreamerConfig
	if path != "" {
		var err error
		cfg, err = config.LoadWithDefaults(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
		cfg.Auth.APIKey = os.Getenv("STREAM_API_KEY")
		cfg.Auth.PrivateKeyPath = os.Getenv("STREAM_PRIVATE_KEY_PATH")
	}

	if url != "" {
		cfg.Stream.URL = url
	}
	if symbols != "" {
		cfg.Stream.Symbols = strings.Split(symbols, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printBatch(batch map[string]model.Tick) {
	symbols := make([]string, 0, len(batch))
	for s := range batch {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Symbol", "Price", "Change", "Change %", "Volume", "Time"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	for _, s := range symbols {
		tick := batch[s]
		change := tick.Change.StringFixed(2)
		if tick.Change.IsNegative() {
			change = text.FgRed.Sprint(change)
		} else if tick.Change.IsPositive() {
			change = text.FgGreen.Sprint(change)
		}

		ts := ""
		if tick.Timestamp > 0 {
			ts = time.UnixMilli(tick.Timestamp).Format("15:04:05.000")
		}

		t.AppendRow(table.Row{
			s,
			tick.Price.StringFixed(2),
			change,
			tick.ChangePercent.StringFixed(2),
			tick.Volume,
			ts,
		})
	}
	t.Render()
}
