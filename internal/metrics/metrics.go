package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/quote-stream/internal/connection"
	"github.com/rickgao/quote-stream/internal/router"
)

const namespace = "quote_stream"

// StreamSource is the subset of *connection.StreamClient read on scrape.
type StreamSource interface {
	Status() connection.ConnectionStatus
	Stats() connection.StreamStats
}

// RouterSource is the subset of *router.Router read on scrape.
type RouterSource interface {
	Stats() router.RouterStats
}

// Register adds collectors for stream and rt to reg. Either may be nil.
func Register(reg prometheus.Registerer, stream StreamSource, rt RouterSource) error {
	var collectors []prometheus.Collector
	if stream != nil {
		collectors = append(collectors, streamCollectors(stream)...)
	}
	if rt != nil {
		collectors = append(collectors, routerCollectors(rt)...)
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register collector: %w", err)
		}
	}
	return nil
}

func streamCollectors(s StreamSource) []prometheus.Collector {
	counter := func(name, help string, f func(connection.StreamStats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f(s.Stats())) })
	}

	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Connection state (0 idle, 1 connecting, 2 open, 3 reconnecting, 4 closed, 5 error).",
		}, func() float64 { return float64(s.Status().State) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "retry_count",
			Help:      "Reconnect attempts since the last successful open.",
		}, func() float64 { return float64(s.Status().RetryCount) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "exhausted",
			Help:      "1 when reconnect attempts are exhausted.",
		}, func() float64 {
			if s.Status().Exhausted {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscriptions",
			Help:      "Symbols with a positive reference count.",
		}, func() float64 { return float64(s.Stats().Subscriptions) }),
		counter("connect_attempts_total", "Transports opened.", func(st connection.StreamStats) int64 { return st.ConnectAttempts }),
		counter("opens_total", "Successful handshakes.", func(st connection.StreamStats) int64 { return st.Opens }),
		counter("frames_received_total", "Inbound frames.", func(st connection.StreamStats) int64 { return st.FramesReceived }),
		counter("stale_callbacks_total", "Callbacks ignored from superseded attempts.", func(st connection.StreamStats) int64 { return st.StaleCallbacks }),
		counter("send_errors_total", "Outbound frames that failed to send.", func(st connection.StreamStats) int64 { return st.SendErrors }),
		counter("reconnects_scheduled_total", "Reconnect timers armed.", func(st connection.StreamStats) int64 { return st.ReconnectsPlanned }),
	}
}

func routerCollectors(r RouterSource) []prometheus.Collector {
	counter := func(subsystem, name, help string, f func(router.RouterStats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f(r.Stats())) })
	}

	return []prometheus.Collector{
		counter("router", "messages_total", "Frames dispatched.", func(st router.RouterStats) int64 { return st.MessagesReceived }),
		counter("router", "ticks_total", "Tick frames routed to the buffer.", func(st router.RouterStats) int64 { return st.Ticks }),
		counter("router", "snapshots_total", "Order book frames applied.", func(st router.RouterStats) int64 { return st.Snapshots }),
		counter("router", "unknown_messages_total", "Frames with an unrecognized type.", func(st router.RouterStats) int64 { return st.UnknownMessages }),
		counter("router", "parse_errors_total", "Malformed frames.", func(st router.RouterStats) int64 { return st.ParseErrors }),
		counter("buffer", "ticks_added_total", "Ticks queued.", func(st router.RouterStats) int64 { return st.Buffer.Added }),
		counter("buffer", "ticks_dropped_total", "Ticks discarded on queue overflow.", func(st router.RouterStats) int64 { return st.Buffer.Dropped }),
		counter("buffer", "flushes_total", "Batches delivered.", func(st router.RouterStats) int64 { return st.Buffer.Flushes }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "queued_ticks",
			Help:      "Ticks waiting for the next flush.",
		}, func() float64 { return float64(r.Stats().Buffer.Queued) }),
	}
}
