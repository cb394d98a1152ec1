// Package metrics exposes the mock PLC's /metrics, /health, /ready trio,
// the same HTTP surface the teacher's metrics.go serves for its slave farm,
// reporting connection and request counters, bytes transferred, and the
// scan engine's and CPU mode cell's live state instead of slave/voltage
// samples.
package metrics

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mcplc/internal/cpumode"
	"mcplc/internal/ladder"
	"mcplc/internal/mcserver"
)

// Collector serves metrics derived from a running Server and Engine.
type Collector struct {
	server *mcserver.Server
	engine *ladder.Engine
	mode   *cpumode.Cell
	logger *zap.Logger
}

// Snapshot is the point-in-time metrics payload served as JSON or rendered
// as Prometheus text.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`

	ServerState string `json:"server_state"`
	EngineState string `json:"engine_state"`
	CPUMode     string `json:"cpu_mode"`
	ScanCount   uint64 `json:"scan_count"`

	ConnectionsTotal  uint64 `json:"connections_total"`
	ConnectionsActive int64  `json:"connections_active"`
	RequestCount      uint64 `json:"request_count"`
	ErrorCount        uint64 `json:"error_count"`
	ErrorRate         float64 `json:"error_rate"`
	BytesReceived     uint64 `json:"bytes_received"`
	BytesSent         uint64 `json:"bytes_sent"`
}

// NewCollector builds a Collector reading live counters off server, the scan
// state off engine, and the run mode off mode. engine may be nil when no
// ladder program has been loaded, in which case engine_state is reported as
// "stopped" and scan_count as zero.
func NewCollector(server *mcserver.Server, engine *ladder.Engine, mode *cpumode.Cell, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		server: server,
		engine: engine,
		mode:   mode,
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Snapshot reads every counter and builds the current payload.
func (c *Collector) Snapshot() Snapshot {
	st := &c.server.Stats
	reqs := st.RequestCount.Load()
	errs := st.ErrorCount.Load()

	snap := Snapshot{
		Timestamp:         time.Now(),
		ServerState:       c.server.State().String(),
		CPUMode:           c.mode.Get().String(),
		ConnectionsTotal:  st.ConnectionsTotal.Load(),
		ConnectionsActive: st.ConnectionsActive.Load(),
		RequestCount:      reqs,
		ErrorCount:        errs,
		BytesReceived:     st.BytesReceived.Load(),
		BytesSent:         st.BytesSent.Load(),
	}
	if !st.StartTime.IsZero() {
		snap.Uptime = time.Since(st.StartTime).String()
	}
	if reqs > 0 {
		snap.ErrorRate = float64(errs) / float64(reqs) * 100
	}
	if c.engine != nil {
		snap.EngineState = c.engine.State().String()
		snap.ScanCount = c.engine.ScanCount()
	} else {
		snap.EngineState = "stopped"
	}
	return snap
}

// Handler returns a net/http handler serving /metrics, /health, /ready on
// a fresh mux, the same three-endpoint shape metrics.go registers.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", c.handleMetrics)
	mux.HandleFunc("/health", c.handleHealth)
	mux.HandleFunc("/ready", c.handleReady)
	return mux
}

// Serve starts an HTTP server on addr with Handler, logging and returning
// once the listener is bound; the server itself runs in a background
// goroutine until the process exits or ctx-driven shutdown is added by the
// caller.
func (c *Collector) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	c.logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := http.Serve(ln, c.Handler()); err != nil {
			c.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (c *Collector) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := c.Snapshot()

	if r.Header.Get("Accept") == "application/json" || r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "# HELP mcmock_connections_total Total accepted connections\n")
	fmt.Fprintf(w, "# TYPE mcmock_connections_total counter\n")
	fmt.Fprintf(w, "mcmock_connections_total %d\n\n", snap.ConnectionsTotal)

	fmt.Fprintf(w, "# HELP mcmock_connections_active Currently open connections\n")
	fmt.Fprintf(w, "# TYPE mcmock_connections_active gauge\n")
	fmt.Fprintf(w, "mcmock_connections_active %d\n\n", snap.ConnectionsActive)

	fmt.Fprintf(w, "# HELP mcmock_requests_total Total decoded MC requests\n")
	fmt.Fprintf(w, "# TYPE mcmock_requests_total counter\n")
	fmt.Fprintf(w, "mcmock_requests_total %d\n\n", snap.RequestCount)

	fmt.Fprintf(w, "# HELP mcmock_errors_total Requests and frame errors that produced a non-OK end code or closed connection\n")
	fmt.Fprintf(w, "# TYPE mcmock_errors_total counter\n")
	fmt.Fprintf(w, "mcmock_errors_total %d\n\n", snap.ErrorCount)

	fmt.Fprintf(w, "# HELP mcmock_bytes_received_total Total bytes read from clients\n")
	fmt.Fprintf(w, "# TYPE mcmock_bytes_received_total counter\n")
	fmt.Fprintf(w, "mcmock_bytes_received_total %d\n\n", snap.BytesReceived)

	fmt.Fprintf(w, "# HELP mcmock_bytes_sent_total Total bytes written to clients\n")
	fmt.Fprintf(w, "# TYPE mcmock_bytes_sent_total counter\n")
	fmt.Fprintf(w, "mcmock_bytes_sent_total %d\n\n", snap.BytesSent)

	fmt.Fprintf(w, "# HELP mcmock_scan_count_total Ladder engine scan cycles completed\n")
	fmt.Fprintf(w, "# TYPE mcmock_scan_count_total counter\n")
	fmt.Fprintf(w, "mcmock_scan_count_total %d\n", snap.ScanCount)
}

func (c *Collector) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (c *Collector) handleReady(w http.ResponseWriter, r *http.Request) {
	if c.server.State() != mcserver.StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
