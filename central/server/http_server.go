// Package server exposes the ledger over HTTP. Write routes require a
// caller identity in the X-Ledger-Identity header and pass through the IP
// whitelist; read routes are open, matching the ledger's own contract.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"fleetledger/central/config"
	"fleetledger/central/middleware"
	"fleetledger/ledger"
)

// IdentityHeader carries the caller identity on every write request.
// Authorization is capability-style: the identity is an explicit argument
// to the ledger, never inferred from the connection.
const IdentityHeader = "X-Ledger-Identity"

var (
	appendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetledger_appends_total",
		Help: "Ledger append attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	ledgerSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleetledger_records",
		Help: "Committed records per ledger.",
	}, []string{"kind"})
)

type Server struct {
	cfg *config.Config
	led *ledger.Ledger
}

func New(cfg *config.Config, led *ledger.Ledger) *Server {
	return &Server{cfg: cfg, led: led}
}

// Handler builds the full route table. Exposed separately from Run so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	whitelist := middleware.NewWhitelist(s.cfg.Whitelist)
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/metrics", whitelist.Wrap(http.HandlerFunc(s.handleAppendMetrics)))
	mux.Handle("POST /api/v1/scaling-events", whitelist.Wrap(http.HandlerFunc(s.handleAppendScalingEvent)))
	mux.Handle("POST /api/v1/loggers/grant", whitelist.Wrap(http.HandlerFunc(s.handleGrant)))
	mux.Handle("POST /api/v1/loggers/revoke", whitelist.Wrap(http.HandlerFunc(s.handleRevoke)))

	mux.HandleFunc("GET /api/v1/nodes/{id}/latest", s.handleLatest)
	mux.HandleFunc("GET /api/v1/metrics/count", s.handleMetricsCount)
	mux.HandleFunc("GET /api/v1/scaling-events/count", s.handleScalingEventsCount)
	mux.HandleFunc("GET /api/v1/metrics/history", s.handleHistory)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.HTTP.Addr, s.cfg.Server.HTTP.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Ledger HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		klog.Info("Shutting down ledger HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type appendMetricsRequest struct {
	NodeID            string            `json:"node_id"`
	MemoryUsageMB     float64           `json:"memory_usage_mb"`
	CPULoadPercent    float64           `json:"cpu_load_percent"`
	AllocatedMemoryMB float64           `json:"allocated_memory_mb"`
	Status            ledger.NodeStatus `json:"status"`
}

func (s *Server) handleAppendMetrics(w http.ResponseWriter, r *http.Request) {
	identity := r.Header.Get(IdentityHeader)

	var req appendMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	count, err := s.led.AppendMetrics(identity, req.NodeID, req.MemoryUsageMB, req.CPULoadPercent, req.AllocatedMemoryMB, req.Status)
	if err != nil {
		appendsTotal.WithLabelValues("metrics", "rejected").Inc()
		writeLedgerError(w, err)
		return
	}
	appendsTotal.WithLabelValues("metrics", "committed").Inc()
	ledgerSize.WithLabelValues("metrics").Set(float64(count))
	writeJSON(w, http.StatusCreated, map[string]int{"count": count})
}

type appendScalingEventRequest struct {
	NodeID string `json:"node_id"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (s *Server) handleAppendScalingEvent(w http.ResponseWriter, r *http.Request) {
	identity := r.Header.Get(IdentityHeader)

	var req appendScalingEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	count, err := s.led.AppendScalingEvent(identity, req.NodeID, req.Action, req.Reason)
	if err != nil {
		appendsTotal.WithLabelValues("scaling_event", "rejected").Inc()
		writeLedgerError(w, err)
		return
	}
	appendsTotal.WithLabelValues("scaling_event", "committed").Inc()
	ledgerSize.WithLabelValues("scaling_events").Set(float64(count))
	writeJSON(w, http.StatusCreated, map[string]int{"count": count})
}

type loggerRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(IdentityHeader)

	var req loggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.led.GrantLogger(caller, req.Identity); err != nil {
		writeLedgerError(w, err)
		return
	}
	klog.Infof("Granted logger %q", req.Identity)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(IdentityHeader)

	var req loggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.led.RevokeLogger(caller, req.Identity); err != nil {
		writeLedgerError(w, err)
		return
	}
	klog.Infof("Revoked logger %q", req.Identity)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	// A node that never reported yields the zero record with 200, the
	// same not-found sentinel the ledger itself uses.
	writeJSON(w, http.StatusOK, s.led.Latest(r.PathValue("id")))
}

func (s *Server) handleMetricsCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.led.MetricsCount()})
}

func (s *Server) handleScalingEventsCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.led.ScalingEventsCount()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	node := q.Get("node")

	start, err := strconv.Atoi(q.Get("start"))
	if err != nil {
		http.Error(w, "start must be an integer", http.StatusBadRequest)
		return
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil {
		http.Error(w, "count must be an integer", http.StatusBadRequest)
		return
	}

	records, err := s.led.QueryMetricsHistory(node, start, count)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// writeLedgerError maps ledger error kinds onto status codes so API
// clients can map them back.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotAuthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ledger.ErrOutOfRange):
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
	case errors.Is(err, ledger.ErrEmptyNodeID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Errorf("Encode response failed: %v", err)
	}
}
