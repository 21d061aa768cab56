// Package api exposes the decision engine over HTTP: the /v1/assess
// endpoint the proxy consults, the health and dashboard read-models, and
// the Prometheus scrape surface. Every route except /metrics passes
// through the full gate pipeline.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// Server hosts the engine's HTTP surface.
type Server struct {
	chain  *pipeline.Chain
	stats  *StatsAggregator
	env    string
	router *mux.Router
}

// NewServer builds the router with the pipeline middleware installed.
func NewServer(chain *pipeline.Chain, stats *StatsAggregator, env string) *Server {
	s := &Server{
		chain: chain,
		stats: stats,
		env:   env,
	}

	r := mux.NewRouter()
	r.Use(s.pipelineMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/v1/assess", s.handleAssess).Methods("POST")
	r.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/api/v1/health", s.handleDashboardHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router = r
	return s
}

// Handler returns the HTTP entrypoint, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving on the given port.
func (s *Server) Start(port string) error {
	addr := fmt.Sprintf(":%s", port)
	slog.Info("VEIL engine listening", "addr", addr, "env", s.env)
	return http.ListenAndServe(addr, s.router)
}

// statusRecorder captures the application handler's status code for the
// ledger layer.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// pipelineMiddleware runs every request through the gate chain. The
// terminal step executes the application handler; a short-circuiting gate
// answers with the verdict instead.
func (s *Server) pipelineMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The scrape endpoint never consults the pipeline; scrapes are
		// not agent actions and would drown the ledger.
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		pctx := pipeline.NewContext(r)

		var handlerRan bool
		terminal := func() core.Verdict {
			handlerRan = true

			// Gates may have consumed the body; hand the handler the
			// buffered copy.
			body, err := pctx.Body()
			if err != nil {
				slog.Error("Body buffering failed", "error", err)
				http.Error(w, "body read failure", http.StatusInternalServerError)
				return core.Verdict{Status: core.StatusBlock, Gate: "host", Reason: "Body Read Failure", HTTPStatus: 500}
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			v := core.Allow("host")
			v.HTTPStatus = rec.status
			return v
		}

		verdict := s.chain.Assess(pctx, terminal)

		if !handlerRan {
			writeVerdict(w, verdict)
		}
	})
}

func writeVerdict(w http.ResponseWriter, v core.Verdict) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(v.HTTPStatus)
	json.NewEncoder(w).Encode(core.AssessmentResponse{
		Verdict: v.Status,
		Reason:  v.Reason,
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "active", "env": s.env})
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req core.AssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid assessment request", http.StatusBadRequest)
		return
	}

	slog.Info("Assessment admitted", "method", req.Method, "host", req.Host)

	// Reaching the handler means every gate forwarded.
	writeJSON(w, core.AssessmentResponse{
		Verdict: core.StatusAllow,
		Reason:  "All Gates Passed",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stats.Snapshot())
}

func (s *Server) handleDashboardHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "component": "dashboard_api"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
