// Package gateway serves the gatekeeper surface over HTTP: a JSON API for
// invocations and approvals plus the dashboard pages.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/dashboard"
	"github.com/MEKXH/gatekeeper/internal/engine"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/MEKXH/gatekeeper/internal/version"
)

const maxBodyBytes = 8 << 20

// Gatekeeper is the engine surface the gateway exposes.
type Gatekeeper interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (engine.Outcome, error)
	Resolve(ctx context.Context, id string, verdict engine.Verdict) (engine.Outcome, error)
	ListPending() []approval.PendingAction
	Audit(limit int, filter audit.Filter) []audit.Record
	AuditLen() int
	VerifyAudit() error
	Policy() engine.PolicyView
	Snapshot(recent int) engine.Snapshot
}

type Server struct {
	cfg        config.GatewayConfig
	handler    http.Handler
	logger     *slog.Logger
	httpServer *http.Server
}

func New(cfg config.GatewayConfig, gate Gatekeeper, m *metrics.RuntimeMetrics, logger *slog.Logger) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18790
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:     cfg,
		handler: NewHandler(cfg.Token, gate, m, logger),
		logger:  logger,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type handler struct {
	token   string
	gate    Gatekeeper
	metrics *metrics.RuntimeMetrics
	logger  *slog.Logger
}

// NewHandler builds the gateway routes. A non-empty token is required as a
// bearer token on every route except /health and /version.
func NewHandler(token string, gate Gatekeeper, m *metrics.RuntimeMetrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{token: strings.TrimSpace(token), gate: gate, metrics: m, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": getRequestID(r),
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		info := version.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    info.Version,
			"commit":     info.Commit,
			"go_version": info.GoVersion,
			"request_id": getRequestID(r),
		})
	})
	mux.HandleFunc("POST /invoke", h.protected(h.invoke))
	mux.HandleFunc("GET /pending", h.protected(h.pending))
	mux.HandleFunc("POST /pending/{id}/approve", h.protected(h.resolve(engine.Approve)))
	mux.HandleFunc("POST /pending/{id}/deny", h.protected(h.resolve(engine.Deny)))
	mux.HandleFunc("GET /audit", h.protected(h.audit))
	mux.HandleFunc("GET /audit/verify", h.protected(h.verify))
	mux.HandleFunc("GET /policy", h.protected(h.policy))
	mux.HandleFunc("GET /dashboard", h.protected(h.dashboardHTML))
	mux.HandleFunc("GET /dashboard.txt", h.protected(h.dashboardText))
	mux.HandleFunc("GET /metrics", h.protected(h.runtimeMetrics))
	return mux
}

type requestHandler func(w http.ResponseWriter, r *http.Request, requestID string)

func (h *handler) protected(next requestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if h.token != "" && !isAuthorized(r, h.token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if h.gate == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "gatekeeper is not configured")
			return
		}
		next(w, r, requestID)
	}
}

func (h *handler) invoke(w http.ResponseWriter, r *http.Request, requestID string) {
	var req struct {
		Tool      string         `json:"tool"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
		return
	}
	if strings.TrimSpace(req.Tool) == "" {
		writeError(w, requestID, http.StatusBadRequest, "bad_request", "tool is required")
		return
	}

	outcome, err := h.gate.Invoke(r.Context(), req.Tool, req.Arguments)
	h.writeOutcome(w, requestID, outcome, err)
}

func (h *handler) resolve(verdict engine.Verdict) requestHandler {
	return func(w http.ResponseWriter, r *http.Request, requestID string) {
		id := strings.TrimSpace(r.PathValue("id"))
		outcome, err := h.gate.Resolve(r.Context(), id, verdict)
		switch {
		case errors.Is(err, approval.ErrNotFound):
			writeError(w, requestID, http.StatusNotFound, "not_found", fmt.Sprintf("action '%s' not found", id))
		case errors.Is(err, approval.ErrAlreadyResolved):
			writeError(w, requestID, http.StatusConflict, "already_resolved", fmt.Sprintf("action '%s' is already resolved", id))
		default:
			h.writeOutcome(w, requestID, outcome, err)
		}
	}
}

// writeOutcome reports decisions, blocks included, as 200. Executor failures
// carry the outcome plus the error text.
func (h *handler) writeOutcome(w http.ResponseWriter, requestID string, outcome engine.Outcome, err error) {
	var execErr *engine.ExecutorError
	if err != nil && !errors.As(err, &execErr) {
		h.logger.Error("gateway request failed", "request_id", requestID, "tool", outcome.Tool, "error", err)
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	body := map[string]any{
		"outcome":    outcome,
		"request_id": requestID,
	}
	if execErr != nil {
		body["error"] = execErr.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) pending(w http.ResponseWriter, r *http.Request, requestID string) {
	pending := h.gate.ListPending()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":    pending,
		"count":      len(pending),
		"request_id": requestID,
	})
}

func (h *handler) audit(w http.ResponseWriter, r *http.Request, requestID string) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	filter := audit.Filter{Tool: query.Get("tool"), ActionID: query.Get("action_id")}
	if raw := strings.TrimSpace(query.Get("decision")); raw != "" {
		decision, ok := audit.ParseDecision(raw)
		if !ok {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown decision %q", raw))
			return
		}
		filter.Decision = decision
	}

	records := h.gate.Audit(limit, filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"records":    records,
		"count":      len(records),
		"total":      h.gate.AuditLen(),
		"request_id": requestID,
	})
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request, requestID string) {
	body := map[string]any{
		"ok":         true,
		"records":    h.gate.AuditLen(),
		"request_id": requestID,
	}
	if err := h.gate.VerifyAudit(); err != nil {
		body["ok"] = false
		body["error"] = err.Error()
		var chainErr *audit.ChainError
		if errors.As(err, &chainErr) {
			body["seq"] = chainErr.Seq
		}
		h.logger.Error("audit chain verification failed", "request_id", requestID, "error", err)
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) policy(w http.ResponseWriter, r *http.Request, requestID string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"policy":     h.gate.Policy(),
		"request_id": requestID,
	})
}

func (h *handler) dashboardHTML(w http.ResponseWriter, r *http.Request, requestID string) {
	var buf bytes.Buffer
	if err := dashboard.WriteHTML(&buf, h.gate.Snapshot(dashboard.RecentLimit)); err != nil {
		h.logger.Error("render dashboard failed", "request_id", requestID, "error", err)
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to render dashboard")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *handler) dashboardText(w http.ResponseWriter, r *http.Request, requestID string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dashboard.Text(h.gate.Snapshot(dashboard.RecentLimit))))
}

func (h *handler) runtimeMetrics(w http.ResponseWriter, r *http.Request, requestID string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":    h.metrics.Snapshot(),
		"request_id": requestID,
	})
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
