package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	coreerrors "treasury/core/errors"
	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/observability"
	"treasury/services/treasuryd/journal"
)

// Host is the slice of the runtime host the HTTP API drives.
type Host interface {
	Lookup(name string) (crypto.Address, runtime.Contract, bool)
	Invoke(ctx context.Context, inv types.Invocation) (*runtime.Receipt, error)
	ControllerStorage(name string) (any, error)
}

// Journal lists recorded receipts.
type Journal interface {
	Latest(ctx context.Context, controller string, limit int) ([]journal.Entry, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress  string
	OriginPatterns []string
}

// Server exposes controller invocation, state, journal and event stream
// endpoints.
type Server struct {
	cfg     Config
	host    Host
	journal Journal
	hub     *Hub
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

// New constructs a new HTTP server.
func New(cfg Config, host Host, j Journal, hub *Hub, auth *Authenticator, limiter *RateLimiter, logger *slog.Logger) (*Server, error) {
	if host == nil {
		return nil, fmt.Errorf("runtime host required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if hub == nil {
		hub = NewHub(0)
	}
	if limiter == nil {
		limiter = NewRateLimiter(RateLimit{PerSecond: 5, Burst: 10})
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.OriginPatterns) == 0 {
		cfg.OriginPatterns = []string{"*"}
	}
	return &Server{cfg: cfg, host: host, journal: j, hub: hub, auth: auth, limiter: limiter, logger: logger}, nil
}

// Handler builds the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/controllers/{name}", s.handleState)
		r.Get("/journal", s.handleJournal)
		r.Get("/events", s.handleEvents)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.limiter.Middleware("controllers"))
			r.Post("/controllers/{name}/{entrypoint}", s.handleInvoke)
		})
	})
	return otelhttp.NewHandler(r, "treasuryd")
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("treasuryd: http listening", slog.String("addr", s.cfg.ListenAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// InvokeRequest is the body of an invocation. Payload is the entrypoint
// argument in its JSON form.
type InvokeRequest struct {
	ID      string          `json:"id,omitempty"`
	Amount  *uint256.Int    `json:"amount,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")
	entrypoint := chi.URLParam(r, "entrypoint")
	status := http.StatusOK
	defer func() {
		observability.ModuleMetrics().Observe("controllers", entrypoint, status, time.Since(start))
	}()

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		status = http.StatusUnauthorized
		http.Error(w, "authentication required", status)
		return
	}
	addr, contract, ok := s.host.Lookup(name)
	if !ok {
		status = http.StatusNotFound
		http.Error(w, "unknown controller", status)
		return
	}
	if !contract.HasEntrypoint(entrypoint) {
		status = http.StatusNotFound
		http.Error(w, "unknown entrypoint", status)
		return
	}

	var req InvokeRequest
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		status = http.StatusBadRequest
		http.Error(w, "invalid payload", status)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, err := uuid.Parse(req.ID); err != nil {
		status = http.StatusBadRequest
		http.Error(w, "id must be a uuid", status)
		return
	}

	receipt, err := s.host.Invoke(r.Context(), types.Invocation{
		ID:         req.ID,
		Target:     addr,
		Entrypoint: entrypoint,
		Sender:     principal.Address,
		Amount:     req.Amount,
		Payload:    req.Payload,
	})
	if errors.Is(err, runtime.ErrDuplicateInvocation) {
		status = http.StatusConflict
		http.Error(w, "invocation id already used", status)
		return
	}
	if err != nil && receipt == nil {
		s.logger.Error("treasuryd: invoke failed", slog.String("controller", name), slog.String("entrypoint", entrypoint), slog.String("error", err.Error()))
		status = http.StatusInternalServerError
		http.Error(w, "invocation failed", status)
		return
	}
	if err != nil {
		status = invokeStatus(err)
	}
	writeJSON(w, status, receipt)
}

// invokeStatus maps a failed unit onto an HTTP status. Rejected inputs are the
// caller's fault, other coded failures are controller rejections.
func invokeStatus(err error) int {
	code, coded := coreerrors.CodeOf(err)
	switch {
	case !coded:
		return http.StatusInternalServerError
	case code == coreerrors.CodeInvalidParameter:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	addr, _, ok := s.host.Lookup(name)
	if !ok {
		http.Error(w, "unknown controller", http.StatusNotFound)
		return
	}
	record, err := s.host.ControllerStorage(name)
	if err != nil {
		s.logger.Error("treasuryd: read storage", slog.String("controller", name), slog.String("error", err.Error()))
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"address": addr.String(),
		"storage": record,
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	entries, err := s.journal.Latest(r.Context(), r.URL.Query().Get("controller"), limit)
	if err != nil {
		s.logger.Error("treasuryd: journal query", slog.String("error", err.Error()))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
