package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solatis/policykit/internal/core/api"
	"github.com/solatis/policykit/internal/core/auth"
	"github.com/solatis/policykit/internal/core/config"
	"github.com/solatis/policykit/internal/core/metrics"
	"github.com/solatis/policykit/internal/predicate"
)

// HTTP paths outside the authenticated API.
const (
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// HTTPServer serves the JSON API, health probe and metrics.
type HTTPServer struct {
	server *http.Server
	config *config.ServerConfig
}

// NewHTTPServer creates the HTTP server. Routes under /api/v1 require an API key.
func NewHTTPServer(cfg *config.ServerConfig, svc *api.PolicyService, authenticator *auth.Authenticator, logger *slog.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}

	return &HTTPServer{
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.HTTPPort)),
			Handler:           NewRouter(svc, authenticator, cfg.RequestTimeout, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		config: cfg,
	}, nil
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start(ctx context.Context) error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// NewRouter builds the HTTP routes.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/session
//	POST /api/v1/predicates/build
//	POST /api/v1/predicates/parse
//	GET  /api/v1/policies
//	POST /api/v1/policies
//	GET  /api/v1/policies/{id}
//	PUT  /api/v1/policies/{id}
func NewRouter(svc *api.PolicyService, authenticator *auth.Authenticator, timeout time.Duration, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get(PathHealth, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle(PathMetrics, metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticator.Middleware)
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		r.Get("/session", h.openSession)
		r.Post("/predicates/build", h.buildPredicate)
		r.Post("/predicates/parse", h.parsePredicate)
		r.Get("/policies", h.listPolicies)
		r.Post("/policies", h.submitPolicy)
		r.Get("/policies/{id}", h.getPolicy)
		r.Put("/policies/{id}", h.submitPolicy)
	})
	return r
}

type handlers struct {
	svc    *api.PolicyService
	logger *slog.Logger
}

func (h *handlers) openSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.OpenSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handlers) buildPredicate(w http.ResponseWriter, r *http.Request) {
	req := api.BuildRequest{Form: predicate.NewFormState()}
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pred, err := h.svc.BuildPredicate(r.Context(), req.Form)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.BuildResponse{Predicate: pred})
}

func (h *handlers) parsePredicate(w http.ResponseWriter, r *http.Request) {
	var req api.ParseRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	form, err := h.svc.ParsePredicate(r.Context(), req.Predicate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ParseResponse{Form: form})
}

func (h *handlers) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.svc.ListPolicies(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ListResponse{Policies: policies})
}

// submitPolicy serves both create (POST) and update (PUT). The ID comes from
// the URL only, so POST always creates.
func (h *handlers) submitPolicy(w http.ResponseWriter, r *http.Request) {
	draft := api.PolicyDraft{Form: predicate.NewFormState()}
	if err := decodeBody(w, r, &draft); err != nil {
		h.writeError(w, r, err)
		return
	}
	draft.ID = chi.URLParam(r, "id")

	p, err := h.svc.SubmitPolicy(r.Context(), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if r.Method == http.MethodPost {
		code = http.StatusCreated
	}
	writeJSON(w, code, api.SubmitResponse{Policy: p})
}

func (h *handlers) getPolicy(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// errorBody is the JSON error envelope. Fields is set for validation errors.
type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := api.HTTPStatus(err)
	body := errorBody{Error: err.Error()}

	var verr *predicate.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", code,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	writeJSON(w, code, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", api.ErrMalformedRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
