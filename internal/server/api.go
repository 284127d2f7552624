package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/efebarandurmaz/lexrag/internal/assistant"
	"github.com/efebarandurmaz/lexrag/internal/observability"
	"github.com/efebarandurmaz/lexrag/internal/retrieval"
	"github.com/efebarandurmaz/lexrag/internal/session"
)

const maxBodyBytes = 1 << 20

// Retriever runs the query pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK, radius int) ([]retrieval.Fragment, error)
}

// Asker runs one assistant turn.
type Asker interface {
	Ask(ctx context.Context, sessionName, question string, onDelta func(string)) (*assistant.Answer, error)
}

// Sessions lists and reads transcripts.
type Sessions interface {
	List() ([]string, error)
	Load(name string) ([]session.Turn, error)
}

// APIConfig wires the API. Assistant and Sessions may be nil, in which case
// their routes answer 501.
type APIConfig struct {
	Retriever Retriever
	Assistant Asker
	Sessions  Sessions
	Health    *HealthServer
	Metrics   *observability.RAGMetrics
	Logger    *slog.Logger

	TopK           int
	Neighbors      int
	RequestTimeout time.Duration
}

// API serves the JSON endpoints.
type API struct {
	cfg APIConfig
	log *slog.Logger
}

func NewAPI(cfg APIConfig) *API {
	if cfg.TopK < 1 {
		cfg.TopK = 10
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthServer("")
	}
	return &API{cfg: cfg, log: observability.OrDefault(cfg.Logger)}
}

// Handler returns the routed handler with logging and request timeouts.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/retrieve", a.handleRetrieve)
	mux.HandleFunc("POST /v1/ask", a.handleAsk)
	mux.HandleFunc("GET /v1/sessions", a.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{name}", a.handleGetSession)
	if a.cfg.Metrics != nil {
		mux.Handle("GET /metrics", a.cfg.Metrics.Handler())
	}
	a.cfg.Health.Register(mux)
	return a.logRequests(a.withTimeout(mux))
}

type retrieveRequest struct {
	Query     string `json:"query"`
	TopK      *int   `json:"top_k,omitempty"`
	Neighbors *int   `json:"neighbors,omitempty"`
}

type retrieveResponse struct {
	Fragments []string `json:"fragments"`
	Grounded  bool     `json:"grounded"`
}

func (a *API) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !a.decode(w, r, &req) {
		return
	}
	topK, radius := a.cfg.TopK, a.cfg.Neighbors
	if req.TopK != nil {
		topK = *req.TopK
	}
	if req.Neighbors != nil {
		radius = *req.Neighbors
	}

	frags, err := a.cfg.Retriever.Retrieve(r.Context(), req.Query, topK, radius)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Fragments: retrieval.Strings(frags), Grounded: len(frags) > 0})
}

type askRequest struct {
	Question string `json:"question"`
	Session  string `json:"session,omitempty"`
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Assistant == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("assistant not configured"))
		return
	}
	var req askRequest
	if !a.decode(w, r, &req) {
		return
	}
	ans, err := a.cfg.Assistant.Ask(r.Context(), req.Session, req.Question, nil)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Sessions == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("sessions not configured"))
		return
	}
	names, err := a.cfg.Sessions.List()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": names})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Sessions == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("sessions not configured"))
		return
	}
	name := r.PathValue("name")
	turns, err := a.cfg.Sessions.Load(name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "turns": turns})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid request body: %v", err)))
		return false
	}
	return true
}

// StatusFor maps pipeline errors to HTTP status codes.
func StatusFor(err error) int {
	var ce *retrieval.CollaboratorError
	switch {
	case errors.Is(err, retrieval.ErrInvalidArgument),
		errors.Is(err, assistant.ErrEmptyQuestion),
		errors.Is(err, session.ErrInvalidSessionName):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, retrieval.ErrDimensionMismatch):
		return http.StatusInternalServerError
	case errors.As(err, &ce), errors.Is(err, assistant.ErrGenerate):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func (a *API) withTimeout(next http.Handler) http.Handler {
	if a.cfg.RequestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		done := a.cfg.Metrics.TrackRequest()
		defer done()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// Serve runs the API on addr until ctx is cancelled, then drains in-flight
// requests through the shutdown handler.
func Serve(ctx context.Context, addr string, handler http.Handler, health *HealthServer, shutdown *ShutdownHandler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdown.RegisterHook("http", PriorityHTTP, func(ctx context.Context) error {
		if health != nil {
			health.SetReady(false)
		}
		return srv.Shutdown(ctx)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	if health != nil {
		health.SetReady(true)
	}

	select {
	case err := <-errCh:
		shutdown.Shutdown()
		return err
	case <-ctx.Done():
		shutdown.Shutdown()
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
