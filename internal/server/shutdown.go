package server

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/efebarandurmaz/lexrag/internal/observability"
)

// Hook priorities. Lower runs first.
const (
	PriorityHTTP     = 10
	PriorityWorker   = 20
	PriorityTracing  = 80
	PriorityStorage  = 90
	DefaultGraceTime = 15 * time.Second
)

// ShutdownHook is a function called during shutdown.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownHandler runs registered hooks in priority order once, within a
// shared deadline. Hook errors are logged and do not stop later hooks.
type ShutdownHandler struct {
	mu      sync.Mutex
	hooks   []ShutdownHook
	timeout time.Duration
	log     *slog.Logger
	once    sync.Once
}

func NewShutdownHandler(timeout time.Duration, logger *slog.Logger) *ShutdownHandler {
	if timeout <= 0 {
		timeout = DefaultGraceTime
	}
	return &ShutdownHandler{timeout: timeout, log: observability.OrDefault(logger)}
}

// RegisterHook adds a shutdown hook.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, ShutdownHook{Name: name, Priority: priority, Fn: fn})
	slices.SortStableFunc(s.hooks, func(a, b ShutdownHook) int { return a.Priority - b.Priority })
}

// Close registers a hook that calls closeFn, for resources without a context.
func (s *ShutdownHandler) Close(name string, priority int, closeFn func() error) {
	s.RegisterHook(name, priority, func(context.Context) error { return closeFn() })
}

// Shutdown runs the hooks. Calls after the first are no-ops.
func (s *ShutdownHandler) Shutdown() {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		s.mu.Lock()
		hooks := slices.Clone(s.hooks)
		s.mu.Unlock()

		for _, h := range hooks {
			if err := h.Fn(ctx); err != nil {
				s.log.Error("shutdown hook failed", "hook", h.Name, "error", err)
				continue
			}
			s.log.Debug("shutdown hook done", "hook", h.Name)
		}
	})
}

// Wait blocks until ctx is done, then shuts down.
func (s *ShutdownHandler) Wait(ctx context.Context) {
	<-ctx.Done()
	s.log.Info("shutting down")
	s.Shutdown()
}
