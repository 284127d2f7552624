package llm

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds calls to one provider. Zero fields are unlimited.
type RateLimitConfig struct {
	RequestsPerMinute int
	// TokensPerMinute caps usage reported by completions within a one-minute
	// window. Streams are charged by delivered runes.
	TokensPerMinute int
	// BurstSize defaults to a tenth of a minute's requests.
	BurstSize int
}

// RateLimitProvider throttles a provider with a request token bucket and a
// per-minute usage budget.
type RateLimitProvider struct {
	inner    Provider
	requests *rate.Limiter
	budget   int

	mu          sync.Mutex
	spent       int
	calls       int
	windowStart time.Time
}

func NewRateLimitProvider(inner Provider, cfg *RateLimitConfig) *RateLimitProvider {
	if cfg == nil {
		cfg = &RateLimitConfig{}
	}
	r := &RateLimitProvider{
		inner:       inner,
		budget:      cfg.TokensPerMinute,
		windowStart: time.Now(),
	}
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = max(1, cfg.RequestsPerMinute/6)
		}
		r.requests = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), burst)
	}
	return r
}

// WithRateLimit wraps p, passing nil through.
func WithRateLimit(p Provider, cfg *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, cfg)
}

func (r *RateLimitProvider) Name() string { return r.inner.Name() }

func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.charge(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Stream waits for capacity before opening the stream. Streamed completions
// carry no usage, so the delivered text in runes is charged instead.
func (r *RateLimitProvider) Stream(ctx context.Context, prompt *Prompt, opts *RequestOptions) (Deltas, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	deltas, err := r.inner.Stream(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return func(yield func(string, error) bool) {
		delivered := 0
		defer func() { r.charge(delivered) }()
		for delta, err := range deltas {
			delivered += utf8.RuneCountInString(delta)
			if !yield(delta, err) {
				return
			}
		}
	}, nil
}

func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	if r.requests != nil {
		res := r.requests.Reserve()
		if d := res.Delay(); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				res.Cancel()
				return ctx.Err()
			case <-t.C:
			}
		}
	}

	for {
		r.mu.Lock()
		r.rollWindow()
		if r.budget == 0 || r.spent < r.budget {
			r.calls++
			r.mu.Unlock()
			return nil
		}
		d := time.Minute - time.Since(r.windowStart)
		r.mu.Unlock()

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// rollWindow must be called with mu held.
func (r *RateLimitProvider) rollWindow() {
	if time.Since(r.windowStart) >= time.Minute {
		r.windowStart = time.Now()
		r.spent = 0
		r.calls = 0
	}
}

func (r *RateLimitProvider) charge(tokens int) {
	r.mu.Lock()
	r.rollWindow()
	r.spent += tokens
	r.mu.Unlock()
}

// RateLimitStats describes the current one-minute window.
type RateLimitStats struct {
	RequestsInWindow int
	TokensInWindow   int
	RemainingTokens  int
	WindowStart      time.Time
}

func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollWindow()
	return RateLimitStats{
		RequestsInWindow: r.calls,
		TokensInWindow:   r.spent,
		RemainingTokens:  max(0, r.budget-r.spent),
		WindowStart:      r.windowStart,
	}
}
