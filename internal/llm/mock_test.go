package llm

import (
	"context"
	"sync"
)

// scriptedProvider returns errs[i] on the i-th call to any method, then
// succeeds.
type scriptedProvider struct {
	name   string
	errs   []error
	tokens int

	mu    sync.Mutex
	calls int
}

func (s *scriptedProvider) next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) {
		return s.errs[i]
	}
	return nil
}

func (s *scriptedProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) Complete(ctx context.Context, _ *Prompt, _ *RequestOptions) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.next(); err != nil {
		return nil, err
	}
	return &Response{Content: "ok", InputTokens: s.tokens / 2, OutputTokens: s.tokens / 2}, nil
}

func (s *scriptedProvider) Stream(ctx context.Context, _ *Prompt, _ *RequestOptions) (Deltas, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return SliceDeltas("o", "k"), nil
}

func (s *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}
