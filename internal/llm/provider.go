// Package llm defines the chat and embedding backends used by the assistant
// and the retrieval pipeline.
package llm

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// Provider is the interface all LLM backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Stream sends a prompt and returns the completion as text deltas. The
	// request is issued before Stream returns, so transport and status errors
	// surface here; read errors are yielded by the sequence. Callers must
	// either range the sequence or cancel ctx to release the connection.
	Stream(ctx context.Context, prompt *Prompt, opts *RequestOptions) (Deltas, error)
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "mistral", "openai").
	Name() string
}

// Deltas is a lazy, finite sequence of completion fragments. It must be
// ranged exactly once; ranging it again yields ErrStreamConsumed.
type Deltas = iter.Seq2[string, error]

// ErrStreamConsumed is yielded when a Deltas sequence is ranged twice.
var ErrStreamConsumed = errors.New("llm: stream already consumed")

// RequestOptions tunes a single completion call. Nil fields keep the
// provider default.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}

// Response wraps an LLM completion result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// Collect drains deltas, calling onDelta for each non-empty fragment, and
// returns the accumulated text. On error the partial text is returned along
// with it.
func Collect(deltas Deltas, onDelta func(string)) (string, error) {
	var sb strings.Builder
	for delta, err := range deltas {
		if err != nil {
			return sb.String(), err
		}
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return sb.String(), nil
}

// SliceDeltas returns a Deltas sequence over fixed fragments. Useful for
// providers that cannot stream and for tests.
func SliceDeltas(parts ...string) Deltas {
	used := false
	return func(yield func(string, error) bool) {
		if used {
			yield("", ErrStreamConsumed)
			return
		}
		used = true
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}
