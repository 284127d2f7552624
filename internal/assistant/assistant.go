// Package assistant runs one grounded chat turn: retrieve, prompt, stream and
// persist.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efebarandurmaz/lexrag/internal/llm"
	"github.com/efebarandurmaz/lexrag/internal/observability"
	"github.com/efebarandurmaz/lexrag/internal/retrieval"
	"github.com/efebarandurmaz/lexrag/internal/session"
)

// SystemPrompt is the lawyer persona sent ahead of every conversation.
const SystemPrompt = "Ты высокоуважаемый юрист, который отвечает на вопросы, используя ТОЛЬКО предоставленный контекст " +
	"из документа и законы Республики Беларусь. Если в контексте нет информации, так и скажи, " +
	"но вначале всегда старайся найти ответ в предоставленном контексте. " +
	"На любой вопрос приводи обоснования и цитируй статьи. " +
	"Все математические выражения и формулы оформляй, заключая их в символы доллара ($) " +
	"для встроенного отображения и двойные символы доллара ($$) для блочного отображения."

// ContextSeparator joins retrieved fragments in the augmented question.
const ContextSeparator = "\n\n---\n\n"

var (
	// ErrEmptyQuestion is returned when the question has no content.
	ErrEmptyQuestion = errors.New("assistant: empty question")
	// ErrGenerate wraps chat model failures.
	ErrGenerate = errors.New("generate answer")
)

// Retriever produces context fragments for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK, radius int) ([]retrieval.Fragment, error)
}

// Options tunes the assistant. Zero values fall back to the defaults.
type Options struct {
	TopK         int
	Neighbors    int
	SystemPrompt string
	Request      *llm.RequestOptions
	Logger       *slog.Logger
	Metrics      *observability.RAGMetrics
}

// Assistant answers questions against the indexed document.
type Assistant struct {
	retriever Retriever
	provider  llm.Provider
	sessions  *session.Store
	opts      Options
	log       *slog.Logger
}

// Answer is the outcome of a completed turn.
type Answer struct {
	Session          string   `json:"session"`
	Answer           string   `json:"answer"`
	RetrievedContext []string `json:"retrieved_context"`
}

func New(retriever Retriever, provider llm.Provider, sessions *session.Store, opts Options) *Assistant {
	if opts.TopK < 1 {
		opts.TopK = 10
	}
	if opts.Neighbors < 0 {
		opts.Neighbors = 0
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = SystemPrompt
	}
	return &Assistant{
		retriever: retriever,
		provider:  provider,
		sessions:  sessions,
		opts:      opts,
		log:       observability.OrDefault(opts.Logger),
	}
}

// Augment builds the user message the model sees for question.
func Augment(fragments []string, question string) string {
	return "Context from document:\n" + strings.Join(fragments, ContextSeparator) + "\n\nQuestion: " + question
}

// Ask runs one turn in sessionName, naming a new session after the question
// when sessionName is empty. Deltas are passed to onDelta as they arrive.
//
// A retrieval failure saves nothing. A model failure still records the
// question and any partial answer, marked incomplete.
func (a *Assistant) Ask(ctx context.Context, sessionName, question string, onDelta func(string)) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if sessionName == "" {
		sessionName = session.Slug(question)
	}

	history, err := a.sessions.Load(sessionName)
	if err != nil {
		return nil, err
	}

	frags, err := a.retriever.Retrieve(ctx, question, a.opts.TopK, a.opts.Neighbors)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	retrieved := retrieval.Strings(frags)
	if len(retrieved) == 0 {
		a.log.Info("no context retrieved", "session", sessionName)
	}

	prompt := &llm.Prompt{SystemPrompt: a.opts.SystemPrompt}
	for _, t := range history {
		prompt.Add(llm.Role(t.Role), t.Content)
	}
	prompt.Add(llm.RoleUser, Augment(retrieved, question))

	text, streamErr := a.stream(ctx, prompt, onDelta)
	answer := llm.StripThinkingTags(text)

	turns := []session.Turn{{Role: session.RoleUser, Content: question}}
	if streamErr == nil || answer != "" {
		turns = append(turns, session.Turn{
			Role:             session.RoleAssistant,
			Content:          answer,
			RetrievedContext: retrieved,
			Incomplete:       streamErr != nil,
		})
	}
	if err := a.sessions.Append(sessionName, turns...); err != nil {
		if streamErr != nil {
			return nil, errors.Join(fmt.Errorf("%w: %w", ErrGenerate, streamErr), err)
		}
		return nil, err
	}
	if streamErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, streamErr)
	}

	return &Answer{Session: sessionName, Answer: answer, RetrievedContext: retrieved}, nil
}

func (a *Assistant) stream(ctx context.Context, prompt *llm.Prompt, onDelta func(string)) (text string, err error) {
	start := time.Now()
	ctx, span := observability.StartLLMSpan(ctx, a.provider.Name(), "stream")
	defer func() {
		observability.RecordLLMOutput(span, len([]rune(text)), err == nil)
		observability.RecordError(span, err)
		span.End()
		a.opts.Metrics.RecordLLM(time.Since(start), err)
	}()

	deltas, err := a.provider.Stream(ctx, prompt, a.opts.Request)
	if err != nil {
		return "", err
	}
	filter := llm.NewThinkFilter(onDelta)
	text, err = llm.Collect(deltas, filter.Write)
	filter.Flush()
	return text, err
}
