package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/lexrag/internal/assistant"
	"github.com/efebarandurmaz/lexrag/internal/llm"
	"github.com/efebarandurmaz/lexrag/internal/retrieval"
	"github.com/efebarandurmaz/lexrag/internal/session"
)

type staticRetriever []retrieval.Fragment

func (s staticRetriever) Retrieve(context.Context, string, int, int) ([]retrieval.Fragment, error) {
	return s, nil
}

type echoProvider struct{ fail bool }

func (echoProvider) Name() string { return "echo" }

func (echoProvider) Complete(context.Context, *llm.Prompt, *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("unused")
}

func (echoProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("unused")
}

func (p echoProvider) Stream(context.Context, *llm.Prompt, *llm.RequestOptions) (llm.Deltas, error) {
	if p.fail {
		return nil, errors.New("503 Service Unavailable")
	}
	return llm.SliceDeltas("да"), nil
}

func TestPrintFragments(t *testing.T) {
	frags := []retrieval.Fragment{
		{ID: "art_1", Source: "Документ", Text: "a"},
		{ID: "art_2", Source: "Документ", Text: "b"},
	}
	var buf bytes.Buffer
	require.NoError(t, printFragments(&buf, frags, false))
	assert.Equal(t, "[Документ, ID: art_1] a\n\n---\n[Документ, ID: art_2] b\n", buf.String())

	buf.Reset()
	require.NoError(t, printFragments(&buf, nil, true))
	assert.JSONEq(t, `{"fragments":[],"grounded":false}`, buf.String())

	buf.Reset()
	require.NoError(t, printFragments(&buf, nil, false))
	assert.Contains(t, buf.String(), "No relevant articles")
}

func TestChatLoop_KeepsOneSession(t *testing.T) {
	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)
	a := assistant.New(staticRetriever{}, echoProvider{}, store, assistant.Options{})

	in := strings.NewReader("первый вопрос тут\nвторой\n\n")
	var out, errOut bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), in, &out, &errOut, a, ""))

	assert.Contains(t, errOut.String(), "session: первый-вопрос-тут")
	turns, err := store.Load("первый-вопрос-тут")
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}

func TestChatLoop_ReportsErrorsAndContinues(t *testing.T) {
	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)
	a := assistant.New(staticRetriever{}, echoProvider{fail: true}, store, assistant.Options{})

	var out, errOut bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), strings.NewReader("q1\nq2\n"), &out, &errOut, a, "s"))
	assert.Equal(t, 2, strings.Count(errOut.String(), "Error:"))
}

func TestPrintTranscript(t *testing.T) {
	var buf bytes.Buffer
	printTranscript(&buf, []session.Turn{
		{Role: session.RoleUser, Content: "q"},
		{Role: session.RoleAssistant, Content: "част", RetrievedContext: []string{"ctx"}, Incomplete: true},
	}, true)
	out := buf.String()
	assert.Contains(t, out, "[user]\nq\n")
	assert.Contains(t, out, "[assistant] (incomplete)\nчаст\n")
	assert.Contains(t, out, "chunk 1: ctx")
}

func TestProvidersCmd(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"providers"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "mistral")
	assert.Contains(t, buf.String(), "LEXRAG_LLM_API_KEY")
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"retrieve", "ask", "chat", "sessions", "ingest", "cleanup", "serve", "providers"} {
		assert.Contains(t, names, want)
	}
}
