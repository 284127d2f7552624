package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/lexrag/internal/llm"
)

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		fmt.Fprint(w, `{"model":"mistral-small-latest","choices":[{"message":{"content":"Статья 5"},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`)
	}))
	defer srv.Close()

	c := New("key", "mistral-small-latest", srv.URL, "")
	p := (&llm.Prompt{SystemPrompt: "sys"}).Add(llm.RoleUser, "q")
	resp, err := c.Complete(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, "Статья 5", resp.Content)
	assert.Equal(t, 7, resp.InputTokens)
	assert.Equal(t, "stop", resp.StopReason)
}

func TestClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New("", "m", srv.URL, "").WithName("mistral")
	deltas, err := c.Stream(context.Background(), (&llm.Prompt{}).Add(llm.RoleUser, "hi"), nil)
	require.NoError(t, err)

	var got []string
	text, err := llm.Collect(deltas, func(d string) { got = append(got, d) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, got)

	// A second pass must not replay the stream.
	_, err = llm.Collect(deltas, nil)
	assert.ErrorIs(t, err, llm.ErrStreamConsumed)
}

func TestClient_StreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"message":"rate limited"}`)
	}))
	defer srv.Close()

	c := New("", "m", srv.URL, "").WithName("mistral")
	_, err := c.Stream(context.Background(), &llm.Prompt{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "mistral")
}

func TestClient_StreamMalformedChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
	}))
	defer srv.Close()

	deltas, err := New("", "m", srv.URL, "").Stream(context.Background(), &llm.Prompt{}, nil)
	require.NoError(t, err)
	text, err := llm.Collect(deltas, nil)
	require.Error(t, err)
	assert.Equal(t, "ok", text)
}

func TestClient_StreamReleasedOnCancel(t *testing.T) {
	disconnected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(disconnected)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	deltas, err := New("", "m", srv.URL, "").Stream(ctx, &llm.Prompt{}, nil)
	require.NoError(t, err)

	cancel()
	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not released after cancel")
	}

	_, err = llm.Collect(deltas, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bge-m3", body.Model)
		assert.Len(t, body.Input, 2)
		// Out-of-order indices must be placed by index.
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	c := New("", "", srv.URL, "bge-m3")
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestNew_Defaults(t *testing.T) {
	c := New("", "m", "", "")
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, "text-embedding-3-small", c.EmbedModel())
	assert.Equal(t, "openai", c.Name())
}
