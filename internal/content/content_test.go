package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	logx "fitbuddy/pkg/logx"

	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, key string, h http.HandlerFunc, timeout time.Duration) (*Generator, *atomic.Int32) {
	t.Helper()
	calls := new(atomic.Int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(ClientConfig{APIKey: key, BaseURL: srv.URL, Timeout: timeout})
	return NewGenerator(c, DefaultPools(), logx.Nop()), calls
}

func inPool(c Category, s string) bool {
	return slices.Contains(DefaultPools()[c], s)
}

func TestGenerateSuccess(t *testing.T) {
	g, calls := newTestGenerator(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, DefaultModel, req.Model)
		require.Equal(t, DefaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)
		require.Equal(t, "cheer me up", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  You got this!\n"}}]}`))
	}, time.Second)

	got := g.Generate(context.Background(), "cheer me up", Motivation)
	require.Equal(t, "You got this!", got)
	require.Equal(t, int32(1), calls.Load())
}

func TestGenerateFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		handler   http.HandlerFunc
		wantCalls int32
	}{
		{
			name:      "no credential",
			key:       "",
			handler:   func(w http.ResponseWriter, r *http.Request) {},
			wantCalls: 0,
		},
		{
			name: "server error",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantCalls: 1,
		},
		{
			name: "missing text field",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant"}}]}`))
			},
			wantCalls: 1,
		},
		{
			name: "no choices",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			wantCalls: 1,
		},
		{
			name: "malformed body",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantCalls: 1,
		},
		{
			name: "timeout",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, calls := newTestGenerator(t, tt.key, tt.handler, 100*time.Millisecond)
			got := g.Generate(context.Background(), "prompt", WeeklyAdvice)
			require.NotEmpty(t, got)
			require.True(t, inPool(WeeklyAdvice, got), "got %q", got)
			require.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestGenerateWithoutRemote(t *testing.T) {
	g := NewGenerator(nil, nil, logx.Nop())
	require.True(t, inPool(QuestionOfDay, g.Generate(context.Background(), "q", QuestionOfDay)))
}

func TestPoolsMergeAndPick(t *testing.T) {
	p := DefaultPools().Merge(map[string][]string{
		string(Motivation):   {"  only one  ", ""},
		"custom":             {"x"},
		string(WeeklyAdvice): {" "},
	})
	require.Equal(t, "only one", p.Pick(Motivation))
	require.Equal(t, "x", p.Pick("custom"))
	require.Equal(t, DefaultPools()[WeeklyAdvice], p[WeeklyAdvice])
	require.Equal(t, lastResort, p.Pick("unknown"))
}
