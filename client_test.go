package dbx2o

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/LubyRuffy/dbx2o/auth"
)

// countingProvider 记录 Auth 调用次数，按序吐出 token。
type countingProvider struct {
	mu     sync.Mutex
	tokens []string
	calls  int
	err    error
	host   string
}

func (p *countingProvider) Auth(ctx context.Context) (http.Header, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls
	if idx >= len(p.tokens) {
		idx = len(p.tokens) - 1
	}
	p.calls++
	return auth.BearerHeader(p.tokens[idx]), nil
}

func (p *countingProvider) ResolveHost() (string, error) {
	if p.host == "" {
		return "", fmt.Errorf("no host")
	}
	return p.host, nil
}

func (p *countingProvider) authCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// newEchoServer 返回一个最小的 chat completions 假端点：
// 阻塞请求回显 JSON，流式请求回显 SSE，同时记录收到的认证头。
func newEchoServer(t *testing.T, seen *[]string, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/serving-endpoints/chat/completions", r.URL.Path)

		mu.Lock()
		*seen = append(*seen, r.Header.Get("Authorization"))
		mu.Unlock()

		var payload struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.NotEmpty(t, payload.Messages)
		echo := payload.Messages[len(payload.Messages)-1].Content

		if payload.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", echo)
			_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"id":"chatcmpl-echo","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, echo)
	}))
}

func TestNewChatModel_EndpointRequired(t *testing.T) {
	provider := &countingProvider{tokens: []string{"tok"}, host: "https://dbc-x.cloud.databricks.com"}

	_, err := NewChatModel(ChatConfig{Provider: provider})
	require.ErrorContains(t, err, "endpoint is required")
	// 校验必须在碰任何凭据之前完成。
	require.Equal(t, 0, provider.authCalls())
}

func TestNewChatModel_HostRequired(t *testing.T) {
	t.Setenv(auth.EnvHost, "")
	provider := &countingProvider{tokens: []string{"tok"}}

	_, err := NewChatModel(ChatConfig{Endpoint: "e", Provider: provider})
	require.ErrorContains(t, err, "workspace host is required")
}

func TestNewChatModel_HostFromEnv(t *testing.T) {
	t.Setenv(auth.EnvHost, "dbc-env.cloud.databricks.com")
	provider := &countingProvider{tokens: []string{"tok"}}

	m, err := NewChatModel(ChatConfig{Endpoint: "e", Provider: provider})
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestNewChatModel_EchoBothPaths(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := newEchoServer(t, &seen, &mu)
	defer server.Close()

	provider := &countingProvider{tokens: []string{"tok_live"}}
	m, err := NewChatModel(ChatConfig{
		Endpoint: "databricks/databricks-meta-llama-3-3-70b-instruct",
		Host:     server.URL,
		Provider: provider,
	})
	require.NoError(t, err)

	out, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("marco")})
	require.NoError(t, err)
	require.Equal(t, "marco", out.Content)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("polo")})
	require.NoError(t, err)
	var builder strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		builder.WriteString(msg.Content)
	}
	require.Equal(t, "polo", builder.String())

	// 两条路径拿到的 Authorization 必须一字不差。
	require.Len(t, seen, 2)
	require.Equal(t, "Bearer tok_live", seen[0])
	require.Equal(t, seen[0], seen[1])
}

func TestNewChatModel_ResignsPerRequest(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := newEchoServer(t, &seen, &mu)
	defer server.Close()

	provider := &countingProvider{tokens: []string{"tok_1", "tok_2"}}
	m, err := NewChatModel(ChatConfig{Endpoint: "e", Host: server.URL, Provider: provider})
	require.NoError(t, err)

	for range 2 {
		_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
		require.NoError(t, err)
	}

	require.Equal(t, []string{"Bearer tok_1", "Bearer tok_2"}, seen)
	require.Equal(t, 2, provider.authCalls())
}

func TestNewChatModel_ProviderFailureBothPaths(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	errCreds := errors.New("keyring locked")
	provider := &countingProvider{err: errCreds}
	m, err := NewChatModel(ChatConfig{Endpoint: "e", Host: server.URL, Provider: provider})
	require.NoError(t, err)

	input := []*schema.Message{schema.UserMessage("hi")}

	_, genErr := m.Generate(context.Background(), input)
	require.ErrorIs(t, genErr, errCreds)

	_, streamErr := m.Stream(context.Background(), input)
	require.ErrorIs(t, streamErr, errCreds)

	// 凭据失败必须在发出请求之前发生。
	require.Equal(t, int64(0), hits.Load())
}

func TestNewChatModel_HostFromProvider(t *testing.T) {
	t.Setenv(auth.EnvHost, "")
	provider := &countingProvider{tokens: []string{"tok"}, host: "dbc-prov.cloud.databricks.com"}

	m, err := NewChatModel(ChatConfig{Endpoint: "databricks-claude-sonnet-4", Provider: provider})
	require.NoError(t, err)
	require.NotNil(t, m)
}
