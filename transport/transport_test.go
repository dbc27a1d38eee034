package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LubyRuffy/dbx2o/auth"
)

// sequenceProvider 每次 Auth 按序吐出一个 token，耗尽后复用最后一个。
type sequenceProvider struct {
	mu     sync.Mutex
	tokens []string
	calls  int
	extra  http.Header
	err    error
}

func (p *sequenceProvider) Auth(ctx context.Context) (http.Header, error) {
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
	headers := auth.BearerHeader(p.tokens[idx])
	for key, values := range p.extra {
		for _, value := range values {
			headers.Add(key, value)
		}
	}
	return headers, nil
}

func (p *sequenceProvider) authCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestClientPair_SameAuthorizationOnBothPaths(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := &sequenceProvider{tokens: []string{"tok_same"}}
	pair := NewClientPair(provider)

	resp, err := pair.Invoke.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = pair.Stream.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, seen, 2)
	require.Equal(t, "Bearer tok_same", seen[0])
	require.Equal(t, seen[0], seen[1])
}

func TestAuthenticator_ResignsEveryRequest(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := &sequenceProvider{tokens: []string{"tok_1", "tok_2"}}
	pair := NewClientPair(provider)

	for range 2 {
		resp, err := pair.Invoke.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Equal(t, []string{"Bearer tok_1", "Bearer tok_2"}, seen)
	require.Equal(t, 2, provider.authCalls())
}

func TestAuthenticator_ProviderErrorShortCircuits(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	errBoom := errors.New("credential store unavailable")
	provider := &sequenceProvider{err: errBoom}
	pair := NewClientPair(provider)

	// 两条路径都必须返回同一个底层错误，且请求不落到网络上。
	_, err := pair.Invoke.Get(server.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, errBoom)

	_, err = pair.Stream.Get(server.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, errBoom)

	require.Equal(t, int64(0), hits.Load())
}

func TestAuthenticator_DoesNotMutateCallerRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := &sequenceProvider{tokens: []string{"tok_x"}}
	pair := NewClientPair(provider)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := pair.Invoke.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, req.Header.Get("Authorization"))
}

func TestAuthenticator_CarriesExtraHeaders(t *testing.T) {
	var gotAuth, gotExtra string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotExtra = r.Header.Get("X-Databricks-Org-Id")
	}))
	defer server.Close()

	extra := http.Header{}
	extra.Set("X-Databricks-Org-Id", "12345")
	provider := &sequenceProvider{tokens: []string{"tok_x"}, extra: extra}
	pair := NewClientPair(provider)

	resp, err := pair.Stream.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer tok_x", gotAuth)
	require.Equal(t, "12345", gotExtra)
}
