package serving

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/2.0/serving-endpoints", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
  "endpoints": [
    {"name": "databricks-meta-llama-3-3-70b-instruct", "task": "llm/v1/chat", "state": {"ready": "READY"}},
    {"name": "my-embedding", "task": "llm/v1/embeddings", "state": {"ready": "READY"}},
    {"name": "my-agent", "task": "agent/v2/chat", "state": {"ready": "NOT_READY"}}
  ]
}`)
	}))
	defer server.Close()

	endpoints, err := ListEndpoints(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	require.Len(t, endpoints, 3)
	require.Equal(t, "databricks-meta-llama-3-3-70b-instruct", endpoints[0].Name)
	require.True(t, endpoints[0].IsChatEndpoint())
	require.False(t, endpoints[1].IsChatEndpoint())
	require.True(t, endpoints[2].IsChatEndpoint())
	require.Equal(t, "READY", endpoints[0].State.Ready)
}

func TestListEndpoints_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = fmt.Fprint(w, `{"error_code":"PERMISSION_DENIED","message":"no access"}`)
	}))
	defer server.Close()

	_, err := ListEndpoints(context.Background(), server.Client(), server.URL)
	require.ErrorContains(t, err, "status 403")
}

func TestListEndpoints_HostRequired(t *testing.T) {
	_, err := ListEndpoints(context.Background(), nil, "  ")
	require.ErrorContains(t, err, "host is required")
}
