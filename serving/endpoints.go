package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Endpoint 是 workspace 中一个 serving endpoint 的概要信息。
type Endpoint struct {
	Name              string        `json:"name"`
	Creator           string        `json:"creator,omitempty"`
	CreationTimestamp int64         `json:"creation_timestamp,omitempty"`
	Task              string        `json:"task,omitempty"`
	State             EndpointState `json:"state"`
}

type EndpointState struct {
	Ready        string `json:"ready,omitempty"`
	ConfigUpdate string `json:"config_update,omitempty"`
}

// IsChatEndpoint 判断 endpoint 是否承载 chat 任务。
func (e Endpoint) IsChatEndpoint() bool {
	return strings.HasPrefix(e.Task, "llm/v1/chat") || strings.HasPrefix(e.Task, "agent/")
}

// ListEndpoints 调用 workspace 的 serving endpoints 管理接口。
// client 应当是带认证 transport 的 client；host 是 workspace 地址。
func ListEndpoints(ctx context.Context, client *http.Client, host string) ([]Endpoint, error) {
	base := strings.TrimRight(strings.TrimSpace(host), "/")
	if base == "" {
		return nil, fmt.Errorf("workspace host is required")
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if client == nil {
		client = &http.Client{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/2.0/serving-endpoints", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list endpoints request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list endpoints failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("list endpoints failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Endpoints []Endpoint `json:"endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode endpoints list: %w", err)
	}
	return out.Endpoints, nil
}
