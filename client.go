package dbx2o

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/LubyRuffy/dbx2o/auth"
	"github.com/LubyRuffy/dbx2o/serving"
	"github.com/LubyRuffy/dbx2o/transport"
)

// ChatConfig 是 NewChatModel 的全部配置。
type ChatConfig struct {
	// Endpoint 是 serving endpoint 名称（即 OpenAI 协议的 model 字段），必填。
	// 支持带 databricks/ 命名空间的写法。
	Endpoint string
	// Host 是 workspace 地址；为空时依次尝试 Provider 与 DATABRICKS_HOST。
	Host string
	// Provider 为空时使用 auth.SourceAuto。
	Provider auth.Provider

	// InvokeTimeout 只作用于阻塞调用；流式调用的生命周期由 ctx 控制。
	InvokeTimeout time.Duration
	UserAgent     string

	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
	// ExtraParams 会原样合并进请求体。
	ExtraParams map[string]any
}

// NewChatModel 一次性装配认证 transport 与 serving.ChatModel：
// 阻塞与流式两个 HTTP client 共享同一个 transport.Authenticator，
// 每个出站请求都会经由 Provider 重新签名；ChatModel 自身的凭据位
// 填充占位 token，线路上的凭据永远来自 transport。
func NewChatModel(cfg ChatConfig) (*serving.ChatModel, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	provider := cfg.Provider
	if provider == nil {
		p, err := auth.NewProvider(string(auth.SourceAuto))
		if err != nil {
			return nil, err
		}
		provider = p
	}

	host, err := ResolveWorkspaceHost(cfg.Host, provider)
	if err != nil {
		return nil, err
	}

	var pairOpts []transport.PairOption
	if cfg.InvokeTimeout > 0 {
		pairOpts = append(pairOpts, transport.WithInvokeTimeout(cfg.InvokeTimeout))
	}
	pair := transport.NewClientPair(provider, pairOpts...)

	return serving.NewChatModel(serving.ChatModelConfig{
		Endpoint:         NormalizeEndpointID(cfg.Endpoint),
		BaseURL:          EndpointBaseURL(host),
		Token:            serving.PlaceholderToken,
		HTTPClient:       pair.Invoke,
		StreamHTTPClient: pair.Stream,
		UserAgent:        cfg.UserAgent,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		MaxTokens:        cfg.MaxTokens,
		Stop:             cfg.Stop,
		ExtraParams:      cfg.ExtraParams,
	})
}

// ResolveWorkspaceHost 依次尝试显式配置、Provider 自带来源、DATABRICKS_HOST。
func ResolveWorkspaceHost(explicit string, provider auth.Provider) (string, error) {
	if h := strings.TrimSpace(explicit); h != "" {
		return h, nil
	}
	if hr, ok := provider.(auth.HostResolver); ok {
		if h, err := hr.ResolveHost(); err == nil && strings.TrimSpace(h) != "" {
			return strings.TrimSpace(h), nil
		}
	}
	if h := strings.TrimSpace(os.Getenv(auth.EnvHost)); h != "" {
		return h, nil
	}
	return "", fmt.Errorf("workspace host is required (set ChatConfig.Host or %s)", auth.EnvHost)
}
