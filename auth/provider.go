package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Option 调整 Provider 的凭据来源（配置文件路径、profile、host 等）。
type Option func(*options)

type options struct {
	configFile   string
	profile      string
	host         string
	clientID     string
	clientSecret string
}

// WithConfigFile 指定 databricks 配置文件路径（默认 ~/.databrickscfg，
// 或 DATABRICKS_CONFIG_FILE）。
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithProfile 指定配置文件中的 profile 名（默认 DEFAULT，
// 或 DATABRICKS_CONFIG_PROFILE）。
func WithProfile(name string) Option {
	return func(o *options) { o.profile = name }
}

// WithHost 指定 workspace host，优先于环境变量与配置文件。
func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

// WithClientCredentials 指定 OAuth M2M 的 service principal 凭据。
func WithClientCredentials(clientID, clientSecret string) Option {
	return func(o *options) {
		o.clientID = clientID
		o.clientSecret = clientSecret
	}
}

// NewProvider 根据来源创建 Provider。
// source 允许：env/cfgfile/oauth/auto；空值按 auto 处理。
func NewProvider(source string, opts ...Option) (Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		s = string(SourceAuto)
	}
	switch Source(s) {
	case SourceEnv:
		return &envProvider{}, nil
	case SourceCfgFile:
		return &cfgFileProvider{opts: o}, nil
	case SourceOAuth:
		return &oauthProvider{opts: o}, nil
	case SourceAuto:
		return &autoProvider{providers: []Provider{
			&envProvider{},
			&cfgFileProvider{opts: o},
			&oauthProvider{opts: o},
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported auth source: %s", source)
	}
}

type autoProvider struct {
	providers []Provider
}

func (p *autoProvider) Auth(ctx context.Context) (http.Header, error) {
	var lastErr error
	for _, provider := range p.providers {
		headers, err := provider.Auth(ctx)
		if err == nil && len(headers) > 0 {
			return headers, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no auth available")
}

func (p *autoProvider) ResolveHost() (string, error) {
	for _, provider := range p.providers {
		hr, ok := provider.(HostResolver)
		if !ok {
			continue
		}
		if host, err := hr.ResolveHost(); err == nil && strings.TrimSpace(host) != "" {
			return host, nil
		}
	}
	return "", fmt.Errorf("no workspace host available")
}

// canonicalHost 规范化 workspace host：补全 scheme、去掉尾部斜杠。
func canonicalHost(host string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(host), "/")
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	return trimmed
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
