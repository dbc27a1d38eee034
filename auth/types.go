package auth

import (
	"context"
	"net/http"
)

// Provider 用于从不同来源产出访问 Databricks workspace 所需的认证头。
// 返回的 header 至少包含 Authorization: Bearer <token>。
type Provider interface {
	Auth(ctx context.Context) (http.Header, error)
}

// HostResolver 由能够从自身配置来源解析 workspace host 的 Provider 额外实现。
type HostResolver interface {
	ResolveHost() (string, error)
}

type Source string

const (
	SourceEnv     Source = "env"
	SourceCfgFile Source = "cfgfile"
	SourceOAuth   Source = "oauth"
	SourceAuto    Source = "auto"
)

// BearerHeader 构造只含 Authorization 的最小认证头。
func BearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
