// Package transport 提供逐请求签名的 http.RoundTripper，以及共享同一
// 签名逻辑的阻塞/流式 http.Client 对。
package transport

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/LubyRuffy/dbx2o/auth"
)

// Authenticator 在每个出站请求发出前，把 auth.Provider 产出的认证头
// 注入请求。签名逐请求进行：Provider 内部可以缓存凭据，这里不缓存。
type Authenticator struct {
	provider auth.Provider
	base     http.RoundTripper
}

// NewAuthenticator 包装 base；base 为 nil 时使用 http.DefaultTransport。
func NewAuthenticator(provider auth.Provider, base http.RoundTripper) *Authenticator {
	return &Authenticator{provider: provider, base: base}
}

func (a *Authenticator) RoundTrip(req *http.Request) (*http.Response, error) {
	headers, err := a.provider.Auth(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate request: %w", err)
	}

	// RoundTripper 约定不得修改调用方的请求，签名落在克隆上。
	signed := req.Clone(req.Context())
	for key, values := range headers {
		signed.Header.Del(key)
		for _, value := range values {
			signed.Header.Add(key, value)
		}
	}
	log.Debug().Msgf("signed %s %s", req.Method, req.URL.Path)

	return a.transport().RoundTrip(signed)
}

func (a *Authenticator) transport() http.RoundTripper {
	if a.base == nil {
		return http.DefaultTransport
	}
	return a.base
}
