package transport

import (
	"net/http"
	"time"

	"github.com/LubyRuffy/dbx2o/auth"
)

// DefaultInvokeTimeout 是阻塞调用的默认整体超时。
const DefaultInvokeTimeout = 5 * time.Minute

// ClientPair 是共享同一个 Authenticator 的一对 http.Client：
// Invoke 用于阻塞调用（带整体超时），Stream 用于 SSE 长连接
// （不设整体超时，生命周期由请求的 ctx 控制）。
type ClientPair struct {
	Invoke *http.Client
	Stream *http.Client
}

// PairOption 调整 NewClientPair 的行为。
type PairOption func(*pairOptions)

type pairOptions struct {
	invokeTimeout time.Duration
	base          http.RoundTripper
}

// WithInvokeTimeout 覆盖阻塞 client 的整体超时。
func WithInvokeTimeout(d time.Duration) PairOption {
	return func(o *pairOptions) { o.invokeTimeout = d }
}

// WithBase 指定底层 RoundTripper，默认 http.DefaultTransport。
func WithBase(rt http.RoundTripper) PairOption {
	return func(o *pairOptions) { o.base = rt }
}

// NewClientPair 构造成对的认证 client，两个 client 共用同一个
// Authenticator，两条路径发出的认证头完全一致。
func NewClientPair(provider auth.Provider, opts ...PairOption) ClientPair {
	o := pairOptions{invokeTimeout: DefaultInvokeTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	authenticator := NewAuthenticator(provider, o.base)
	return ClientPair{
		Invoke: &http.Client{Transport: authenticator, Timeout: o.invokeTimeout},
		Stream: &http.Client{Transport: authenticator},
	}
}
