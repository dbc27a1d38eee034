package openaihttp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/dbx2o"
	"github.com/LubyRuffy/dbx2o/auth"
	"github.com/LubyRuffy/dbx2o/openaiapi"
	"github.com/LubyRuffy/dbx2o/serving"
	"github.com/LubyRuffy/dbx2o/transport"
)

const defaultSystemFingerprint = "fp_dbx2o"

// listEndpointsTimeout 限制 models 接口拉取 workspace endpoint 列表的耗时，
// workspace 不可达时不至于拖死整个请求。
const listEndpointsTimeout = 5 * time.Second

func Handlers(cfg Config) (modelsHandler http.HandlerFunc, chatHandler http.HandlerFunc, invocationsHandler http.HandlerFunc, err error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	compat, err := newCompatHandler(compatConfig{
		Now:               time.Now,
		NewChatCompletion: openaiapi.NewChatCompletionID,
		WriteJSON:         writeJSON,
		WriteOpenAIError:  writeOpenAIError,
		SystemFingerprint: resolved.SystemFingerprint,
		NewChatModel:      newChatModelFactory(resolved),
		ListEndpoints:     newEndpointLister(resolved),
		Aliases:           resolved.Aliases,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	modelsHandler = compat.handleModels
	chatHandler = compat.handleChatCompletions
	invocationsHandler = newInvocationsHandler(resolved)
	return modelsHandler, chatHandler, invocationsHandler, nil
}

// newChatModelFactory 先向 Provider 探一次凭据（拿不到直接 503，不碰上游），
// 再经 dbx2o.NewChatModel 装配带签名 transport 的模型。探活结果不会被缓存，
// 真正发出去的请求仍由 transport 逐请求重新签名。
func newChatModelFactory(resolved resolvedConfig) func(ctx context.Context, endpoint string, req openaiapi.OpenAIChatRequest) (chatModel, error) {
	return func(ctx context.Context, endpoint string, req openaiapi.OpenAIChatRequest) (chatModel, error) {
		if _, err := resolved.Provider.Auth(ctx); err != nil {
			return nil, &httpError{
				Status:  http.StatusServiceUnavailable,
				Message: "auth not available",
				Err:     err,
			}
		}

		m, err := dbx2o.NewChatModel(dbx2o.ChatConfig{
			Endpoint:      endpoint,
			Host:          resolved.Host,
			Provider:      resolved.Provider,
			InvokeTimeout: resolved.InvokeTimeout,
			UserAgent:     resolved.UserAgent,
			Temperature:   float32Ptr(req.Temperature),
			TopP:          float32Ptr(req.TopP),
			MaxTokens:     req.MaxTokens,
			Stop:          stopSequences(req.Stop),
		})
		if err != nil {
			return nil, &httpError{
				Status:  http.StatusServiceUnavailable,
				Message: "workspace not available",
				Err:     err,
			}
		}

		functionTools := serving.FunctionToolsFromOpenAITools(req.Tools)
		if len(functionTools) > 0 {
			m = m.WithFunctionTools(functionTools)
		}
		return m, nil
	}
}

func newEndpointLister(resolved resolvedConfig) func(ctx context.Context) ([]serving.Endpoint, error) {
	return func(ctx context.Context) ([]serving.Endpoint, error) {
		host, err := resolved.resolveHost()
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, listEndpointsTimeout)
		defer cancel()
		return serving.ListEndpoints(ctx, resolved.Pair.Invoke, host)
	}
}

type resolvedConfig struct {
	BasePath          string
	Host              string
	Provider          auth.Provider
	Pair              transport.ClientPair
	InvokeTimeout     time.Duration
	UserAgent         string
	Aliases           map[string]string
	SystemFingerprint string
}

func resolveConfig(cfg Config) (resolvedConfig, error) {
	if cfg.Provider == nil {
		return resolvedConfig{}, fmt.Errorf("Provider is required")
	}

	fp := strings.TrimSpace(cfg.SystemFingerprint)
	if fp == "" {
		fp = defaultSystemFingerprint
	}

	var pairOpts []transport.PairOption
	if cfg.InvokeTimeout > 0 {
		pairOpts = append(pairOpts, transport.WithInvokeTimeout(cfg.InvokeTimeout))
	}

	aliases := make(map[string]string, len(cfg.Aliases))
	for name, endpoint := range cfg.Aliases {
		name = strings.TrimSpace(name)
		endpoint = strings.TrimSpace(endpoint)
		if name == "" || endpoint == "" {
			continue
		}
		aliases[strings.ToLower(name)] = endpoint
	}

	return resolvedConfig{
		BasePath:          normalizeBasePath(cfg.BasePath),
		Host:              strings.TrimSpace(cfg.Host),
		Provider:          cfg.Provider,
		Pair:              transport.NewClientPair(cfg.Provider, pairOpts...),
		InvokeTimeout:     cfg.InvokeTimeout,
		UserAgent:         strings.TrimSpace(cfg.UserAgent),
		Aliases:           aliases,
		SystemFingerprint: fp,
	}, nil
}

// resolveHost 逐请求解析 workspace 地址，避免对进程启动顺序的依赖
// （例如 profile 文件在服务启动后才写入）。
func (c resolvedConfig) resolveHost() (string, error) {
	return dbx2o.ResolveWorkspaceHost(c.Host, c.Provider)
}
