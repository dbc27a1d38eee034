package openaihttp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/LubyRuffy/dbx2o"
)

const (
	maxUpstreamErrBytes = 8 << 10
	sseContentTypeValue = "text/event-stream"
)

// newInvocationsHandler 返回 serving endpoint 原生 invocations 接口的透传代理：
// 请求体原样转发，认证头由签名 transport 注入；响应按上游 Content-Type
// 原样回写，SSE 按事件边界逐段 flush。只解析 stream 标志用于选 client，
// 其余内容一概不动。
func newInvocationsHandler(cfg resolvedConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		endpoint, ok := endpointFromInvocationsPath(r.URL.Path)
		if !ok {
			writeOpenAIError(w, http.StatusBadRequest, "endpoint name is required")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if _, err := cfg.Provider.Auth(r.Context()); err != nil {
			writeOpenAIError(w, http.StatusServiceUnavailable, "auth not available")
			return
		}

		host, err := cfg.resolveHost()
		if err != nil {
			writeOpenAIError(w, http.StatusServiceUnavailable, "workspace not available")
			return
		}

		var probe struct {
			Stream bool `json:"stream"`
		}
		_ = json.Unmarshal(body, &probe)

		target := dbx2o.EndpointBaseURL(host) + "/" + url.PathEscape(endpoint) + "/invocations"
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			writeOpenAIError(w, http.StatusInternalServerError, "failed to build upstream request")
			return
		}
		if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "" {
			req.Header.Set("Content-Type", ct)
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
		if accept := strings.TrimSpace(r.Header.Get("Accept")); accept != "" {
			req.Header.Set("Accept", accept)
		}

		client := cfg.Pair.Invoke
		if probe.Stream {
			client = cfg.Pair.Stream
		}

		resp, err := client.Do(req)
		if err != nil {
			writeOpenAIError(w, http.StatusBadGateway, err.Error())
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamErrBytes))
			status := resp.StatusCode
			if status >= http.StatusInternalServerError {
				status = http.StatusBadGateway
			}
			writeOpenAIError(w, status, strings.TrimSpace(string(errBody)))
			return
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)

		if strings.HasPrefix(contentType, sseContentTypeValue) {
			_ = copyEventStream(r.Context(), w, resp.Body)
			return
		}

		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	}
}

// endpointFromInvocationsPath 从 ".../{endpoint}/invocations" 形式的路径里
// 取出 endpoint 名称，兼容任意注册前缀。
func endpointFromInvocationsPath(path string) (string, bool) {
	path = strings.TrimRight(path, "/")
	const suffix = "/invocations"
	if !strings.HasSuffix(path, suffix) {
		return "", false
	}
	rest := strings.TrimSuffix(path, suffix)
	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		return "", false
	}
	name, err := url.PathUnescape(rest[idx+1:])
	if err != nil || strings.TrimSpace(name) == "" {
		return "", false
	}
	return strings.TrimSpace(name), true
}

func copyEventStream(ctx context.Context, w http.ResponseWriter, body io.Reader) error {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}

	reader := bufio.NewReader(body)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			if _, werr := io.WriteString(w, line); werr != nil {
				return werr
			}
			// 空行是 SSE 的事件边界，按事件粒度往外推。
			if strings.TrimSpace(line) == "" {
				flusher.Flush()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				flusher.Flush()
				return nil
			}
			return err
		}
	}
}
