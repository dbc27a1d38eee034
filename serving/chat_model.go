package serving

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// PlaceholderToken 用于认证 transport 接管凭据的场景：ChatModel 自身
// 仍会在原生凭据位设置 Authorization，随后被 transport 的逐请求签名覆盖。
const PlaceholderToken = "dbx2o-transport"

// DefaultUserAgent 是未指定 UserAgent 时发送的标识。
const DefaultUserAgent = "dbx2o"

type ChatModelConfig struct {
	// Endpoint 是 serving endpoint 名称，会作为请求体中的 model 字段原样发送。
	Endpoint string
	// BaseURL 形如 https://<workspace>/serving-endpoints。
	BaseURL string
	// Token 是静态 bearer；交给认证 transport 管理凭据时填 PlaceholderToken。
	Token string
	// HTTPClient 承载阻塞调用；StreamHTTPClient 承载 SSE 调用，
	// 为空时复用 HTTPClient，绝不退回未认证的默认 client。
	HTTPClient       *http.Client
	StreamHTTPClient *http.Client
	UserAgent        string

	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
	// ExtraParams 会原样合并进请求体（显式字段优先）。
	ExtraParams map[string]any
}

// ChatModel 是基于 Databricks serving endpoint chat completions 接口的
// ToolCallingChatModel 实现。阻塞与流式走同一个请求构造路径，只在
// stream 标志与响应解析上分叉。
type ChatModel struct {
	config        ChatModelConfig
	tools         []*schema.ToolInfo
	functionTools []ToolDefinition
}

func NewChatModel(config ChatModelConfig) (*ChatModel, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if strings.TrimSpace(config.Token) == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if strings.TrimSpace(config.UserAgent) == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.StreamHTTPClient == nil {
		config.StreamHTTPClient = config.HTTPClient
	}
	return &ChatModel{config: config}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	payload, err := m.buildRequestPayload(input, false)
	if err != nil {
		return nil, err
	}

	resp, err := m.doRequest(ctx, m.config.HTTPClient, payload, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode serving response: %w", err)
	}
	return completionToMessage(&completion)
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	payload, err := m.buildRequestPayload(input, true)
	if err != nil {
		return nil, err
	}

	resp, err := m.doRequest(ctx, m.config.StreamHTTPClient, payload, "text/event-stream")
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*schema.Message](64)
	go func() {
		defer sw.Close()
		defer resp.Body.Close()
		if err := readChunkStream(ctx, resp.Body, sw); err != nil {
			sw.Send(nil, err)
		}
	}()
	return sr, nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (einoModel.ToolCallingChatModel, error) {
	cloned := *m
	cloned.tools = tools
	return &cloned, nil
}

func (m *ChatModel) WithFunctionTools(tools []ToolDefinition) *ChatModel {
	cloned := *m
	cloned.functionTools = tools
	return &cloned
}

// RequestError 表示 serving endpoint 返回了非 2xx 状态码。
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("serving request failed with status %d: %s", e.StatusCode, e.Message)
}

// doRequest 是阻塞与流式共用的请求路径：同样的 URL、同样的请求体构造、
// 同样的头部设置，只有 Accept 与所用 client 不同。
// endpoint 明确拒绝 tools 参数时会去掉 tools 重试一次。
func (m *ChatModel) doRequest(ctx context.Context, client *http.Client, payload *requestPayload, accept string) (*http.Response, error) {
	resp, err := m.send(ctx, client, payload, accept)
	if err == nil {
		return resp, nil
	}

	var reqErr *RequestError
	if len(payload.Tools) > 0 && errors.As(err, &reqErr) && IsUnsupportedToolError(reqErr.Message) {
		trimmed := *payload
		trimmed.Tools = nil
		return m.send(ctx, client, &trimmed, accept)
	}
	return nil, err
}

func (m *ChatModel) send(ctx context.Context, client *http.Client, payload *requestPayload, accept string) (*http.Response, error) {
	body, err := m.buildRequestBody(payload)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(m.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build serving request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.config.Token))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", m.config.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serving request failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		resp.Body.Close()
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// buildRequestBody 将显式字段与 ExtraParams 合并为最终请求体，
// 显式字段优先，ExtraParams 不允许覆盖。
func (m *ChatModel) buildRequestBody(payload *requestPayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode serving request: %w", err)
	}

	extras := NormalizeExtraParams(m.config.ExtraParams)
	if len(extras) == 0 {
		return raw, nil
	}

	merged := map[string]any{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("failed to merge extra params: %w", err)
	}
	for key, value := range extras {
		if _, exists := merged[key]; exists {
			continue
		}
		merged[key] = value
	}
	return json.Marshal(merged)
}

type requestMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type requestPayload struct {
	Model         string             `json:"model"`
	Messages      []requestMessage   `json:"messages"`
	Temperature   *float32           `json:"temperature,omitempty"`
	TopP          *float32           `json:"top_p,omitempty"`
	MaxTokens     *int               `json:"max_tokens,omitempty"`
	Stop          []string           `json:"stop,omitempty"`
	Tools         []ToolDefinition   `json:"tools,omitempty"`
	Stream        bool               `json:"stream"`
	StreamOptions *wireStreamOptions `json:"stream_options,omitempty"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func (m *ChatModel) buildRequestPayload(input []*schema.Message, stream bool) (*requestPayload, error) {
	messages := make([]requestMessage, 0, len(input))

	for _, msg := range input {
		if msg == nil {
			continue
		}
		if msg.Role == schema.Tool {
			callID := strings.TrimSpace(msg.ToolCallID)
			if callID == "" || msg.Content == "" {
				continue
			}
			messages = append(messages, requestMessage{
				Role:       string(schema.Tool),
				Content:    msg.Content,
				ToolCallID: callID,
			})
			continue
		}

		out := requestMessage{
			Role:    string(msg.Role),
			Content: resolveMessageContent(msg),
		}
		for _, toolCall := range msg.ToolCalls {
			callID := strings.TrimSpace(toolCall.ID)
			if callID == "" {
				continue
			}
			callType := strings.TrimSpace(toolCall.Type)
			if callType == "" {
				callType = "function"
			}
			out.ToolCalls = append(out.ToolCalls, wireToolCall{
				ID:   callID,
				Type: callType,
				Function: wireFunctionCall{
					Name:      strings.TrimSpace(toolCall.Function.Name),
					Arguments: toolCall.Function.Arguments,
				},
			})
		}
		if out.Content == "" && len(out.ToolCalls) == 0 {
			continue
		}
		messages = append(messages, out)
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}

	payload := &requestPayload{
		Model:       m.config.Endpoint,
		Messages:    messages,
		Temperature: m.config.Temperature,
		TopP:        m.config.TopP,
		MaxTokens:   m.config.MaxTokens,
		Stop:        m.config.Stop,
		Tools:       m.functionTools,
		Stream:      stream,
	}
	if stream {
		// 要求上游在流结束时补一个只含 usage 的收尾包。
		payload.StreamOptions = &wireStreamOptions{IncludeUsage: true}
	}
	return payload, nil
}

func resolveMessageContent(msg *schema.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if len(msg.UserInputMultiContent) > 0 {
		var builder strings.Builder
		for _, part := range msg.UserInputMultiContent {
			if part.Type == schema.ChatMessagePartTypeText {
				builder.WriteString(part.Text)
			}
		}
		return builder.String()
	}
	return ""
}

type chatWireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   *chatUsage             `json:"usage"`
}

type chatCompletionChoice struct {
	Index        int             `json:"index"`
	Message      chatWireMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type chatCompletionChunk struct {
	ID      string            `json:"id"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`
	Usage   *chatUsage        `json:"usage"`
	Error   *chatWireError    `json:"error"`
}

type chatChunkChoice struct {
	Index        int             `json:"index"`
	Delta        chatWireMessage `json:"delta"`
	FinishReason string          `json:"finish_reason"`
}

type chatWireError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func completionToMessage(resp *chatCompletionResponse) (*schema.Message, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("serving response has no choices")
	}
	choice := resp.Choices[0]

	msg := schema.AssistantMessage(choice.Message.Content, toolCallsFromWire(choice.Message.ToolCalls))
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: choice.FinishReason,
		Usage:        usageFromWire(resp.Usage),
	}
	return msg, nil
}

func toolCallsFromWire(calls []wireToolCall) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, schema.ToolCall{
			Index: call.Index,
			ID:    call.ID,
			Type:  call.Type,
			Function: schema.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out
}

func usageFromWire(usage *chatUsage) *schema.TokenUsage {
	if usage == nil {
		return nil
	}
	return &schema.TokenUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
}

func readChunkStream(ctx context.Context, body io.Reader, sw *schema.StreamWriter[*schema.Message]) error {
	reader := bufio.NewReader(body)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return fmt.Errorf("serving stream error: %s", chunk.Error.Message)
		}
		if msg := chunkToMessage(&chunk); msg != nil {
			if closed := sw.Send(msg, nil); closed {
				return nil
			}
		}
	}
}

func chunkToMessage(chunk *chatCompletionChunk) *schema.Message {
	if len(chunk.Choices) == 0 {
		// include_usage 的收尾包只带 usage，没有 choices。
		if chunk.Usage == nil {
			return nil
		}
		return &schema.Message{
			Role:         schema.Assistant,
			ResponseMeta: &schema.ResponseMeta{Usage: usageFromWire(chunk.Usage)},
		}
	}

	choice := chunk.Choices[0]
	if choice.Delta.Content == "" && len(choice.Delta.ToolCalls) == 0 && choice.FinishReason == "" {
		return nil
	}

	msg := &schema.Message{
		Role:      schema.Assistant,
		Content:   choice.Delta.Content,
		ToolCalls: toolCallsFromWire(choice.Delta.ToolCalls),
	}
	if choice.FinishReason != "" {
		msg.ResponseMeta = &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
			Usage:        usageFromWire(chunk.Usage),
		}
	}
	return msg
}
