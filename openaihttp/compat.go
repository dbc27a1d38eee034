package openaihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/LubyRuffy/dbx2o"
	"github.com/LubyRuffy/dbx2o/openaiapi"
	"github.com/LubyRuffy/dbx2o/serving"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type httpError struct {
	Status  int
	Message string
	Err     error
}

func (e *httpError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *httpError) Unwrap() error { return e.Err }

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error)
	Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error)
}

type compatConfig struct {
	Now               func() time.Time
	NewChatCompletion func() string
	WriteJSON         func(w http.ResponseWriter, data interface{})
	WriteOpenAIError  func(w http.ResponseWriter, statusCode int, message string)
	NewChatModel      func(ctx context.Context, endpoint string, req openaiapi.OpenAIChatRequest) (chatModel, error)
	ListEndpoints     func(ctx context.Context) ([]serving.Endpoint, error)
	Aliases           map[string]string
	SystemFingerprint string
}

type compatHandler struct {
	now               func() time.Time
	newChatCompletion func() string
	writeJSON         func(w http.ResponseWriter, data interface{})
	writeOpenAIError  func(w http.ResponseWriter, statusCode int, message string)
	newChatModel      func(ctx context.Context, endpoint string, req openaiapi.OpenAIChatRequest) (chatModel, error)
	listEndpoints     func(ctx context.Context) ([]serving.Endpoint, error)
	aliases           map[string]string
	systemFingerprint string
}

func newCompatHandler(cfg compatConfig) (*compatHandler, error) {
	if cfg.WriteJSON == nil {
		return nil, fmt.Errorf("WriteJSON is required")
	}
	if cfg.WriteOpenAIError == nil {
		return nil, fmt.Errorf("WriteOpenAIError is required")
	}
	if cfg.NewChatModel == nil {
		return nil, fmt.Errorf("NewChatModel is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewChatCompletion == nil {
		cfg.NewChatCompletion = openaiapi.NewChatCompletionID
	}
	if strings.TrimSpace(cfg.SystemFingerprint) == "" {
		cfg.SystemFingerprint = defaultSystemFingerprint
	}
	return &compatHandler{
		now:               cfg.Now,
		newChatCompletion: cfg.NewChatCompletion,
		writeJSON:         cfg.WriteJSON,
		writeOpenAIError:  cfg.WriteOpenAIError,
		newChatModel:      cfg.NewChatModel,
		listEndpoints:     cfg.ListEndpoints,
		aliases:           cfg.Aliases,
		systemFingerprint: cfg.SystemFingerprint,
	}, nil
}

// handleModels 返回预置 foundation endpoints、配置的别名，以及 workspace 里
// 实际在跑的 chat endpoints；拉取 workspace 列表失败时只降级到静态部分。
func (h *compatHandler) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.now().Unix()
	seen := make(map[string]struct{}, 32)
	modelsList := make([]openaiapi.OpenAIModel, 0, 32)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		key := strings.ToLower(id)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		modelsList = append(modelsList, openaiapi.OpenAIModel{
			ID:      id,
			Object:  "model",
			Created: now,
			OwnedBy: "databricks",
		})
	}

	for _, ep := range dbx2o.PresetEndpoints() {
		add(ep.ID)
	}

	aliasNames := make([]string, 0, len(h.aliases))
	for name := range h.aliases {
		aliasNames = append(aliasNames, name)
	}
	sort.Strings(aliasNames)
	for _, name := range aliasNames {
		add(name)
	}

	if h.listEndpoints != nil {
		endpoints, err := h.listEndpoints(r.Context())
		if err != nil {
			log.Printf("[dbx2o] list serving endpoints failed: %v", err)
		}
		for _, ep := range endpoints {
			if !ep.IsChatEndpoint() {
				continue
			}
			add(dbx2o.EndpointNamespace + ep.Name)
		}
	}

	h.writeJSON(w, openaiapi.OpenAIModelList{
		Object: "list",
		Data:   modelsList,
	})
}

func (h *compatHandler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req openaiapi.OpenAIChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeOpenAIError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Model) == "" {
		h.writeOpenAIError(w, http.StatusBadRequest, "model is required")
		return
	}

	messages, err := convertOpenAIChatMessages(req.Messages)
	if err != nil {
		h.writeOpenAIError(w, http.StatusBadRequest, err.Error())
		return
	}

	endpoint := h.resolveEndpoint(req.Model)
	chatID := h.newChatCompletion()

	if req.Stream {
		h.handleStreamResponse(w, r, chatID, req, endpoint, messages)
		return
	}

	model, err := h.newChatModel(r.Context(), endpoint, req)
	if err != nil {
		h.writeOpenAIError(w, httpStatusFromError(err), httpMessageFromError(err))
		return
	}

	respMsg, err := model.Generate(r.Context(), messages)
	if err != nil {
		h.writeOpenAIError(w, httpStatusFromError(err), httpMessageFromError(err))
		return
	}

	h.writeJSON(w, completionFromMessage(chatID, req.Model, respMsg, h.now().Unix(), h.systemFingerprint))
}

func (h *compatHandler) handleStreamResponse(
	w http.ResponseWriter,
	r *http.Request,
	chatID string,
	req openaiapi.OpenAIChatRequest,
	endpoint string,
	messages []*schema.Message,
) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeOpenAIError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	model, err := h.newChatModel(r.Context(), endpoint, req)
	if err != nil {
		h.writeOpenAIError(w, httpStatusFromError(err), httpMessageFromError(err))
		return
	}

	// Stream 的认证和建连错误同步返回，此时还没写出任何 SSE 字节，
	// 可以按普通错误响应处理。
	sr, err := model.Stream(r.Context(), messages)
	if err != nil {
		h.writeOpenAIError(w, httpStatusFromError(err), httpMessageFromError(err))
		return
	}
	defer sr.Close()
	flusher.Flush()

	emit := func(chunk openaiapi.OpenAIChatChunk) {
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	finishReason := ""
	var usage *openaiapi.OpenAIUsage

	for {
		msg, err := sr.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[dbx2o] chat stream aborted: %v", err)
			}
			break
		}
		if msg == nil {
			continue
		}

		if meta := msg.ResponseMeta; meta != nil {
			if strings.TrimSpace(meta.FinishReason) != "" {
				finishReason = meta.FinishReason
			}
			if meta.Usage != nil {
				usage = &openaiapi.OpenAIUsage{
					PromptTokens:     meta.Usage.PromptTokens,
					CompletionTokens: meta.Usage.CompletionTokens,
					TotalTokens:      meta.Usage.TotalTokens,
				}
			}
		}

		if calls := openAIToolCallsFromSchema(msg.ToolCalls); len(calls) > 0 {
			if finishReason == "" {
				finishReason = "tool_calls"
			}
			emit(toolCallChunk(chatID, req.Model, calls, h.systemFingerprint))
		}
		if msg.Content != "" {
			emit(openaiapi.ToChatChunk(chatID, req.Model, msg.Content, nil, h.systemFingerprint))
		}
	}

	if finishReason == "" {
		finishReason = "stop"
	}
	emit(openaiapi.ToChatChunk(chatID, req.Model, "", &finishReason, h.systemFingerprint))
	if usage != nil && req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
		emit(openaiapi.ToUsageChunk(chatID, req.Model, *usage, h.systemFingerprint))
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// resolveEndpoint 把对外 model 名换算成 serving endpoint 名称：
// 先查别名表，再剥掉 databricks/ 命名空间。
func (h *compatHandler) resolveEndpoint(model string) string {
	model = strings.TrimSpace(model)
	if endpoint, ok := h.aliases[strings.ToLower(model)]; ok {
		return endpoint
	}
	return dbx2o.NormalizeEndpointID(model)
}

func completionFromMessage(id, model string, msg *schema.Message, created int64, systemFingerprint string) openaiapi.OpenAIChatCompletion {
	content := ""
	finishReason := ""
	var usage openaiapi.OpenAIUsage
	var toolCalls []openaiapi.OpenAIToolCall

	if msg != nil {
		content = msg.Content
		toolCalls = openAIToolCallsFromSchema(msg.ToolCalls)
		if len(toolCalls) > 0 {
			finishReason = "tool_calls"
		}
		if meta := msg.ResponseMeta; meta != nil {
			if strings.TrimSpace(meta.FinishReason) != "" {
				finishReason = meta.FinishReason
			}
			if meta.Usage != nil {
				usage = openaiapi.OpenAIUsage{
					PromptTokens:     meta.Usage.PromptTokens,
					CompletionTokens: meta.Usage.CompletionTokens,
					TotalTokens:      meta.Usage.TotalTokens,
				}
			}
		}
	}
	if finishReason == "" {
		finishReason = "stop"
	}

	return openaiapi.OpenAIChatCompletion{
		ID:                id,
		Object:            "chat.completion",
		Created:           created,
		Model:             model,
		SystemFingerprint: systemFingerprint,
		Choices: []openaiapi.OpenAIChoice{
			{
				Index: 0,
				Message: openaiapi.OpenAIMessage{
					Role:      "assistant",
					Content:   content,
					ToolCalls: toolCalls,
				},
				FinishReason: &finishReason,
			},
		},
		Usage: usage,
	}
}

func toolCallChunk(id, model string, calls []openaiapi.OpenAIToolCall, systemFingerprint string) openaiapi.OpenAIChatChunk {
	return openaiapi.OpenAIChatChunk{
		ID:                id,
		Object:            "chat.completion.chunk",
		Created:           time.Now().Unix(),
		Model:             model,
		SystemFingerprint: systemFingerprint,
		Choices: []openaiapi.OpenAIChunkChoice{
			{
				Index: 0,
				Delta: openaiapi.OpenAIDelta{ToolCalls: calls},
			},
		},
	}
}

func openAIToolCallsFromSchema(calls []schema.ToolCall) []openaiapi.OpenAIToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]openaiapi.OpenAIToolCall, 0, len(calls))
	for i, tc := range calls {
		call := openaiapi.OpenAIToolCall{
			ID:    tc.ID,
			Index: i,
			Type:  tc.Type,
		}
		if tc.Index != nil {
			call.Index = *tc.Index
		}
		if strings.TrimSpace(call.Type) == "" {
			call.Type = "function"
		}
		call.Function.Name = tc.Function.Name
		call.Function.Arguments = tc.Function.Arguments
		out = append(out, call)
	}
	return out
}

func convertOpenAIChatMessages(messages []openaiapi.OpenAIMessage) ([]*schema.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages is required")
	}

	result := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			return nil, fmt.Errorf("message role is required")
		}

		content, err := openAIContentToText(msg.Content)
		if err != nil {
			return nil, err
		}

		switch role {
		case "system", "developer":
			result = append(result, schema.SystemMessage(content))
		case "user":
			result = append(result, schema.UserMessage(content))
		case "assistant":
			toolCalls := make([]schema.ToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				callID := strings.TrimSpace(tc.ID)
				if callID == "" {
					continue
				}
				callType := strings.TrimSpace(tc.Type)
				if callType == "" {
					callType = "function"
				}
				toolCall := schema.ToolCall{
					ID:   callID,
					Type: callType,
					Function: schema.FunctionCall{
						Name:      strings.TrimSpace(tc.Function.Name),
						Arguments: tc.Function.Arguments,
					},
				}
				if tc.Index != 0 {
					index := tc.Index
					toolCall.Index = &index
				}
				toolCalls = append(toolCalls, toolCall)
			}
			if content == "" && len(toolCalls) == 0 {
				continue
			}
			result = append(result, &schema.Message{
				Role:      schema.Assistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
		case "tool":
			if strings.TrimSpace(msg.ToolCallID) == "" {
				return nil, fmt.Errorf("tool message requires tool_call_id")
			}
			if strings.TrimSpace(content) == "" {
				log.Printf("[dbx2o] Skip empty tool content: tool_call_id=%s", msg.ToolCallID)
				continue
			}
			result = append(result, schema.ToolMessage(content, msg.ToolCallID))
		default:
			return nil, fmt.Errorf("unsupported role: %s", role)
		}
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}
	return result, nil
}

func openAIContentToText(content any) (string, error) {
	if content == nil {
		return "", nil
	}

	if text, ok := content.(string); ok {
		return text, nil
	}

	parts, ok := content.([]interface{})
	if !ok {
		return "", fmt.Errorf("unsupported message content")
	}

	builder := strings.Builder{}
	for _, part := range parts {
		partMap, ok := part.(map[string]interface{})
		if !ok {
			continue
		}
		partType, _ := partMap["type"].(string)
		if partType != "text" && partType != "input_text" {
			continue
		}
		if textValue, ok := partMap["text"].(string); ok {
			builder.WriteString(textValue)
			continue
		}
		if textObj, ok := partMap["text"].(map[string]interface{}); ok {
			if value, ok := textObj["value"].(string); ok {
				builder.WriteString(value)
			}
		}
	}

	return builder.String(), nil
}

// stopSequences 接受 OpenAI 协议里 stop 字段的 string 与 []string 两种写法。
func stopSequences(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func float32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}

func httpStatusFromError(err error) int {
	var httpErr *httpError
	if errors.As(err, &httpErr) && httpErr != nil && httpErr.Status != 0 {
		return httpErr.Status
	}
	var reqErr *serving.RequestError
	if errors.As(err, &reqErr) && reqErr != nil && reqErr.StatusCode != 0 {
		if reqErr.StatusCode >= http.StatusInternalServerError {
			return http.StatusBadGateway
		}
		return reqErr.StatusCode
	}
	return http.StatusInternalServerError
}

func httpMessageFromError(err error) string {
	var httpErr *httpError
	if errors.As(err, &httpErr) && httpErr != nil && strings.TrimSpace(httpErr.Message) != "" {
		return httpErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
