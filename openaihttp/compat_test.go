package openaihttp

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/LubyRuffy/dbx2o/openaiapi"
	"github.com/LubyRuffy/dbx2o/serving"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

func TestConvertOpenAIChatMessages(t *testing.T) {
	toolCall := openaiapi.OpenAIToolCall{ID: "call_1", Type: "function"}
	toolCall.Function.Name = "get_weather"
	toolCall.Function.Arguments = `{"city":"SF"}`

	msgs, err := convertOpenAIChatMessages([]openaiapi.OpenAIMessage{
		{Role: "system", Content: "be brief"},
		{Role: "developer", Content: "prefer metric units"},
		{Role: "user", Content: []interface{}{
			map[string]interface{}{"type": "text", "text": "weather "},
			map[string]interface{}{"type": "input_text", "text": "in "},
			map[string]interface{}{"type": "text", "text": map[string]interface{}{"value": "sf"}},
		}},
		{Role: "assistant", ToolCalls: []openaiapi.OpenAIToolCall{toolCall}},
		{Role: "tool", ToolCallID: "call_1", Content: "sunny"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	require.Equal(t, schema.System, msgs[0].Role)
	require.Equal(t, "be brief", msgs[0].Content)

	require.Equal(t, schema.System, msgs[1].Role)
	require.Equal(t, "prefer metric units", msgs[1].Content)

	require.Equal(t, schema.User, msgs[2].Role)
	require.Equal(t, "weather in sf", msgs[2].Content)

	require.Equal(t, schema.Assistant, msgs[3].Role)
	require.Len(t, msgs[3].ToolCalls, 1)
	require.Equal(t, "call_1", msgs[3].ToolCalls[0].ID)
	require.Equal(t, "get_weather", msgs[3].ToolCalls[0].Function.Name)

	require.Equal(t, schema.Tool, msgs[4].Role)
	require.Equal(t, "call_1", msgs[4].ToolCallID)
	require.Equal(t, "sunny", msgs[4].Content)
}

func TestConvertOpenAIChatMessages_Errors(t *testing.T) {
	_, err := convertOpenAIChatMessages(nil)
	require.ErrorContains(t, err, "messages is required")

	_, err = convertOpenAIChatMessages([]openaiapi.OpenAIMessage{{Role: "tool", Content: "x"}})
	require.ErrorContains(t, err, "tool_call_id")

	_, err = convertOpenAIChatMessages([]openaiapi.OpenAIMessage{{Role: "critic", Content: "x"}})
	require.ErrorContains(t, err, "unsupported role")

	// 空 assistant 和空 tool 内容会被跳过；全部被跳过时整体报错。
	_, err = convertOpenAIChatMessages([]openaiapi.OpenAIMessage{
		{Role: "assistant", Content: ""},
		{Role: "tool", ToolCallID: "call_9", Content: "  "},
	})
	require.ErrorContains(t, err, "no valid messages")
}

func TestResolveEndpoint(t *testing.T) {
	h := &compatHandler{aliases: map[string]string{"gpt-4o": "my-agent-endpoint"}}

	require.Equal(t, "my-agent-endpoint", h.resolveEndpoint(" GPT-4O "))
	require.Equal(t, "foo", h.resolveEndpoint("databricks/foo"))
	require.Equal(t, "bar", h.resolveEndpoint("databricks:bar"))
	require.Equal(t, "plain-endpoint", h.resolveEndpoint("plain-endpoint"))
}

func TestStopSequences(t *testing.T) {
	require.Nil(t, stopSequences(nil))
	require.Nil(t, stopSequences(""))
	require.Nil(t, stopSequences(42))
	require.Equal(t, []string{"###"}, stopSequences("###"))
	require.Equal(t, []string{"a", "b"}, stopSequences([]interface{}{"a", "", "b"}))
	require.Equal(t, []string{"x"}, stopSequences([]string{"x", " "}))
}

func TestEndpointFromInvocationsPath(t *testing.T) {
	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{path: "/serving-endpoints/foo/invocations", want: "foo", ok: true},
		{path: "/serving-endpoints/foo/invocations/", want: "foo", ok: true},
		{path: "/x/y/my%20ep/invocations", want: "my ep", ok: true},
		{path: "/invocations", ok: false},
		{path: "/serving-endpoints//invocations", ok: false},
		{path: "/serving-endpoints/foo/invocation", ok: false},
	}
	for _, tc := range cases {
		got, ok := endpointFromInvocationsPath(tc.path)
		require.Equal(t, tc.ok, ok, "path=%s", tc.path)
		require.Equal(t, tc.want, got, "path=%s", tc.path)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	require.Equal(t, http.StatusServiceUnavailable,
		httpStatusFromError(&httpError{Status: http.StatusServiceUnavailable, Message: "auth not available"}))
	require.Equal(t, http.StatusTooManyRequests,
		httpStatusFromError(&serving.RequestError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}))
	require.Equal(t, http.StatusBadGateway,
		httpStatusFromError(&serving.RequestError{StatusCode: http.StatusInternalServerError, Message: "boom"}))
	require.Equal(t, http.StatusBadGateway,
		httpStatusFromError(fmt.Errorf("wrapped: %w", &serving.RequestError{StatusCode: http.StatusBadGateway, Message: "x"})))
	require.Equal(t, http.StatusInternalServerError, httpStatusFromError(fmt.Errorf("plain")))
}

func TestCompletionFromMessage_ToolCalls(t *testing.T) {
	index := 0
	msg := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			Index: &index,
			ID:    "call_7",
			Function: schema.FunctionCall{
				Name:      "get_weather",
				Arguments: `{"city":"SF"}`,
			},
		}},
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "tool_calls",
			Usage:        &schema.TokenUsage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
		},
	}

	out := completionFromMessage("chatcmpl-test", "m", msg, 1700000000, "fp_x")
	require.Equal(t, "chat.completion", out.Object)
	require.Equal(t, int64(1700000000), out.Created)
	require.Len(t, out.Choices, 1)
	require.Equal(t, "tool_calls", *out.Choices[0].FinishReason)
	require.Len(t, out.Choices[0].Message.ToolCalls, 1)
	require.Equal(t, "call_7", out.Choices[0].Message.ToolCalls[0].ID)
	require.Equal(t, "function", out.Choices[0].Message.ToolCalls[0].Type)
	require.Equal(t, "get_weather", out.Choices[0].Message.ToolCalls[0].Function.Name)
	require.Equal(t, 5, out.Usage.TotalTokens)
}

func TestCompletionFromMessage_NilMessage(t *testing.T) {
	out := completionFromMessage("chatcmpl-test", "m", nil, 1, "fp_x")
	require.Len(t, out.Choices, 1)
	require.Equal(t, "stop", *out.Choices[0].FinishReason)
	require.Equal(t, "", out.Choices[0].Message.Content)
	require.Empty(t, out.Choices[0].Message.ToolCalls)
}
