package serving

import (
	"strings"

	"github.com/LubyRuffy/dbx2o/openaiapi"
)

// ToolDefinition 是 chat completions 请求 tools 数组的元素。
// serving endpoint 只识别 function 形态的工具。
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// IsUnsupportedToolError 判断 endpoint 报错是否表示该模型不支持工具调用
// （部分外部模型 endpoint 不接受 tools 参数）。
func IsUnsupportedToolError(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return false
	}
	if !strings.Contains(normalized, "tool") {
		return false
	}
	return strings.Contains(normalized, "unsupported") ||
		strings.Contains(normalized, "not supported") ||
		strings.Contains(normalized, "does not support")
}

// FunctionToolsFromOpenAITools 将 OpenAI tools 过滤为 serving endpoint
// 接受的 function tools（去掉非 function 类型、空名与重名）。
func FunctionToolsFromOpenAITools(tools []openaiapi.OpenAITool) []ToolDefinition {
	if len(tools) == 0 {
		return nil
	}

	result := make([]ToolDefinition, 0, len(tools))
	nameSet := make(map[string]struct{})

	for _, tool := range tools {
		if strings.ToLower(strings.TrimSpace(tool.Type)) != "function" {
			continue
		}
		name := strings.TrimSpace(tool.Function.Name)
		if name == "" {
			continue
		}
		normalized := strings.ToLower(name)
		if _, exists := nameSet[normalized]; exists {
			continue
		}
		nameSet[normalized] = struct{}{}

		result = append(result, ToolDefinition{
			Type: "function",
			Function: ToolFunction{
				Name:        name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
