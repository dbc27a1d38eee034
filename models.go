package dbx2o

import "strings"

const (
	// DefaultAPIPath 是 workspace host 下 OpenAI 兼容接口的挂载路径。
	DefaultAPIPath = "/serving-endpoints"

	// EndpointNamespace 是对外暴露的主命名空间。
	EndpointNamespace = "databricks/"
	// LegacyEndpointNamespace 兼容 LiteLLM 风格的冒号写法。
	LegacyEndpointNamespace = "databricks:"

	// DefaultEndpointID 是未指定 endpoint 时使用的 pay-per-token 基础模型。
	DefaultEndpointID = "databricks-meta-llama-3-3-70b-instruct"
	// DefaultEndpointFullID 是带命名空间的默认 endpoint ID。
	DefaultEndpointFullID = EndpointNamespace + DefaultEndpointID
)

// PresetEndpoint 是一个内置的 pay-per-token foundation model endpoint。
type PresetEndpoint struct {
	ID   string
	Name string
}

// presetEndpoints 的首项就是默认 endpoint。
var presetEndpoints = []PresetEndpoint{
	{ID: DefaultEndpointID, Name: "Meta Llama 3.3 70B Instruct"},
	{ID: "databricks-meta-llama-3-1-8b-instruct", Name: "Meta Llama 3.1 8B Instruct"},
	{ID: "databricks-llama-4-maverick", Name: "Llama 4 Maverick"},
	{ID: "databricks-claude-sonnet-4", Name: "Claude Sonnet 4"},
	{ID: "databricks-claude-3-7-sonnet", Name: "Claude 3.7 Sonnet"},
	{ID: "databricks-gpt-oss-120b", Name: "GPT OSS 120B"},
}

// PresetEndpoints 返回内置的 endpoint 列表（用于 /v1/models 输出）。
// 返回的 ID 使用 EndpointNamespace，默认 endpoint 排在首位。
func PresetEndpoints() []PresetEndpoint {
	out := make([]PresetEndpoint, 0, len(presetEndpoints))
	for _, e := range presetEndpoints {
		out = append(out, PresetEndpoint{ID: EndpointNamespace + e.ID, Name: e.Name})
	}
	return out
}

// NormalizeEndpointID 将带 namespace/prefix 的模型 ID 还原为 serving
// endpoint 的真实名称。endpoint 名称本身原样保留。
func NormalizeEndpointID(modelID string) string {
	trimmed := strings.TrimSpace(modelID)
	switch {
	case strings.HasPrefix(trimmed, EndpointNamespace):
		return strings.TrimPrefix(trimmed, EndpointNamespace)
	case strings.HasPrefix(trimmed, LegacyEndpointNamespace):
		return strings.TrimPrefix(trimmed, LegacyEndpointNamespace)
	default:
		return trimmed
	}
}

// IsFoundationEndpointID 判断是否为内置 foundation model endpoint
// （支持带 namespace 的写法）。自建 endpoint 不在此列但依然可用。
func IsFoundationEndpointID(modelID string) bool {
	normalized := NormalizeEndpointID(modelID)
	if normalized == "" {
		return false
	}
	for _, e := range presetEndpoints {
		if e.ID == normalized {
			return true
		}
	}
	return false
}

// EndpointBaseURL 根据 workspace host 推导 OpenAI 兼容接口的 base URL。
// host 可以带或不带 scheme、尾部斜杠，甚至已经带上 /serving-endpoints。
func EndpointBaseURL(host string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(host), "/")
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	if strings.HasSuffix(trimmed, DefaultAPIPath) {
		return trimmed
	}
	return trimmed + DefaultAPIPath
}
