package serving

import "strings"

// reservedParamKeys 由显式字段负责，不允许 ExtraParams 触碰。
var reservedParamKeys = map[string]struct{}{
	"model":    {},
	"messages": {},
	"stream":   {},
}

// NormalizeExtraParams 对透传参数做最小清洗：
// - 丢弃空键与保留键
// - 丢弃 undefined/null 占位字符串
// 其余键值原样保留。
func NormalizeExtraParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if _, reserved := reservedParamKeys[strings.ToLower(k)]; reserved {
			continue
		}
		if s, ok := value.(string); ok && isJunkParamValue(s) {
			continue
		}
		out[k] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isJunkParamValue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined", "[undefined]", "null", "[null]":
		return true
	default:
		return false
	}
}

// IsUnsupportedParamError 判断 serving endpoint 的报错是否表示某个
// 请求参数不受支持（不同 endpoint 背后的模型能力不同）。
func IsUnsupportedParamError(message string, param string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	key := strings.ToLower(strings.TrimSpace(param))
	if msg == "" || key == "" {
		return false
	}
	if !strings.Contains(msg, key) {
		return false
	}
	return strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "invalid parameter")
}
