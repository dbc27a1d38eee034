package openaihttp

import (
	"time"

	"github.com/LubyRuffy/dbx2o/auth"
)

type Config struct {
	// BasePath 仅用于 Gin 注册路由时拼接路径，默认 "/v1"。
	BasePath string
	// Host workspace 地址；为空时逐请求依次尝试 Provider 与 DATABRICKS_HOST。
	Host string
	// Provider 必填：所有出站请求的签名来源。
	Provider auth.Provider
	// InvokeTimeout 只作用于阻塞调用；为零时用 transport.DefaultInvokeTimeout。
	InvokeTimeout time.Duration
	// UserAgent 可选，透传给 serving 请求头。
	UserAgent string
	// Aliases 把对外模型名映射到 serving endpoint 名称，
	// 例如 {"gpt-4o": "databricks-meta-llama-3-3-70b-instruct"}。
	Aliases map[string]string
	// SystemFingerprint chat.completions 用；默认 "fp_dbx2o"。
	SystemFingerprint string
}
