// Package openaihttp 提供基于 Databricks serving endpoints 的 OpenAI v1 兼容 HTTP 处理器。
//
// 该包对外只暴露：
// - net/http 形式的 handlers（models/chat.completions/invocations 透传）
// - Gin 路由注册方法
//
// 鉴权统一由 auth.Provider 经签名 transport 注入，该包自身不持有任何 token；
// 凭据拿不到时所有接口返回 503，不会把未认证请求放到上游。
//
// 使用示例：
//
//	provider, _ := auth.NewProvider("")
//	modelsH, chatH, invocationsH, _ := openaihttp.Handlers(openaihttp.Config{
//		Provider: provider,
//	})
//	mux.HandleFunc("/v1/models", modelsH)
//	mux.HandleFunc("/v1/chat/completions", chatH)
//	mux.HandleFunc("/serving-endpoints/", invocationsH)
//
//	// gin
//	_ = openaihttp.RegisterGinRoutes(r, openaihttp.Config{
//		BasePath: "/v1",
//		Provider: provider,
//	})
package openaihttp
