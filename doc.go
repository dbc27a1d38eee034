// Package dbx2o 提供将 Databricks Foundation Model serving endpoints
// （OpenAI 兼容的 chat completions 接口）接入 Eino 应用的能力，并可再以
// OpenAI 兼容 API 的形式对外暴露。
//
// 该仓库主要包含三类能力：
//  1. SDK：根包的 NewChatModel 一次性装配好认证 transport 与 serving.ChatModel，
//     阻塞与流式两条路径共享同一套逐请求签名逻辑
//  2. 认证：auth 包提供 env/cfgfile/oauth 等凭据来源，transport 包负责
//     在每个出站请求上注入认证头
//  3. HTTP 兼容层：openaihttp 包导出 /v1/models、/v1/chat/completions 等 handlers
package dbx2o
