package openaihttp

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

func RegisterGinRoutes(r gin.IRouter, cfg Config) error {
	if r == nil {
		return fmt.Errorf("router is nil")
	}
	modelsHandler, chatHandler, invocationsHandler, err := Handlers(cfg)
	if err != nil {
		return err
	}

	basePath := normalizeBasePath(cfg.BasePath)
	r.GET(joinPath(basePath, "/models"), gin.WrapF(modelsHandler))
	r.POST(joinPath(basePath, "/chat/completions"), gin.WrapF(chatHandler))
	// 与 workspace 原生路径保持一致，方便直连客户端不改 URL 切过来。
	r.POST("/serving-endpoints/:endpoint/invocations", gin.WrapF(invocationsHandler))
	return nil
}
