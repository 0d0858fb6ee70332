package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	// 主 API 组（向后兼容）
	registerAPIRoutes(router.Group("/api"), handlers)

	// 版本化 API 组
	registerAPIRoutes(router.Group("/api/v1"), handlers)
}

// registerAPIRoutes 注册业务路由；鉴权由上游网关负责
func registerAPIRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	// 会话记忆
	h.Memory.RegisterRoutes(apiGroup)
}
