package api

import (
	_ "chatmemory/api/docs"
	memoryHandlers "chatmemory/api/handlers/memory"
	"chatmemory/internal/config"
	"chatmemory/internal/memory"
	"chatmemory/internal/metrics"
	middlewarepkg "chatmemory/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Handlers 所有 HTTP 处理器
type Handlers struct {
	Memory *memoryHandlers.Handler
}

// Dependencies 路由依赖；Queue 为 nil 时异步接口退化为同步执行
type Dependencies struct {
	DB     *gorm.DB
	Memory *memory.Service
	Queue  memoryHandlers.TaskEnqueuer
}

// SetupRouter 设置并返回 Gin 路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(deps.DB))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handlers := &Handlers{
		Memory: memoryHandlers.NewHandler(deps.Memory, deps.Queue),
	}
	RegisterRoutes(router, handlers)
	return router
}
