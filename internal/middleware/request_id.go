package middleware

import (
	"chatmemory/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HTTP 头常量
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// gin 上下文键
const (
	RequestIDKey = "request_id"
	TraceIDKey   = "trace_id"
)

// RequestIDMiddleware 请求 ID 中间件
// 支持上游传递 X-Request-ID / X-Trace-ID；TraceID 写入 context.Context，
// 记忆引擎与 gorm 日志通过 logger.FromContext 自动附带
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = requestID // 如果没有 Trace ID，使用 Request ID
		}

		c.Set(RequestIDKey, requestID)
		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}

// GetRequestIDFromGin 从 Gin 上下文获取请求 ID
func GetRequestIDFromGin(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// GetTraceIDFromGin 从 Gin 上下文获取追踪 ID
func GetTraceIDFromGin(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
