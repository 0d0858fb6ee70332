package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseSuccessMessage 返回成功响应（带消息）
func ResponseSuccessMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessMessageResponse(message, data))
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	c.JSON(HTTPStatus(code), ErrorResponse(code, message))
}

// HTTPStatus 业务状态码映射到HTTP状态码，其余业务错误返回200
func HTTPStatus(code int) int {
	switch code {
	case CodeNotFound, CodeMemoryNotFound, CodeAgentNotFound, CodeConversationAbsent:
		return http.StatusNotFound
	case CodeInvalidRequest, CodeMemoryInvalid:
		return http.StatusBadRequest
	case CodeInternalError:
		return http.StatusInternalServerError
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// ResponseBusinessError 返回业务错误响应
func ResponseBusinessError(c *gin.Context, err *BusinessError) {
	ResponseError(c, err.Code, err.Message)
}

// ResponseErr 将任意错误渲染为响应：BusinessError 保留其状态码，其余视为内部错误
func ResponseErr(c *gin.Context, err error) {
	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		ResponseBusinessError(c, bizErr)
		return
	}
	ResponseServerError(c, err.Error())
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}

// ResponseServerError 返回服务器错误响应
func ResponseServerError(c *gin.Context, message string) {
	if message == "" {
		message = "服务器内部错误"
	}
	ResponseError(c, CodeInternalError, message)
}
