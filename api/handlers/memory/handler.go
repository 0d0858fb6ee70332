package memory

import (
	"strconv"

	"chatmemory/internal/common"
	"chatmemory/internal/logger"
	memsvc "chatmemory/internal/memory"
	"chatmemory/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TaskEnqueuer 异步任务投递，未配置 Redis 时为 nil
type TaskEnqueuer interface {
	EnqueueProcessTurn(payload tasks.ProcessTurnPayload) error
	EnqueueEnforceRetention(agentID string) error
}

// Handler 会话记忆管理处理器
type Handler struct {
	service *memsvc.Service
	queue   TaskEnqueuer
}

// NewHandler 创建处理器；queue 可为 nil，此时所有操作同步执行
func NewHandler(service *memsvc.Service, queue TaskEnqueuer) *Handler {
	return &Handler{service: service, queue: queue}
}

// ProcessTurnRequest 对话消息写入后的摘要请求
type ProcessTurnRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Async   bool   `json:"async"`
}

func parseMemoryID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.ResponseBadRequest(c, "无效的记忆ID")
		return 0, false
	}
	return uint(id), true
}

// GetMemory 获取记忆详情
// @Summary 获取记忆详情
// @Tags Memory
// @Produce json
// @Param id path int true "记忆ID"
// @Success 200 {object} common.APIResponse{data=memsvc.Record}
// @Router /api/memories/{id} [get]
func (h *Handler) GetMemory(c *gin.Context) {
	id, ok := parseMemoryID(c)
	if !ok {
		return
	}
	record, err := h.service.GetMemory(c.Request.Context(), id)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, record)
}

// UpdateMemory 编辑记忆
// @Summary 编辑记忆
// @Tags Memory
// @Accept json
// @Produce json
// @Param id path int true "记忆ID"
// @Param request body memsvc.UpdateMemoryRequest true "更新字段"
// @Success 200 {object} common.APIResponse{data=memsvc.Record}
// @Router /api/memories/{id} [put]
func (h *Handler) UpdateMemory(c *gin.Context) {
	id, ok := parseMemoryID(c)
	if !ok {
		return
	}
	var req memsvc.UpdateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	record, err := h.service.UpdateMemory(c.Request.Context(), id, req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "记忆已更新", record)
}

// DeleteMemory 删除记忆
// @Summary 删除记忆
// @Tags Memory
// @Produce json
// @Param id path int true "记忆ID"
// @Router /api/memories/{id} [delete]
func (h *Handler) DeleteMemory(c *gin.Context) {
	id, ok := parseMemoryID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteMemory(c.Request.Context(), id); err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "记忆已删除", nil)
}

// ListConversationMemories 会话记忆列表
// @Summary 会话记忆列表
// @Tags Memory
// @Produce json
// @Param id path string true "会话ID"
// @Router /api/conversations/{id}/memories [get]
func (h *Handler) ListConversationMemories(c *gin.Context) {
	list, err := h.service.ListConversationMemories(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// ClearConversationMemories 清空会话记忆
// @Summary 清空会话记忆
// @Tags Memory
// @Produce json
// @Param id path string true "会话ID"
// @Router /api/conversations/{id}/memories [delete]
func (h *Handler) ClearConversationMemories(c *gin.Context) {
	deleted, err := h.service.ClearConversationMemories(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{"deleted": deleted})
}

// GetMemoryContext 预览注入提示词的记忆上下文
// @Summary 预览注入提示词的记忆上下文
// @Tags Memory
// @Produce json
// @Param agent_id query string true "Agent ID"
// @Param id path string true "会话ID"
// @Router /api/conversations/{id}/memory-context [get]
func (h *Handler) GetMemoryContext(c *gin.Context) {
	agentID := c.Query("agent_id")
	if agentID == "" {
		common.ResponseBadRequest(c, "agent_id 不能为空")
		return
	}
	block := h.service.GetMemoryContext(c.Request.Context(), c.Param("id"), agentID)
	common.ResponseSuccess(c, gin.H{"context": block})
}

// ProcessTurn 对话消息写入后触发判定与摘要
// @Summary 对话消息写入后触发判定与摘要
// @Tags Memory
// @Produce json
// @Param id path string true "会话ID"
// @Router /api/conversations/{id}/memories/process [post]
func (h *Handler) ProcessTurn(c *gin.Context) {
	var req ProcessTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	conversationID := c.Param("id")
	if err := h.service.RequireConversation(ctx, conversationID); err != nil {
		common.ResponseErr(c, err)
		return
	}

	if req.Async && h.queue != nil {
		payload := tasks.ProcessTurnPayload{
			ConversationID: conversationID,
			AgentID:        req.AgentID,
			TraceID:        logger.GetTraceID(ctx),
		}
		if err := h.queue.EnqueueProcessTurn(payload); err != nil {
			logger.WithContext(ctx).Warn("投递摘要任务失败", zap.Error(err))
			common.ResponseError(c, common.CodeServiceUnavailable, "任务队列不可用")
			return
		}
		common.ResponseSuccessMessage(c, "摘要任务已投递", gin.H{"queued": true})
		return
	}

	record := h.service.ProcessTurn(ctx, conversationID, req.AgentID)
	common.ResponseSuccess(c, gin.H{"generated": record != nil, "memory": record})
}

// ListAgentMemories Agent 记忆列表
// @Summary Agent 记忆列表
// @Tags Memory
// @Produce json
// @Param id path string true "Agent ID"
// @Router /api/agents/{id}/memories [get]
func (h *Handler) ListAgentMemories(c *gin.Context) {
	list, err := h.service.ListAgentMemories(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// GetAgentSettings Agent 生效的记忆配置
// @Summary Agent 生效的记忆配置
// @Tags Memory
// @Produce json
// @Param id path string true "Agent ID"
// @Router /api/agents/{id}/memory-settings [get]
func (h *Handler) GetAgentSettings(c *gin.Context) {
	common.ResponseSuccess(c, h.service.ResolveSettings(c.Request.Context(), c.Param("id")))
}

// EnforceRetention 执行 Agent 记忆保留上限
// @Summary 执行 Agent 记忆保留上限
// @Tags Memory
// @Produce json
// @Param id path string true "Agent ID"
// @Router /api/agents/{id}/memories/retention [post]
func (h *Handler) EnforceRetention(c *gin.Context) {
	agentID := c.Param("id")
	if c.Query("async") == "true" && h.queue != nil {
		if err := h.queue.EnqueueEnforceRetention(agentID); err != nil {
			logger.WithContext(c.Request.Context()).Warn("投递保留上限任务失败", zap.Error(err))
			common.ResponseError(c, common.CodeServiceUnavailable, "任务队列不可用")
			return
		}
		common.ResponseSuccessMessage(c, "保留上限任务已投递", gin.H{"queued": true})
		return
	}

	deleted, err := h.service.EnforceRetention(c.Request.Context(), agentID)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{"deleted": deleted})
}

// CleanupExpired 立即清理过期记忆
// @Summary 立即清理过期记忆
// @Tags Memory
// @Produce json
// @Router /api/memories/cleanup-expired [post]
func (h *Handler) CleanupExpired(c *gin.Context) {
	deleted, err := h.service.CleanupExpired(c.Request.Context())
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{"deleted": deleted})
}

// Stats 记忆统计，按 conversation_id 或 agent_id 过滤
// @Summary 记忆统计
// @Tags Memory
// @Produce json
// @Router /api/memories/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), memsvc.StatsFilter{
		ConversationID: c.Query("conversation_id"),
		AgentID:        c.Query("agent_id"),
	})
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, stats)
}

// RegisterRoutes 注册记忆管理路由
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	memories := api.Group("/memories")
	{
		memories.GET("/stats", h.Stats)
		memories.POST("/cleanup-expired", h.CleanupExpired)
		memories.GET("/:id", h.GetMemory)
		memories.PUT("/:id", h.UpdateMemory)
		memories.DELETE("/:id", h.DeleteMemory)
	}

	conversations := api.Group("/conversations/:id")
	{
		conversations.GET("/memories", h.ListConversationMemories)
		conversations.DELETE("/memories", h.ClearConversationMemories)
		conversations.POST("/memories/process", h.ProcessTurn)
		conversations.GET("/memory-context", h.GetMemoryContext)
	}

	agents := api.Group("/agents/:id")
	{
		agents.GET("/memories", h.ListAgentMemories)
		agents.GET("/memory-settings", h.GetAgentSettings)
		agents.POST("/memories/retention", h.EnforceRetention)
	}
}
