package handler

import (
	"github.com/Haseeb-U/RequestApprover/internal/pass/service"
	"github.com/gin-gonic/gin"
)

// ChainHandler 审批链配置处理器
type ChainHandler struct {
	svc *service.ChainService
}

// NewChainHandler 创建审批链配置处理器
func NewChainHandler(svc *service.ChainService) *ChainHandler {
	return &ChainHandler{svc: svc}
}

// ListTypes 获取全部请求类型
// GET /api/v1/request-types
func (h *ChainHandler) ListTypes(c *gin.Context) {
	types, err := h.svc.ListRequestTypes(c.Request.Context())
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": types})
}

// GetChain 获取某类型的审批链
// GET /api/v1/request-types/:id/chain
func (h *ChainHandler) GetChain(c *gin.Context) {
	entries, err := h.svc.GetChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}

// SetChain 整体替换某类型的审批链（仅管理员）
// PUT /api/v1/request-types/:id/chain
func (h *ChainHandler) SetChain(c *gin.Context) {
	var req struct {
		ApproverIDs []string `json:"approver_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	if err := h.svc.SetChain(c.Request.Context(), GetUserID(c), c.Param("id"), req.ApproverIDs); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"count": len(req.ApproverIDs)})
}

// SetInitiators 整体替换某类型的发起权限名单（仅管理员）
// PUT /api/v1/request-types/:id/initiators
func (h *ChainHandler) SetInitiators(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	if err := h.svc.SetInitiators(c.Request.Context(), GetUserID(c), c.Param("id"), req.UserIDs); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"count": len(req.UserIDs)})
}

// ListMyTypes 获取我可以发起的请求类型
// GET /api/v1/my/request-types
func (h *ChainHandler) ListMyTypes(c *gin.Context) {
	types, err := h.svc.ListMyRequestTypes(c.Request.Context(), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": types})
}

// ListUsers 获取全部用户（配置界面选人用）
// GET /api/v1/users
func (h *ChainHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": users})
}
