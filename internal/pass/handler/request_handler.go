package handler

import (
	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/pass/service"
	"github.com/gin-gonic/gin"
)

// RequestHandler 放行申请处理器
type RequestHandler struct {
	svc *service.RequestService
}

// NewRequestHandler 创建放行申请处理器
func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

// Create 创建放行申请
// POST /api/v1/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Create(c.Request.Context(), GetUserID(c), req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, result)
}

// ListMine 我发起的请求
// GET /api/v1/my/requests
func (h *RequestHandler) ListMine(c *gin.Context) {
	views, err := h.svc.ListMine(c.Request.Context(), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": views})
}

// CountMine 我发起的请求的状态统计
// GET /api/v1/my/requests/count
func (h *RequestHandler) CountMine(c *gin.Context) {
	counts, err := h.svc.CountMine(c.Request.Context(), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, counts)
}

// ListMyApprovals 等待我决策的请求
// GET /api/v1/my/approvals
func (h *RequestHandler) ListMyApprovals(c *gin.Context) {
	views, err := h.svc.ListPendingApprovals(c.Request.Context(), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": views})
}

// Get 获取请求详情
// GET /api/v1/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, detail)
}

// ListApprovals 获取请求的决策记录
// GET /api/v1/requests/:id/approvals
func (h *RequestHandler) ListApprovals(c *gin.Context) {
	approvals, err := h.svc.ListApprovals(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": approvals})
}

// decideReq 决策请求体
type decideReq struct {
	Comments string `json:"comments"`
}

// Approve 批准请求
// POST /api/v1/requests/:id/approve
func (h *RequestHandler) Approve(c *gin.Context) {
	h.decide(c, entity.DecisionApproved)
}

// Reject 驳回请求
// POST /api/v1/requests/:id/reject
func (h *RequestHandler) Reject(c *gin.Context) {
	h.decide(c, entity.DecisionRejected)
}

func (h *RequestHandler) decide(c *gin.Context, decision string) {
	var req decideReq
	// 请求体可以为空，comments 可选
	_ = c.ShouldBindJSON(&req)

	err := h.svc.Decide(c.Request.Context(), GetUserID(c), c.Param("id"), decision, req.Comments)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"decision": decision})
}
