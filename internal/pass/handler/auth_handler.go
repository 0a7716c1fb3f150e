package handler

import (
	"net/http"

	"github.com/Haseeb-U/RequestApprover/internal/config"
	"github.com/Haseeb-U/RequestApprover/internal/pass/service"
	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	svc *service.AuthService
	cfg *config.Config
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(svc *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{svc: svc, cfg: cfg}
}

// Login 跳转到微软登录页
// GET /api/v1/auth/azure/login
func (h *AuthHandler) Login(c *gin.Context) {
	url, err := h.svc.LoginURL(c.Request.Context())
	if err != nil {
		InternalError(c, "生成登录地址失败: "+err.Error())
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Callback 微软登录回调
// GET /api/v1/auth/azure/callback?state=xxx&code=xxx
func (h *AuthHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		BadRequest(c, "缺少 state 或 code 参数")
		return
	}

	user, pair, err := h.svc.HandleCallback(c.Request.Context(), state, code)
	if err != nil {
		Unauthorized(c, "登录失败: "+err.Error())
		return
	}

	Success(c, gin.H{
		"user":  user,
		"token": pair,
	})
}

// Refresh 刷新Token
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	pair, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		Unauthorized(c, "刷新失败: "+err.Error())
		return
	}
	Success(c, pair)
}

// Logout 登出，吊销 refresh token
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.svc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		InternalError(c, "登出失败: "+err.Error())
		return
	}
	Success(c, gin.H{"message": "logged out"})
}

// Me 获取当前用户资料
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.svc.Me(c.Request.Context(), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, profile)
}
