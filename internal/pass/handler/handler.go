package handler

import (
	"errors"

	"github.com/Haseeb-U/RequestApprover/internal/config"
	"github.com/Haseeb-U/RequestApprover/internal/pass/service"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
)

// Handlers 处理器集合
type Handlers struct {
	Auth    *AuthHandler
	Request *RequestHandler
	Chain   *ChainHandler
	Upload  *UploadHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, minioClient *minio.Client, cfg *config.Config) *Handlers {
	return &Handlers{
		Auth:    NewAuthHandler(svc.Auth, cfg),
		Request: NewRequestHandler(svc.Request),
		Chain:   NewChainHandler(svc.Chain),
		Upload:  NewUploadHandler(minioClient, cfg.MinIO.Bucket),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ServiceError 把领域错误映射为响应码，未命中的折叠为内部错误
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotAdmin), errors.Is(err, service.ErrNotApprover):
		Forbidden(c, err.Error())
	case errors.Is(err, service.ErrTypeNotFound),
		errors.Is(err, service.ErrRequestNotFound),
		errors.Is(err, service.ErrUserNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrAlreadyProcessed), errors.Is(err, service.ErrAlreadyActed):
		Conflict(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
