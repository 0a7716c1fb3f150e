package handler

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// UploadHandler 附件上传处理器
// 附件只存对象存储，数据库里的放行单只记 attachment_path
type UploadHandler struct {
	client *minio.Client
	bucket string
}

// NewUploadHandler 创建附件上传处理器
func NewUploadHandler(client *minio.Client, bucket string) *UploadHandler {
	return &UploadHandler{client: client, bucket: bucket}
}

// UploadedFile 上传结果
type UploadedFile struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Upload 上传附件
// POST /api/v1/uploads
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.client == nil {
		InternalError(c, "对象存储未配置")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "没有上传文件: "+err.Error())
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		InternalError(c, "读取上传文件失败: "+err.Error())
		return
	}
	defer src.Close()

	now := time.Now()
	ext := filepath.Ext(fileHeader.Filename)
	objectName := fmt.Sprintf("attachments/%d/%02d/%s%s",
		now.Year(), now.Month(), uuid.New().String(), ext)

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = h.client.PutObject(c.Request.Context(), h.bucket, objectName, src, fileHeader.Size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		InternalError(c, "保存附件失败: "+err.Error())
		return
	}

	Created(c, UploadedFile{
		Path:        objectName,
		Filename:    fileHeader.Filename,
		Size:        fileHeader.Size,
		ContentType: contentType,
	})
}
