package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// =============================================================================
// Mailer: SMTP 邮件客户端
// 工作流引擎的通知出口：发送本身尽力而为，失败由调用方记日志后丢弃，
// 永远不影响审批事务的结果
// =============================================================================

// 单次投递的兜底超时，SMTP 服务器挂死时不能拖住调用方
const sendTimeout = 30 * time.Second

// Sender 邮件发送接口，测试时用记录桩替换
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Client SMTP 邮件客户端
type Client struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewClient 创建邮件客户端
func NewClient(host string, port int, username, password, from string) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Enabled 是否已配置 SMTP（未配置时通知静默跳过）
func (c *Client) Enabled() bool {
	return c != nil && c.host != "" && c.port > 0
}

// Send 发送一封 HTML 邮件
// 投递在独立 goroutine 中执行，受 ctx 和兜底超时双重约束
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	if !c.Enabled() {
		return fmt.Errorf("邮件服务未配置")
	}
	if !strings.Contains(to, "@") {
		return fmt.Errorf("无效的收件地址: %s", to)
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", c.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if c.username != "" {
		auth = smtp.PlainAuth("", c.username, c.password, c.host)
	}
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, c.from, []string{to}, []byte(msg.String()))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("邮件发送失败 (to=%s): %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("邮件发送超时 (to=%s): %w", to, ctx.Err())
	}
}
