package service

import (
	"context"
	"fmt"
	"log"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/shared/mailer"
)

// =============================================================================
// Notifier: 审批事件的邮件通知
// 事务内只收集通知意图，提交成功后统一派发，邮件路径的故障和延迟
// 不会回滚工作流，也不会拖长事务持锁时间
// =============================================================================

// MailIntent 一条待派发的通知意图
type MailIntent struct {
	To      string
	Subject string
	Body    string
}

// Notifier 通知器
type Notifier struct {
	sender  mailer.Sender
	baseURL string
}

// NewNotifier 创建通知器，sender 为 nil 时全部通知静默跳过
func NewNotifier(sender mailer.Sender, baseURL string) *Notifier {
	return &Notifier{sender: sender, baseURL: baseURL}
}

// Dispatch 异步派发一批通知意图
// 发送失败只记日志，从不向调用方传播
func (n *Notifier) Dispatch(intents []MailIntent) {
	if n == nil || n.sender == nil || len(intents) == 0 {
		return
	}
	go func() {
		ctx := context.Background()
		for _, intent := range intents {
			if err := n.sender.Send(ctx, intent.To, intent.Subject, intent.Body); err != nil {
				log.Printf("[MailNotify] 发送通知失败 (to=%s, subject=%s): %v", intent.To, intent.Subject, err)
			} else {
				log.Printf("[MailNotify] 已通知 %s: %s", intent.To, intent.Subject)
			}
		}
	}()
}

// requestLink 通知邮件里的回链
func (n *Notifier) requestLink(requestID string) string {
	return fmt.Sprintf("%s/requests/%s", n.baseURL, requestID)
}

// ApproverAssigned 通知审批人：有申请等待处理
func (n *Notifier) ApproverAssigned(approver *entity.User, req *entity.Request, typeName, initiatorName string) MailIntent {
	subject := fmt.Sprintf("待审批：%s 放行申请 #%s", typeName, req.ID)
	body := fmt.Sprintf(
		`<p>%s，您好：</p>
<p>%s 提交的 <b>%s</b> 放行申请正在等待您审批。</p>
<p>申请编号：%s</p>
<p><a href="%s">点击处理该申请</a></p>`,
		approver.Name, initiatorName, typeName, req.ID, n.requestLink(req.ID))
	return MailIntent{To: approver.Email, Subject: subject, Body: body}
}

// InitiatorApproved 通知发起人：某一级审批已通过
// final 为 true 时表示链已走完，申请整体通过
func (n *Notifier) InitiatorApproved(initiator *entity.User, req *entity.Request, approverName, comments string, final bool) MailIntent {
	var subject, message string
	if final {
		subject = fmt.Sprintf("申请已通过：#%s", req.ID)
		message = fmt.Sprintf("您的放行申请已完成全部审批，最终由 %s 批准。", approverName)
	} else {
		subject = fmt.Sprintf("审批进度：#%s", req.ID)
		message = fmt.Sprintf("%s 已批准您的放行申请，正在等待后续审批。", approverName)
	}
	body := fmt.Sprintf(
		`<p>%s，您好：</p>
<p>%s</p>%s
<p>申请编号：%s</p>
<p><a href="%s">查看申请详情</a></p>`,
		initiator.Name, message, commentsBlock(comments), req.ID, n.requestLink(req.ID))
	return MailIntent{To: initiator.Email, Subject: subject, Body: body}
}

// InitiatorRejected 通知发起人：申请被驳回
func (n *Notifier) InitiatorRejected(initiator *entity.User, req *entity.Request, approverName, comments string) MailIntent {
	subject := fmt.Sprintf("申请被驳回：#%s", req.ID)
	body := fmt.Sprintf(
		`<p>%s，您好：</p>
<p>您的放行申请已被 %s 驳回。</p>%s
<p>申请编号：%s</p>
<p><a href="%s">查看申请详情</a></p>`,
		initiator.Name, approverName, commentsBlock(comments), req.ID, n.requestLink(req.ID))
	return MailIntent{To: initiator.Email, Subject: subject, Body: body}
}

// UpstreamRejected 通知上一级审批人：其已批准的申请在下游被驳回
func (n *Notifier) UpstreamRejected(prevApprover *entity.User, req *entity.Request, approverName, comments string) MailIntent {
	subject := fmt.Sprintf("下游驳回提醒：#%s", req.ID)
	body := fmt.Sprintf(
		`<p>%s，您好：</p>
<p>您此前批准的放行申请已被后续审批人 %s 驳回。</p>%s
<p>申请编号：%s</p>
<p><a href="%s">查看申请详情</a></p>`,
		prevApprover.Name, approverName, commentsBlock(comments), req.ID, n.requestLink(req.ID))
	return MailIntent{To: prevApprover.Email, Subject: subject, Body: body}
}

func commentsBlock(comments string) string {
	if comments == "" {
		return ""
	}
	return fmt.Sprintf("\n<p>审批意见：%s</p>", comments)
}
