package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/pass/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestService 请求生命周期服务
// 核心状态机：pending → approved（末位批准）/ rejected（任一驳回）
type RequestService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	notifier *Notifier
}

// NewRequestService 创建请求生命周期服务
func NewRequestService(db *gorm.DB, repos *repository.Repositories, notifier *Notifier) *RequestService {
	return &RequestService{db: db, repos: repos, notifier: notifier}
}

// OutwardInput 出库放行单输入
type OutwardInput struct {
	RecipientName  string     `json:"recipient_name"`
	Date           *time.Time `json:"date"`
	Purpose        string     `json:"purpose"`
	SerialNo       int        `json:"serial_no"`
	AccountCode    string     `json:"account_code"`
	Description    string     `json:"description"`
	Unit           string     `json:"unit"`
	Quantity       int        `json:"quantity"`
	Department     string     `json:"department"`
	Priority       string     `json:"priority"`
	Comment        string     `json:"comment"`
	AttachmentPath string     `json:"attachment_path"`
	ToBeReturned   bool       `json:"to_be_returned"`
}

// InwardInput 入库放行单输入
type InwardInput struct {
	OutwardPassID  *string    `json:"outward_pass_id"`
	Date           *time.Time `json:"date"`
	ReceivedBy     string     `json:"received_by"`
	SerialNo       int        `json:"serial_no"`
	AccountCode    string     `json:"account_code"`
	Description    string     `json:"description"`
	Unit           string     `json:"unit"`
	Quantity       int        `json:"quantity"`
	Department     string     `json:"department"`
	Priority       string     `json:"priority"`
	Comment        string     `json:"comment"`
	AttachmentPath string     `json:"attachment_path"`
	Returned       bool       `json:"returned"`
}

// CreateRequestReq 创建请求参数
// 载荷按类型二选一，创建时解析为带标签联合后不再按字符串分流
type CreateRequestReq struct {
	Type    string        `json:"type" binding:"required"`
	Outward *OutwardInput `json:"outward"`
	Inward  *InwardInput  `json:"inward"`
}

// CreateResult 创建结果
type CreateResult struct {
	RequestID string `json:"request_id"`
	RecordID  string `json:"record_id"`
}

// Create 创建放行申请
// 单事务插入请求 + 载荷，提交后通知链上 1 号审批人；
// 类型没有配置审批链时申请照常创建，只是无人可批、不发通知
func (s *RequestService) Create(ctx context.Context, initiatorID string, req CreateRequestReq) (*CreateResult, error) {
	rt, err := s.repos.Chain.FindTypeByName(ctx, req.Type)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, req.Type)
		}
		return nil, fmt.Errorf("查找请求类型失败: %w", err)
	}

	payload, err := buildPayload(rt.Name, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	request := &entity.Request{
		ID:            uuid.New().String(),
		RequestTypeID: rt.ID,
		InitiatorID:   initiatorID,
		Status:        entity.RequestStatusPending,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}

	var recordID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(request).Error; err != nil {
			return fmt.Errorf("创建请求失败: %w", err)
		}
		switch payload.Kind {
		case entity.PassKindOutward:
			payload.Outward.RequestID = request.ID
			if err := tx.Create(payload.Outward).Error; err != nil {
				return fmt.Errorf("创建出库放行单失败: %w", err)
			}
			recordID = payload.Outward.ID
		case entity.PassKindInward:
			payload.Inward.RequestID = request.ID
			if err := tx.Create(payload.Inward).Error; err != nil {
				return fmt.Errorf("创建入库放行单失败: %w", err)
			}
			recordID = payload.Inward.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 提交后通知 1 号审批人，链为空则无事发生
	if first, err := s.repos.Chain.EntryAt(ctx, rt.ID, 1); err == nil && first.Approver != nil {
		initiatorName := ""
		if initiator, err := s.repos.User.FindByID(ctx, initiatorID); err == nil {
			initiatorName = initiator.Name
		}
		s.notifier.Dispatch([]MailIntent{
			s.notifier.ApproverAssigned(first.Approver, request, rt.Name, initiatorName),
		})
	}

	return &CreateResult{RequestID: request.ID, RecordID: recordID}, nil
}

// buildPayload 校验并构造放行单载荷
func buildPayload(typeName string, req CreateRequestReq) (*entity.PassPayload, error) {
	switch typeName {
	case entity.PassKindOutward:
		in := req.Outward
		if in == nil {
			return nil, fmt.Errorf("%w: outward 载荷缺失", ErrValidation)
		}
		if in.RecipientName == "" {
			return nil, fmt.Errorf("%w: recipient_name 必填", ErrValidation)
		}
		if !entity.ValidPurposes[in.Purpose] {
			return nil, fmt.Errorf("%w: 非法的用途 %q", ErrValidation, in.Purpose)
		}
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity 必须为正数", ErrValidation)
		}
		priority, err := normalizePriority(in.Priority)
		if err != nil {
			return nil, err
		}
		return &entity.PassPayload{
			Kind: entity.PassKindOutward,
			Outward: &entity.OutwardPass{
				ID:             uuid.New().String(),
				RecipientName:  in.RecipientName,
				Date:           dateOrNow(in.Date),
				Purpose:        in.Purpose,
				SerialNo:       in.SerialNo,
				AccountCode:    in.AccountCode,
				Description:    in.Description,
				Unit:           in.Unit,
				Quantity:       in.Quantity,
				Department:     in.Department,
				Priority:       priority,
				Comment:        in.Comment,
				AttachmentPath: in.AttachmentPath,
				ToBeReturned:   in.ToBeReturned,
			},
		}, nil

	case entity.PassKindInward:
		in := req.Inward
		if in == nil {
			return nil, fmt.Errorf("%w: inward 载荷缺失", ErrValidation)
		}
		if in.ReceivedBy == "" {
			return nil, fmt.Errorf("%w: received_by 必填", ErrValidation)
		}
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity 必须为正数", ErrValidation)
		}
		priority, err := normalizePriority(in.Priority)
		if err != nil {
			return nil, err
		}
		return &entity.PassPayload{
			Kind: entity.PassKindInward,
			Inward: &entity.InwardPass{
				ID:             uuid.New().String(),
				OutwardPassID:  in.OutwardPassID,
				Date:           dateOrNow(in.Date),
				ReceivedBy:     in.ReceivedBy,
				SerialNo:       in.SerialNo,
				AccountCode:    in.AccountCode,
				Description:    in.Description,
				Unit:           in.Unit,
				Quantity:       in.Quantity,
				Department:     in.Department,
				Priority:       priority,
				Comment:        in.Comment,
				AttachmentPath: in.AttachmentPath,
				Returned:       in.Returned,
			},
		}, nil

	default:
		// 类型存在但不是已知的放行单种类
		return nil, fmt.Errorf("%w: 不支持的请求类型 %q", ErrValidation, typeName)
	}
}

func normalizePriority(p string) (string, error) {
	if p == "" {
		return entity.PriorityMedium, nil
	}
	if !entity.ValidPriorities[p] {
		return "", fmt.Errorf("%w: 非法的优先级 %q", ErrValidation, p)
	}
	return p, nil
}

func dateOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now()
}

// Decide 记录一次审批决策并推进状态机
//
// 整个判定在行锁事务内完成：
//  1. FOR UPDATE 锁住请求行，并发决策在此排队
//  2. 终态请求直接冲突
//  3. 调用者必须在该类型的审批链上占位
//  4. 同一序号只允许一条决策记录（预检 + 唯一索引双保险）
//  5. 驳回立即终态；批准在末位序号时终态，否则保持 pending
//
// 通知意图在事务内收集，提交成功后才派发
func (s *RequestService) Decide(ctx context.Context, actorID, requestID, decision, comments string) error {
	if decision != entity.DecisionApproved && decision != entity.DecisionRejected {
		return fmt.Errorf("%w: 非法的决策 %q", ErrValidation, decision)
	}

	var intents []MailIntent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 锁请求行
		req, err := s.repos.Request.LockByID(tx, requestID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("锁定请求失败: %w", err)
		}

		// 2. 终态不可再决策
		if req.Status != entity.RequestStatusPending {
			return ErrAlreadyProcessed
		}

		// 3. 调用者在链上的位置（同人多位置时取尚未决策的最小序号）
		seqs, err := s.repos.Chain.PositionsOf(ctx, req.RequestTypeID, actorID)
		if err != nil {
			return fmt.Errorf("查询审批链位置失败: %w", err)
		}
		if len(seqs) == 0 {
			return ErrNotApprover
		}

		// 4. 重复决策检查
		seq := 0
		for _, candidate := range seqs {
			if _, err := s.repos.Request.ApprovalAt(tx, requestID, candidate); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					seq = candidate
					break
				}
				return fmt.Errorf("查询决策记录失败: %w", err)
			}
		}
		if seq == 0 {
			return ErrAlreadyActed
		}

		// 5. 插入决策记录，唯一索引兜底并发竞争
		now := time.Now()
		approval := &entity.RequestApproval{
			ID:             uuid.New().String(),
			RequestID:      requestID,
			ApproverID:     actorID,
			SequenceNumber: seq,
			Decision:       decision,
			Comments:       comments,
			ActionAt:       now,
		}
		if err := tx.Create(approval).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyActed
			}
			return fmt.Errorf("记录审批决策失败: %w", err)
		}

		// 通知需要的人名
		actor, err := s.repos.User.FindByID(ctx, actorID)
		if err != nil {
			return fmt.Errorf("查找审批人失败: %w", err)
		}
		initiator, err := s.repos.User.FindByID(ctx, req.InitiatorID)
		if err != nil {
			return fmt.Errorf("查找发起人失败: %w", err)
		}

		if decision == entity.DecisionRejected {
			// 6. 驳回：立即终态，通知发起人和上一级审批人
			if err := tx.Model(&entity.Request{}).
				Where("id = ?", requestID).
				Updates(map[string]interface{}{
					"status":     entity.RequestStatusRejected,
					"updated_at": now,
				}).Error; err != nil {
				return fmt.Errorf("更新请求状态失败: %w", err)
			}

			intents = append(intents, s.notifier.InitiatorRejected(initiator, req, actor.Name, comments))

			if seq > 1 {
				if prev, err := s.repos.Chain.EntryAt(ctx, req.RequestTypeID, seq-1); err == nil && prev.Approver != nil {
					intents = append(intents, s.notifier.UpstreamRejected(prev.Approver, req, actor.Name, comments))
				}
			}
			return nil
		}

		// 7. 批准：只有末位序号批准才算链走完
		maxSeq, err := s.repos.Chain.MaxSequence(ctx, req.RequestTypeID)
		if err != nil {
			return fmt.Errorf("查询审批链长度失败: %w", err)
		}

		final := seq == maxSeq
		if final {
			if err := tx.Model(&entity.Request{}).
				Where("id = ?", requestID).
				Updates(map[string]interface{}{
					"status":     entity.RequestStatusApproved,
					"updated_at": now,
				}).Error; err != nil {
				return fmt.Errorf("更新请求状态失败: %w", err)
			}
		}

		// 下一位审批人（链被替换过时位置可能已不存在，静默跳过）
		if next, err := s.repos.Chain.EntryAt(ctx, req.RequestTypeID, seq+1); err == nil && next.Approver != nil {
			rt, err := s.repos.Chain.FindTypeByID(ctx, req.RequestTypeID)
			if err != nil {
				return fmt.Errorf("查找请求类型失败: %w", err)
			}
			intents = append(intents, s.notifier.ApproverAssigned(next.Approver, req, rt.Name, initiator.Name))
		}

		// 发起人每一步都收到进度通知
		intents = append(intents, s.notifier.InitiatorApproved(initiator, req, actor.Name, comments, final))
		return nil
	})
	if err != nil {
		return err
	}

	// 8. 提交成功后派发
	s.notifier.Dispatch(intents)
	return nil
}

// RequestView 请求的只读视图（列表与详情共用）
type RequestView struct {
	RequestID   string              `json:"request_id"`
	Type        string              `json:"type"`
	Status      string              `json:"status"`
	SubmittedAt time.Time           `json:"submitted_at"`
	Initiator   string              `json:"initiator,omitempty"`
	Payload     *entity.PassPayload `json:"payload"`
}

func viewOf(r *entity.Request) RequestView {
	v := RequestView{
		RequestID:   r.ID,
		Status:      r.Status,
		SubmittedAt: r.SubmittedAt,
		Payload:     entity.PayloadOf(r),
	}
	if r.RequestType != nil {
		v.Type = r.RequestType.Name
	}
	if r.Initiator != nil {
		v.Initiator = r.Initiator.Name
	}
	return v
}

// ListMine 我发起的请求（新的在前）
func (s *RequestService) ListMine(ctx context.Context, userID string) ([]RequestView, error) {
	requests, err := s.repos.Request.ListByInitiator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询我的请求失败: %w", err)
	}
	views := make([]RequestView, 0, len(requests))
	for i := range requests {
		views = append(views, viewOf(&requests[i]))
	}
	return views, nil
}

// ListPendingApprovals 等待我决策的请求
func (s *RequestService) ListPendingApprovals(ctx context.Context, userID string) ([]RequestView, error) {
	requests, err := s.repos.Request.ListPendingForApprover(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询待审批请求失败: %w", err)
	}
	views := make([]RequestView, 0, len(requests))
	for i := range requests {
		views = append(views, viewOf(&requests[i]))
	}
	return views, nil
}

// RequestDetail 请求详情
type RequestDetail struct {
	RequestView
	Approvals []entity.RequestApproval `json:"approvals"`
}

// Get 获取请求详情
func (s *RequestService) Get(ctx context.Context, id string) (*RequestDetail, error) {
	req, err := s.repos.Request.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("查询请求详情失败: %w", err)
	}
	return &RequestDetail{
		RequestView: viewOf(req),
		Approvals:   req.Approvals,
	}, nil
}

// ListApprovals 获取请求的决策记录
func (s *RequestService) ListApprovals(ctx context.Context, requestID string) ([]entity.RequestApproval, error) {
	if _, err := s.repos.Request.FindByID(ctx, requestID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return s.repos.Request.ListApprovals(ctx, requestID)
}

// CountMine 我发起的请求的状态统计
func (s *RequestService) CountMine(ctx context.Context, userID string) (*repository.RequestCounts, error) {
	return s.repos.Request.CountByInitiator(ctx, userID)
}
