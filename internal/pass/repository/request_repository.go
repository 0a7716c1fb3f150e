package repository

import (
	"context"
	"errors"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestRepository 请求仓库
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository 创建请求仓库
func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// FindByID 获取请求详情（含类型、发起人、载荷、审批记录）
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entity.Request, error) {
	var req entity.Request
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("RequestType").
		Preload("Initiator").
		Preload("Outward").
		Preload("Inward").
		Preload("Approvals", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_number ASC")
		}).
		Preload("Approvals.Approver").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// LockByID 在事务内对请求行加 FOR UPDATE 锁
// Decide 的串行化入口：并发决策同一请求时在此排队
func (r *RequestRepository) LockByID(tx *gorm.DB, id string) (*entity.Request, error) {
	var req entity.Request
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ApprovalAt 查某请求指定序号的决策记录，不存在返回 ErrNotFound
func (r *RequestRepository) ApprovalAt(tx *gorm.DB, requestID string, seq int) (*entity.RequestApproval, error) {
	var approval entity.RequestApproval
	err := tx.Where("request_id = ? AND sequence_number = ?", requestID, seq).
		First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &approval, nil
}

// ListApprovals 获取某请求的全部决策记录（按序号升序）
func (r *RequestRepository) ListApprovals(ctx context.Context, requestID string) ([]entity.RequestApproval, error) {
	var approvals []entity.RequestApproval
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Preload("Approver").
		Order("sequence_number ASC").
		Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

// ListByInitiator 获取用户发起的全部请求（新的在前，含载荷）
func (r *RequestRepository) ListByInitiator(ctx context.Context, userID string) ([]entity.Request, error) {
	var requests []entity.Request
	err := r.db.WithContext(ctx).
		Where("initiator_id = ?", userID).
		Preload("RequestType").
		Preload("Outward").
		Preload("Inward").
		Order("submitted_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// ListPendingForApprover 获取等待某用户决策的请求
// 命中条件：用户在请求类型的链上占位、请求仍为 pending、该序号尚无决策记录，
// 与 Decide 当下会接受的集合完全一致
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, userID string) ([]entity.Request, error) {
	var requests []entity.Request
	err := r.db.WithContext(ctx).
		Joins("JOIN approval_chains ac ON ac.request_type_id = requests.request_type_id").
		Where("ac.approver_id = ?", userID).
		Where("requests.status = ?", entity.RequestStatusPending).
		Where("NOT EXISTS (SELECT 1 FROM request_approvals ra WHERE ra.request_id = requests.id AND ra.sequence_number = ac.sequence_number)").
		Preload("RequestType").
		Preload("Initiator").
		Preload("Outward").
		Preload("Inward").
		Order("requests.submitted_at DESC").
		Distinct().
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// RequestCounts 请求数量统计
type RequestCounts struct {
	Total    int64 `json:"total"`
	Approved int64 `json:"approved"`
	Pending  int64 `json:"pending"`
	Rejected int64 `json:"rejected"`
}

// CountByInitiator 按状态统计用户发起的请求数
func (r *RequestRepository) CountByInitiator(ctx context.Context, userID string) (*RequestCounts, error) {
	var counts RequestCounts
	err := r.db.WithContext(ctx).Model(&entity.Request{}).
		Where("initiator_id = ?", userID).
		Select(
			"COUNT(*) AS total, " +
				"COUNT(*) FILTER (WHERE status = 'approved') AS approved, " +
				"COUNT(*) FILTER (WHERE status = 'pending') AS pending, " +
				"COUNT(*) FILTER (WHERE status = 'rejected') AS rejected",
		).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return &counts, nil
}
