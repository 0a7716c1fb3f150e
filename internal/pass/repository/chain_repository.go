package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChainRepository 审批链仓库
type ChainRepository struct {
	db *gorm.DB
}

// NewChainRepository 创建审批链仓库
func NewChainRepository(db *gorm.DB) *ChainRepository {
	return &ChainRepository{db: db}
}

// FindTypeByID 根据ID查找请求类型
func (r *ChainRepository) FindTypeByID(ctx context.Context, id string) (*entity.RequestType, error) {
	var rt entity.RequestType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

// FindTypeByName 根据名称查找请求类型（请求创建的连接键）
func (r *ChainRepository) FindTypeByName(ctx context.Context, name string) (*entity.RequestType, error) {
	var rt entity.RequestType
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&rt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

// ListTypes 获取全部请求类型
func (r *ChainRepository) ListTypes(ctx context.Context) ([]entity.RequestType, error) {
	var types []entity.RequestType
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

// EnsureType 按名称确保请求类型存在（启动时播种 outward / inward）
func (r *ChainRepository) EnsureType(ctx context.Context, name string) (*entity.RequestType, error) {
	rt, err := r.FindTypeByName(ctx, name)
	if err == nil {
		return rt, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rt = &entity.RequestType{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(rt).Error; err != nil {
		return nil, err
	}
	return rt, nil
}

// ListByType 获取某类型的审批链（按序号升序）
func (r *ChainRepository) ListByType(ctx context.Context, requestTypeID string) ([]entity.ApprovalChainEntry, error) {
	var entries []entity.ApprovalChainEntry
	err := r.db.WithContext(ctx).
		Where("request_type_id = ?", requestTypeID).
		Preload("Approver").
		Order("sequence_number ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// EntryAt 获取某类型链上指定序号的条目，空位返回 ErrNotFound
func (r *ChainRepository) EntryAt(ctx context.Context, requestTypeID string, seq int) (*entity.ApprovalChainEntry, error) {
	var entry entity.ApprovalChainEntry
	err := r.db.WithContext(ctx).
		Where("request_type_id = ? AND sequence_number = ?", requestTypeID, seq).
		Preload("Approver").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// PositionsOf 查用户在某类型链上占据的全部序号（允许同人多位置）
func (r *ChainRepository) PositionsOf(ctx context.Context, requestTypeID, userID string) ([]int, error) {
	var seqs []int
	err := r.db.WithContext(ctx).Model(&entity.ApprovalChainEntry{}).
		Where("request_type_id = ? AND approver_id = ?", requestTypeID, userID).
		Order("sequence_number ASC").
		Pluck("sequence_number", &seqs).Error
	if err != nil {
		return nil, err
	}
	return seqs, nil
}

// MaxSequence 某类型链的最大序号，链为空返回 0
func (r *ChainRepository) MaxSequence(ctx context.Context, requestTypeID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&entity.ApprovalChainEntry{}).
		Where("request_type_id = ?", requestTypeID).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

// Replace 整体替换某类型的审批链：全删后按数组下标+1重插
// 必须在调用方事务内执行，保证替换原子性
func (r *ChainRepository) Replace(tx *gorm.DB, requestTypeID string, approverIDs []string) error {
	if err := tx.Where("request_type_id = ?", requestTypeID).
		Delete(&entity.ApprovalChainEntry{}).Error; err != nil {
		return err
	}

	now := time.Now()
	entries := make([]entity.ApprovalChainEntry, 0, len(approverIDs))
	for i, approverID := range approverIDs {
		entries = append(entries, entity.ApprovalChainEntry{
			ID:             uuid.New().String(),
			RequestTypeID:  requestTypeID,
			ApproverID:     approverID,
			SequenceNumber: i + 1,
			CreatedAt:      now,
		})
	}
	return tx.Create(&entries).Error
}

// ReplaceInitiators 整体替换某类型的发起权限名单
func (r *ChainRepository) ReplaceInitiators(tx *gorm.DB, requestTypeID string, userIDs []string) error {
	if err := tx.Where("request_type_id = ?", requestTypeID).
		Delete(&entity.RequestInitiator{}).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	now := time.Now()
	grants := make([]entity.RequestInitiator, 0, len(userIDs))
	for _, userID := range userIDs {
		grants = append(grants, entity.RequestInitiator{
			ID:            uuid.New().String(),
			UserID:        userID,
			RequestTypeID: requestTypeID,
			CreatedAt:     now,
		})
	}
	return tx.Create(&grants).Error
}

// ListTypesForInitiator 获取用户持有发起权限的请求类型
func (r *ChainRepository) ListTypesForInitiator(ctx context.Context, userID string) ([]entity.RequestType, error) {
	var types []entity.RequestType
	err := r.db.WithContext(ctx).
		Joins("JOIN request_initiators ri ON ri.request_type_id = request_types.id").
		Where("ri.user_id = ?", userID).
		Order("request_types.name ASC").
		Find(&types).Error
	if err != nil {
		return nil, err
	}
	return types, nil
}
