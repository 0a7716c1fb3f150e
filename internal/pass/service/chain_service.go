package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/pass/repository"
	"gorm.io/gorm"
)

// ChainService 审批链配置服务
// 链和发起权限都只能整体替换，部分编辑不提供
type ChainService struct {
	db    *gorm.DB
	repos *repository.Repositories
}

// NewChainService 创建审批链配置服务
func NewChainService(db *gorm.DB, repos *repository.Repositories) *ChainService {
	return &ChainService{db: db, repos: repos}
}

// requireAdmin 管理员校验，以数据库为准而非 JWT 声明
func (s *ChainService) requireAdmin(ctx context.Context, userID string) error {
	isAdmin, err := s.repos.User.IsAdmin(ctx, userID)
	if err != nil {
		return fmt.Errorf("查询管理员身份失败: %w", err)
	}
	if !isAdmin {
		return ErrNotAdmin
	}
	return nil
}

// SetChain 整体替换某类型的审批链（仅管理员）
// 顺序即审批顺序，序号按数组下标+1 重新分配；同一用户出现多次是允许的。
// 替换对进行中的请求立即生效，不迁移历史决策记录
func (s *ChainService) SetChain(ctx context.Context, actorID, requestTypeID string, approverIDs []string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if len(approverIDs) == 0 {
		return fmt.Errorf("%w: 审批链不能为空", ErrValidation)
	}

	if _, err := s.repos.Chain.FindTypeByID(ctx, requestTypeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTypeNotFound
		}
		return fmt.Errorf("查找请求类型失败: %w", err)
	}

	// 审批人必须都是已注册用户
	for _, id := range approverIDs {
		if _, err := s.repos.User.FindByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUserNotFound, id)
			}
			return fmt.Errorf("查找用户失败: %w", err)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repos.Chain.Replace(tx, requestTypeID, approverIDs); err != nil {
			return fmt.Errorf("替换审批链失败: %w", err)
		}
		return nil
	})
}

// GetChain 获取某类型的审批链（按序号升序）
func (s *ChainService) GetChain(ctx context.Context, requestTypeID string) ([]entity.ApprovalChainEntry, error) {
	if _, err := s.repos.Chain.FindTypeByID(ctx, requestTypeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTypeNotFound
		}
		return nil, err
	}
	return s.repos.Chain.ListByType(ctx, requestTypeID)
}

// ListRequestTypes 获取全部请求类型
func (s *ChainService) ListRequestTypes(ctx context.Context) ([]entity.RequestType, error) {
	return s.repos.Chain.ListTypes(ctx)
}

// SetInitiators 整体替换某类型的发起权限名单（仅管理员）
// 允许清空名单
func (s *ChainService) SetInitiators(ctx context.Context, actorID, requestTypeID string, userIDs []string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	if _, err := s.repos.Chain.FindTypeByID(ctx, requestTypeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTypeNotFound
		}
		return fmt.Errorf("查找请求类型失败: %w", err)
	}

	for _, id := range userIDs {
		if _, err := s.repos.User.FindByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUserNotFound, id)
			}
			return fmt.Errorf("查找用户失败: %w", err)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repos.Chain.ReplaceInitiators(tx, requestTypeID, userIDs); err != nil {
			return fmt.Errorf("替换发起权限失败: %w", err)
		}
		return nil
	})
}

// ListMyRequestTypes 获取用户持有发起权限的请求类型
func (s *ChainService) ListMyRequestTypes(ctx context.Context, userID string) ([]entity.RequestType, error) {
	return s.repos.Chain.ListTypesForInitiator(ctx, userID)
}

// ListUsers 获取全部用户（配置界面选人用）
func (s *ChainService) ListUsers(ctx context.Context) ([]entity.User, error) {
	return s.repos.User.ListAll(ctx)
}
