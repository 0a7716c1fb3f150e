package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository 用户仓库
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID 根据ID查找用户
func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail 根据邮箱查找用户
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpsertByEmail 按邮箱 upsert 用户（SSO 登录同步入口）
// 已存在则刷新姓名和登录时间，不存在则创建，本系统从不删除用户
func (r *UserRepository) UpsertByEmail(ctx context.Context, name, email, azureOID string) (*entity.User, error) {
	now := time.Now()

	user, err := r.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if user == nil {
		user = &entity.User{
			ID:          uuid.New().String(),
			Name:        name,
			Email:       email,
			AzureOID:    azureOID,
			LastLoginAt: &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, err
		}
		return user, nil
	}

	user.Name = name
	user.AzureOID = azureOID
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// ListAll 获取全部用户（审批链配置界面的选人列表）
func (r *UserRepository) ListAll(ctx context.Context) ([]entity.User, error) {
	var users []entity.User
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// IsAdmin 判断用户是否为管理员
func (r *UserRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Admin{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GrantAdmin 授予管理员权限（已是管理员则不重复插入）
func (r *UserRepository) GrantAdmin(ctx context.Context, userID string) error {
	isAdmin, err := r.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if isAdmin {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entity.Admin{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now(),
	}).Error
}
