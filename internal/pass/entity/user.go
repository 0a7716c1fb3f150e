package entity

import (
	"time"
)

// User 用户实体
// 由企业 SSO 登录时按邮箱 upsert，本系统不删除用户
type User struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	Name        string     `json:"name" gorm:"size:100;not null"`
	Email       string     `json:"email" gorm:"size:128;not null;uniqueIndex"`
	AzureOID    string     `json:"azure_oid" gorm:"size:64;index"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Admin 管理员（与用户一对一，存在即有审批链配置权限）
type Admin struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"user_id" gorm:"size:36;not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`

	// 关联
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Admin) TableName() string {
	return "admins"
}
