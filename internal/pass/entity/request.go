package entity

import (
	"time"
)

// 请求状态常量
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// 审批决策常量
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// RequestType 请求类型（outward / inward），每个类型拥有一条审批链
type RequestType struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:100;not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`

	// 关联
	Chain []ApprovalChainEntry `json:"chain,omitempty" gorm:"foreignKey:RequestTypeID"`
}

func (RequestType) TableName() string {
	return "request_types"
}

// ApprovalChainEntry 审批链条目
// 同一请求类型下 sequence_number 从 1 起连续且唯一，整条链只能整体替换
type ApprovalChainEntry struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	RequestTypeID  string    `json:"request_type_id" gorm:"size:36;not null;uniqueIndex:uk_chain_type_seq"`
	ApproverID     string    `json:"approver_id" gorm:"size:36;not null"`
	SequenceNumber int       `json:"sequence_number" gorm:"not null;uniqueIndex:uk_chain_type_seq"`
	CreatedAt      time.Time `json:"created_at"`

	// 关联
	Approver *User `json:"approver,omitempty" gorm:"foreignKey:ApproverID"`
}

func (ApprovalChainEntry) TableName() string {
	return "approval_chains"
}

// RequestInitiator 请求发起权限（哪些用户可以发起哪种类型的请求）
type RequestInitiator struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	UserID        string    `json:"user_id" gorm:"size:36;not null;uniqueIndex:uk_initiator_user_type"`
	RequestTypeID string    `json:"request_type_id" gorm:"size:36;not null;uniqueIndex:uk_initiator_user_type"`
	CreatedAt     time.Time `json:"created_at"`

	// 关联
	User        *User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	RequestType *RequestType `json:"request_type,omitempty" gorm:"foreignKey:RequestTypeID"`
}

func (RequestInitiator) TableName() string {
	return "request_initiators"
}

// Request 一次放行申请的工作流实例
// 状态只由审批决策驱动：pending → approved（末位审批人通过）/ rejected（任一审批人驳回）
type Request struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	RequestTypeID string    `json:"request_type_id" gorm:"size:36;not null;index"`
	InitiatorID   string    `json:"initiator_id" gorm:"size:36;not null;index"`
	Status        string    `json:"status" gorm:"size:16;not null;default:pending"`
	SubmittedAt   time.Time `json:"submitted_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// 关联
	RequestType *RequestType      `json:"request_type,omitempty" gorm:"foreignKey:RequestTypeID"`
	Initiator   *User             `json:"initiator,omitempty" gorm:"foreignKey:InitiatorID"`
	Approvals   []RequestApproval `json:"approvals,omitempty" gorm:"foreignKey:RequestID"`
	Outward     *OutwardPass      `json:"outward,omitempty" gorm:"foreignKey:RequestID"`
	Inward      *InwardPass       `json:"inward,omitempty" gorm:"foreignKey:RequestID"`
}

func (Request) TableName() string {
	return "requests"
}

// RequestApproval 审批决策记录（只追加，不更新不删除）
// (request_id, sequence_number) 唯一约束是并发重复决策的最终防线
type RequestApproval struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	RequestID      string    `json:"request_id" gorm:"size:36;not null;uniqueIndex:uk_approval_request_seq"`
	ApproverID     string    `json:"approver_id" gorm:"size:36;not null"`
	SequenceNumber int       `json:"sequence_number" gorm:"not null;uniqueIndex:uk_approval_request_seq"`
	Decision       string    `json:"decision" gorm:"size:16;not null"`
	Comments       string    `json:"comments" gorm:"type:text"`
	ActionAt       time.Time `json:"action_at"`

	// 关联
	Approver *User `json:"approver,omitempty" gorm:"foreignKey:ApproverID"`
}

func (RequestApproval) TableName() string {
	return "request_approvals"
}
