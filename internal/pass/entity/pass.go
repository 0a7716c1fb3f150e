package entity

import (
	"time"
)

// 放行单种类常量
const (
	PassKindOutward = "outward"
	PassKindInward  = "inward"
)

// 出库用途
const (
	PurposeRefilling   = "Refilling"
	PurposeSample      = "Sample"
	PurposeReturned    = "Returned"
	PurposeSold        = "Sold"
	PurposeTransferred = "Transferred"
	PurposeRejected    = "Rejected"
	PurposeRepair      = "Repair"
)

// 优先级
const (
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
)

// ValidPurposes 出库用途枚举
var ValidPurposes = map[string]bool{
	PurposeRefilling:   true,
	PurposeSample:      true,
	PurposeReturned:    true,
	PurposeSold:        true,
	PurposeTransferred: true,
	PurposeRejected:    true,
	PurposeRepair:      true,
}

// ValidPriorities 优先级枚举
var ValidPriorities = map[string]bool{
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// OutwardPass 出库放行单，与 Request 一对一、同事务创建
type OutwardPass struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	RequestID      string    `json:"request_id" gorm:"size:36;not null;uniqueIndex"`
	RecipientName  string    `json:"recipient_name" gorm:"size:150;not null"`
	Date           time.Time `json:"date"`
	Purpose        string    `json:"purpose" gorm:"size:32;not null"`
	SerialNo       int       `json:"serial_no"`
	AccountCode    string    `json:"account_code" gorm:"size:100"`
	Description    string    `json:"description" gorm:"type:text"`
	Unit           string    `json:"unit" gorm:"size:50"`
	Quantity       int       `json:"quantity" gorm:"not null"`
	Department     string    `json:"department" gorm:"size:100"`
	Priority       string    `json:"priority" gorm:"size:16;not null;default:Medium"`
	Comment        string    `json:"comment" gorm:"type:text"`
	AttachmentPath string    `json:"attachment_path" gorm:"size:255"`
	ToBeReturned   bool      `json:"to_be_returned" gorm:"not null;default:false"`
}

func (OutwardPass) TableName() string {
	return "outward_pass_records"
}

// InwardPass 入库放行单，可关联此前的出库单（归还场景）
type InwardPass struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	RequestID      string    `json:"request_id" gorm:"size:36;not null;uniqueIndex"`
	OutwardPassID  *string   `json:"outward_pass_id" gorm:"size:36"`
	Date           time.Time `json:"date"`
	ReceivedBy     string    `json:"received_by" gorm:"size:100;not null"`
	SerialNo       int       `json:"serial_no"`
	AccountCode    string    `json:"account_code" gorm:"size:100"`
	Description    string    `json:"description" gorm:"type:text"`
	Unit           string    `json:"unit" gorm:"size:50"`
	Quantity       int       `json:"quantity" gorm:"not null"`
	Department     string    `json:"department" gorm:"size:100"`
	Priority       string    `json:"priority" gorm:"size:16;not null;default:Medium"`
	Comment        string    `json:"comment" gorm:"type:text"`
	AttachmentPath string    `json:"attachment_path" gorm:"size:255"`
	Returned       bool      `json:"returned" gorm:"not null;default:false"`
}

func (InwardPass) TableName() string {
	return "inward_pass_records"
}

// PassPayload 放行单载荷的带标签联合
// 创建时根据请求类型解析一次，之后显式携带，不再靠字符串比较分流
type PassPayload struct {
	Kind    string       `json:"kind"`
	Outward *OutwardPass `json:"outward,omitempty"`
	Inward  *InwardPass  `json:"inward,omitempty"`
}

// PayloadOf 提取请求已加载的放行单载荷，两者都未加载时返回 nil
func PayloadOf(r *Request) *PassPayload {
	switch {
	case r.Outward != nil:
		return &PassPayload{Kind: PassKindOutward, Outward: r.Outward}
	case r.Inward != nil:
		return &PassPayload{Kind: PassKindInward, Inward: r.Inward}
	default:
		return nil
	}
}
