package service

import (
	"errors"
)

// 领域错误
// 处理器按 errors.Is 映射到响应码，未命中的一律折叠为内部错误
var (
	// ErrValidation 载荷缺字段、枚举值非法、数量非正等
	ErrValidation = errors.New("invalid payload")
	// ErrTypeNotFound 请求类型不存在
	ErrTypeNotFound = errors.New("request type not found")
	// ErrRequestNotFound 请求不存在
	ErrRequestNotFound = errors.New("request not found")
	// ErrNotApprover 调用者不在该类型的审批链上
	ErrNotApprover = errors.New("not an approver of this request type")
	// ErrAlreadyProcessed 请求已离开 pending，终态不可再决策
	ErrAlreadyProcessed = errors.New("request already processed")
	// ErrAlreadyActed 该序号已有决策记录，拒绝重复提交
	ErrAlreadyActed = errors.New("approver already acted on this request")
	// ErrNotAdmin 需要管理员权限
	ErrNotAdmin = errors.New("admin privilege required")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
)
