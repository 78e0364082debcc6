package service

import (
	"errors"
	"strings"
)

// ErrTransient 可重试的瞬时故障（调用方应自动重试）
var ErrTransient = errors.New("transient failure")

// InputError 客户端输入错误：缺失或格式错误的字段，未访问存储即拒绝
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func missingField(field string) *InputError {
	return &InputError{Field: field, Message: field + " is required"}
}

func invalidField(field, detail string) *InputError {
	return &InputError{Field: field, Message: "invalid " + field + ": " + detail}
}

// ValidationError 任务准入规则校验失败，包含全部违规项
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// TransientError 模拟的边缘网关故障，未写入任何事件
type TransientError struct {
	Message string
}

func (e *TransientError) Error() string {
	return e.Message
}

// Is 使 errors.Is(err, ErrTransient) 成立
func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}
