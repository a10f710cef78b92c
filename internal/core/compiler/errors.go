package compiler

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

var (
	// ErrValidation 编译校验失败
	ErrValidation = types.ErrValidation

	// ErrUnresolvedExpression 表达式无法解析且没有默认值
	ErrUnresolvedExpression = errors.New("compiler: unresolved expression")
)

// ValidationError 编译错误
//
// 同时匹配 ErrValidation 与底层原因（如 catalog.ErrConverterUnsupported）。
type ValidationError struct {
	// Stack 协议栈名
	Stack string

	// Field 出错的字段路径，如 "protocols[1].properties.timeout"
	Field string

	Reason string

	// Err 底层原因，可为 nil
	Err error
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("stack %q: %s: %s", e.Stack, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回 ErrValidation 与底层原因
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}
