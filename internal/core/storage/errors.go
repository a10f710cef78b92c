package storage

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// 存储错误定义
var (
	// ErrNotFound 键不存在
	ErrNotFound = fmt.Errorf("storage: key not found: %w", types.ErrNotFound)

	// ErrEmptyKey 空键
	ErrEmptyKey = errors.New("storage: empty key")

	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("storage: engine closed")

	// ErrConflict 事务冲突
	ErrConflict = errors.New("storage: transaction conflict")
)

// IsNotFound 检查是否为键不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
