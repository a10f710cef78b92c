package lifecycle

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

var (
	// ErrConnectFailed 通道连接集群失败
	ErrConnectFailed = errors.New("lifecycle: connect failed")

	// ErrWorkerClosed Worker 已关闭
	ErrWorkerClosed = errors.New("lifecycle: worker closed")

	// ErrNoFactory 协议栈工厂不可用
	ErrNoFactory = errors.New("lifecycle: channel factory unavailable")

	// ErrNoChannel 被包装的通道不可用
	ErrNoChannel = errors.New("lifecycle: channel unavailable")

	// ErrChannelNotInstalled 通道未安装
	ErrChannelNotInstalled = fmt.Errorf("lifecycle: channel not installed: %w", types.ErrNotFound)

	// ErrDuplicateChannel 通道已安装
	ErrDuplicateChannel = errors.New("lifecycle: channel already installed")

	// ErrNoStack 通道没有指定协议栈且没有默认协议栈
	ErrNoStack = fmt.Errorf("lifecycle: no stack for channel: %w", types.ErrValidation)
)
