package toolkit

import "errors"

// 工具包错误定义
var (
	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("toolkit: channel closed")

	// ErrNotConnected 通道未连接
	ErrNotConnected = errors.New("toolkit: channel not connected")

	// ErrAlreadyConnected 通道已连接到其他集群
	ErrAlreadyConnected = errors.New("toolkit: channel already connected")

	// ErrInvalidCluster 集群名为空
	ErrInvalidCluster = errors.New("toolkit: invalid cluster name")

	// ErrStateTransferUnsupported 协议栈不包含状态传输层
	ErrStateTransferUnsupported = errors.New("toolkit: stack has no state transfer protocol")

	// ErrNoRelay 协议栈不包含中继层，无法发送跨站点消息
	ErrNoRelay = errors.New("toolkit: stack has no relay protocol")

	// ErrUnknownSite 目标站点未配置
	ErrUnknownSite = errors.New("toolkit: unknown remote site")

	// ErrParentNotConnected 分叉通道的父通道不存在或未连接
	ErrParentNotConnected = errors.New("toolkit: parent channel not connected")

	// ErrForkExists 分叉通道重名
	ErrForkExists = errors.New("toolkit: fork already exists")

	// ErrForeignChannel 通道不是由本工具包创建
	ErrForeignChannel = errors.New("toolkit: channel not created by this toolkit")
)
