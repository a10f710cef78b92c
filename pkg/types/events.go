package types

import "time"

// ============================================================================
//                              通道生命周期事件
// ============================================================================
//
// 通道的打开/连接与关闭在生命周期 worker 上异步执行，
// 完成情况通过事件总线上报。

// EvtChannelStarted 通道已创建并连接
type EvtChannelStarted struct {
	Service   ServiceName
	Channel   string
	Cluster   string
	Address   string
	Timestamp time.Time
}

// EvtChannelStopped 通道已断开并关闭
type EvtChannelStopped struct {
	Service   ServiceName
	Channel   string
	Cluster   string
	Err       error
	Timestamp time.Time
}

// EvtChannelFailed 通道启动失败
type EvtChannelFailed struct {
	Service   ServiceName
	Channel   string
	Cluster   string
	Err       error
	Timestamp time.Time
}

// EvtStackChanged 协议栈模型产生新版本
type EvtStackChanged struct {
	Stack   string
	Version uint64
	Removed bool
}
