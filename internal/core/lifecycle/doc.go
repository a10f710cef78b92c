// Package lifecycle 管理通道服务单元的生命周期
//
// 三种服务单元:
//
//   - ChannelService: 从协议栈工厂创建通道并连接到集群（或只打开不连接）
//   - ConnectedChannelService: 把已打开的通道以另一个集群名连接
//   - ForkChannelService: 在已连接的父通道之上创建分叉通道
//
// 通道的打开/连接与关闭在专用 Worker goroutine 上执行，调用方只等待到
// 超时为止；结果通过事件总线以 EvtChannelStarted / EvtChannelStopped /
// EvtChannelFailed 上报。启动尚未完成时收到的停止请求会被记录，
// 通道对象一旦创建就立即关闭。
package lifecycle
