package types

import "strings"

// ServiceName 服务单元名称
//
// 采用点分形式，例如 "jgroups.stack.udp"、"socket-binding.jgroups-udp"。
type ServiceName string

// String 返回名称字符串
func (n ServiceName) String() string {
	return string(n)
}

// Append 追加名称段
func (n ServiceName) Append(parts ...string) ServiceName {
	return ServiceName(strings.Join(append([]string{string(n)}, parts...), "."))
}

// 服务名称前缀
const (
	stackPrefix            ServiceName = "jgroups.stack"
	channelPrefix          ServiceName = "jgroups.channel"
	connectedChannelPrefix ServiceName = "jgroups.channel.connected"
	forkPrefix             ServiceName = "jgroups.fork"
	socketBindingPrefix    ServiceName = "socket-binding"
	executorPrefix         ServiceName = "executor"
	threadFactoryPrefix    ServiceName = "thread-factory"
	timerPrefix            ServiceName = "timer-executor"
)

// StackServiceName 协议栈（通道工厂）服务名
func StackServiceName(stack string) ServiceName { return stackPrefix.Append(stack) }

// ChannelServiceName 通道服务名
func ChannelServiceName(channel string) ServiceName { return channelPrefix.Append(channel) }

// ConnectedChannelServiceName 已连接通道服务名
func ConnectedChannelServiceName(channel string) ServiceName {
	return connectedChannelPrefix.Append(channel)
}

// ForkServiceName 分叉通道服务名
func ForkServiceName(channel, fork string) ServiceName { return forkPrefix.Append(channel, fork) }

// SocketBindingServiceName 套接字绑定服务名
func SocketBindingServiceName(name string) ServiceName { return socketBindingPrefix.Append(name) }

// ExecutorServiceName 执行器服务名
func ExecutorServiceName(name string) ServiceName { return executorPrefix.Append(name) }

// ThreadFactoryServiceName 线程工厂服务名
func ThreadFactoryServiceName(name string) ServiceName { return threadFactoryPrefix.Append(name) }

// TimerServiceName 定时执行器服务名
func TimerServiceName(name string) ServiceName { return timerPrefix.Append(name) }
