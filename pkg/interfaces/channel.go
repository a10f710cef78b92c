package interfaces

import (
	"context"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// Receiver 消息接收回调
type Receiver func(msg *types.Message)

// Channel 组通信通道
//
// 通道由 ChannelFactory 创建，Connect 后加入集群，Close 后不可再用。
type Channel interface {
	// Name 通道名
	Name() string

	// ClusterName 当前连接的集群名，未连接时为空
	ClusterName() string

	// Address 本地成员地址
	Address() types.Address

	// View 当前组视图，未连接时为 nil
	View() *types.View

	// Connect 连接到集群
	Connect(cluster string) error

	// ConnectWithState 连接到集群并从协调者获取初始状态
	ConnectWithState(ctx context.Context, cluster string) error

	// Disconnect 断开连接，通道仍可再次 Connect
	Disconnect() error

	// Close 关闭通道并释放资源
	Close() error

	IsOpen() bool
	IsConnected() bool

	// Send 发送消息
	Send(msg *types.Message) error

	// SetReceiver 设置接收回调
	SetReceiver(r Receiver)

	// ProtocolStack 返回协议链，通道关闭后返回 nil
	ProtocolStack() ProtocolStack
}

// ProtocolStack 协议链
type ProtocolStack interface {
	// Protocols 按线序（自下而上）返回协议层实例
	Protocols() []Protocol

	// FindProtocol 按名称查找协议层，未找到返回 nil
	FindProtocol(name string) Protocol

	// Transport 返回最底层的传输层
	Transport() Protocol

	// Top 返回最顶层协议
	Top() Protocol
}

// Protocol 协议层实例
type Protocol interface {
	// Name 协议层类型名，如 "pbcast.GMS"
	Name() string
}

// ChannelFactory 通道工厂
//
// 由协议栈服务单元产出，每次 CreateChannel 都创建一条新的协议链。
type ChannelFactory interface {
	CreateChannel(name string) (Channel, error)

	// Configuration 返回工厂使用的协议栈配置
	Configuration() *types.StackConfiguration
}
