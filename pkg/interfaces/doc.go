// Package interfaces 定义 groupstack 的公共接口
//
// 组通信工具包本身是外部协作者，这里只定义编译、装配和自省所需的接口面：
//   - channel.go   - Channel、ProtocolStack、Protocol、ChannelFactory
//   - resource.go  - 命名外部资源（套接字绑定、执行器、线程工厂、定时执行器）
//   - eventbus.go  - 事件总线
package interfaces
