// Package service 实现按依赖图组织的服务单元容器
//
// 每个服务单元有名称、启动模式、依赖边和产出值。依赖边分三种:
//
//   - required: 单元启动前依赖必须先启动，值注入到 Injected 槽位
//   - optional: 依赖已安装时一并启动并注入，未安装时槽位为空
//   - lazy: 只在安装时检查存在性，第一次通过 LazyValue 取值时才启动依赖
//
// 单元按需启动并做引用计数：第一次 Acquire 启动单元，最后一个 Handle
// Release 时停止单元。同一单元的计数增减与启停在单元锁内串行执行。
//
// 使用示例:
//
//	var binding service.Injected[pkgif.SocketBinding]
//	b := c.AddService(types.StackServiceName("udp"), svc)
//	service.Require(b, types.SocketBindingServiceName("jgroups-udp"), &binding)
//	if err := b.Install(); err != nil { ... }
//
//	h, err := c.Acquire(ctx, types.StackServiceName("udp"))
//	defer h.Release()
package service
