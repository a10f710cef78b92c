// Package installer 把编译后的协议栈配置安装为服务容器中的单元
//
// 每个协议栈对应一个 jgroups.stack.<name> 单元，产出值是 ChannelFactory。
// 依赖边:
//
//	required  传输层与协议层的套接字绑定、定时执行器、线程工厂
//	optional  诊断套接字绑定、默认执行器、OOB 执行器
//	lazy      中继层每个远端站点的对端协议栈，第一次跨站点发送时才启动
//
// 属性中延迟的 ${...} 表达式在单元启动时解析。
package installer
