// Package resource 提供协议栈按名称引用的外部资源
//
// 套接字绑定、执行器、线程工厂与定时执行器都以按需服务单元的形式安装到
// 服务容器中，协议栈单元通过依赖边取得它们:
//
//	socket-binding.<name>   pkgif.SocketBinding
//	executor.<name>         pkgif.Executor
//	thread-factory.<name>   pkgif.ThreadFactory
//	timer-executor.<name>   pkgif.ScheduledExecutor
package resource
