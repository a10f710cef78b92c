// Package introspect 提供本地诊断 HTTP 服务
//
// 该服务运行在本地端口，以 JSON 形式暴露协议栈、服务单元与通道状态，
// 并挂载 Prometheus 指标与 pprof。默认绑定到 127.0.0.1，不暴露到网络。
//
// # 端点
//
//	GET /debug/introspect/stacks   - 注册表中的协议栈及协议层顺序
//	GET /debug/introspect/services - 服务容器单元快照
//	GET /debug/introspect/channels - 通道运行状态与视图
//	GET /debug/introspect/runtime  - Go 运行时信息
//	GET /metrics                   - Prometheus 指标
//	GET /debug/pprof/*             - Go pprof 端点
//	GET /health                    - 健康检查
//
// # 使用示例
//
//	server := introspect.New(introspect.Config{
//	    Addr:      "127.0.0.1:6060",
//	    Registry:  reg,
//	    Container: container,
//	})
//	server.Start(ctx)
//	defer server.Stop()
//
// 通过 config.Diagnostics.Enabled 启用。
package introspect
