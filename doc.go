// Package groupstack 把声明式、有序的组通信协议栈描述装配成运行中的通道，
// 并暴露通道各协议层的实时指标。
//
// # 核心概念
//
//   - Stack: 命名的协议栈，由一个传输层和按线序排列的协议层组成，可选跨站点中继
//   - Channel: 由协议栈创建并连接到集群的通道
//   - Fork: 复用已连接父通道的逻辑子通道，带私有的协议子栈
//   - Service unit: 服务容器中的依赖图节点，协议栈、通道、命名资源都以单元形式安装
//
// # 快速开始
//
//	sub, err := groupstack.New(ctx,
//	    groupstack.WithConfigFile("groupstack.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sub.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Close()
//
//	// 协议层按显式顺序修改，编译失败时模型不变
//	_ = sub.RemoveLayer("udp", "FD")
//
//	// 读取运行中通道的协议层属性
//	v, err := sub.ReadMetric("ee", "GMS", "view")
//
// # 数据流
//
//	registry（有序模型） → compiler（校验、编译） → installer（协议栈单元）
//	  → lifecycle（通道 / 分叉通道单元） → metrics（属性读取、轮询、Prometheus）
//
// # 错误
//
// 所有错误都包装自本包导出的哨兵错误，使用 errors.Is 判断：
//
//	if errors.Is(err, groupstack.ErrNotFound) { ... }
package groupstack
