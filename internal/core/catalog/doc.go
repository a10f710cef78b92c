// Package catalog 维护协议层类型目录
//
// 每个协议层类型在进程启动时显式注册：类型种类（传输层/协议层/中继层）、
// 父类型链、可配置属性及其转换器、可读指标及其类型化访问函数。
// 编译器用它校验属性，指标桥接用它解析指标，两者都不依赖运行时反射。
//
//	cat := catalog.New()
//	cat.MustRegister(&catalog.LayerType{Name: "UDP", Kind: catalog.KindTransport, Parent: "TP"})
//	spec, err := cat.Attribute("UDP", "num_msgs_sent")
package catalog
