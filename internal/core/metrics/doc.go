// Package metrics 读取运行中通道的协议层指标
//
// Bridge 按 (协议层, 指标名) 在目录的显式注册表中解析访问函数，
// 沿协议层类型的父类型链向外查找，并把读取结果规范化为 Value：
//
//	int8/int16/int32 → int32
//	int64            → int64
//	float32/float64  → float64
//	bool             → bool
//	text             → string
//	opaque           → 经文本转换器输出 string，无转换器或值为 nil 时为 Undefined
//
// 读取只调用访问函数，访问函数只读取原子量与不可变设置，
// 因此可以与通道关闭并发进行：通道关闭后返回 ErrLayerNotFound。
//
// Poller 按间隔轮询配置的目标并保留每个目标最后一次有效的值，
// Collector 把数值型目标导出为 Prometheus 指标。
package metrics
