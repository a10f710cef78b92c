// Package registry 维护协议栈模型与协议层的线序
//
// 每个协议栈是一个不可变版本：协议层顺序列表与协议层集合总是一致，
// 增删协议层、设置传输层或中继层都生成新版本，旧版本可以安全地继续读取。
// 新旧版本的差异（ChangeSet）用于决定服务单元是否需要重新安装。
//
// 配置了存储时，每个版本以 JSON 写入 "s/<name>"，包含显式的 order 字段。
// 加载旧格式记录时按有序的 layers 数组推导顺序；只有无序 layer_map
// 且多于一个协议层的记录无法确定顺序，会被拒绝。
package registry
