// Package types 定义 groupstack 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - definition.go    - 声明式定义（StackDefinition、ChannelDefinition 等原始属性）
//   - configuration.go - 编译后的不可变配置（StackConfiguration 等）
//   - names.go         - 服务单元命名
//   - view.go          - 成员地址、组视图与消息
//   - events.go        - 通道生命周期事件
//   - errors.go        - 公共错误分类
package types
