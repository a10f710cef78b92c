// Package compiler 把协议栈声明式定义编译为不可变的 StackConfiguration
//
// 编译是同步、无副作用的：任何校验失败都返回 *ValidationError，
// 不会留下部分结果。命名引用（套接字绑定、执行器等）只保留名称，
// 由服务安装器在安装时解析。
//
// 属性值中的 ${key}、${key:default}、${k1,k2:default} 表达式默认立即解析；
// 使用 WithDeferredExpressions 时属性表达式保留到激活时再解析，
// 类型名、拓扑与命名引用始终立即解析。
package compiler
