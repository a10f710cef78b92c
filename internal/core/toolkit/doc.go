// Package toolkit 提供进程内的组通信工具包实现
//
// 编译后的协议栈配置通过 Factory 实例化为真实的协议链：
// 传输层、按线序排列的协议层、可选的中继层，以及分叉通道使用的 FORK 多路复用层。
// 同一个 Network 内连接到相同集群名的通道组成一个组，组视图随成员加入和离开更新。
//
// 本包只模拟成员关系与消息投递，不实现重传、排序等协议语义。
// 每个协议层创建时把属性解析为只读设置，计数器使用原子量，
// 因此指标读取不会修改协议层状态，可以与关闭并发进行。
package toolkit
