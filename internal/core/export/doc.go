// Package export 把协议栈定义导出为有序的 add 命令序列，并能从命令序列重建定义
//
// 命令顺序:
//
//	add            /stack=S
//	add            /stack=S/transport=T
//	add            /stack=S/transport=T/property=K      （按键排序）
//	add-protocol   /stack=S                              （每个协议层按线序）
//	add            /stack=S/protocol=P/property=K        （紧随所属协议层）
//	add            /stack=S/relay=R
//	add            /stack=S/relay=R/remote-site=N
//	add            /stack=S/relay=R/property=K
//
// 命令序列可以用 protobuf（structpb.ListValue）编码在进程间传输。
package export
