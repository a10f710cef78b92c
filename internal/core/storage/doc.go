// Package storage 提供协议栈模型的持久化存储
//
// 底层使用 BadgerDB：配置了数据目录时写入磁盘，否则使用内存模式。
// 上层模块通过带前缀的 KV 视图访问各自的键空间：
//
//	eng, _ := storage.Open(storage.DefaultConfig().WithPath(dir))
//	stacks := storage.NewKV(eng, []byte("s/"))
//	_ = stacks.PutJSON([]byte("cluster"), record)
package storage
