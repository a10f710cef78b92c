// Package types 定义 groupstack 的公共数据模型
//
// 本文件定义跨模块共享的错误分类。
package types

import "errors"

var (
	// ErrNotFound 目标不存在（协议层、属性所在层、服务单元、协议栈）
	ErrNotFound = errors.New("not found")

	// ErrValidation 配置校验失败
	ErrValidation = errors.New("validation failed")
)
