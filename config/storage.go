package config

import (
	"path/filepath"
)

// StorageConfig 存储配置
//
// 协议栈模型（含显式的协议层顺序）持久化到 BadgerDB。
//
//	${DataDir}/
//	└── groupstack.db/      # BadgerDB 主数据库
type StorageConfig struct {
	// DataDir 数据目录，为空时使用内存模式（进程退出后模型丢失）
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	// SyncWrites 是否同步写入
	SyncWrites bool `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// Validate 验证存储配置的有效性
func (c *StorageConfig) Validate() error {
	return nil
}

// InMemory 是否为内存模式
func (c *StorageConfig) InMemory() bool {
	return c.DataDir == ""
}

// DBPath 返回 BadgerDB 数据库路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "groupstack.db")
}
