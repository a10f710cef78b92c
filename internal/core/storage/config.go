package storage

import (
	"time"

	"github.com/dep2p/go-groupstack/config"
)

// Config 存储引擎配置
type Config struct {
	// Path BadgerDB 目录，为空时使用内存模式
	Path string

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool

	// GCInterval 值日志垃圾回收间隔，0 表示不回收
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置（内存模式）
func DefaultConfig() Config {
	return Config{
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// ConfigFromUnified 从统一配置创建存储配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if !cfg.Storage.InMemory() {
		c.Path = cfg.Storage.DBPath()
	}
	c.SyncWrites = cfg.Storage.SyncWrites
	return c
}

// InMemory 是否为内存模式
func (c Config) InMemory() bool {
	return c.Path == ""
}

// WithPath 设置存储路径
func (c Config) WithPath(path string) Config {
	c.Path = path
	return c
}

// WithSyncWrites 设置同步写入
func (c Config) WithSyncWrites(sync bool) Config {
	c.SyncWrites = sync
	return c
}

// Validate 规范化配置
func (c *Config) Validate() error {
	if c.GCInterval > 0 && c.GCInterval < time.Minute {
		c.GCInterval = time.Minute
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio > 1 {
		c.GCDiscardRatio = 0.5
	}
	return nil
}
