package config

import (
	"fmt"
	"time"
)

// LifecycleConfig 通道生命周期配置
type LifecycleConfig struct {
	// StartTimeout 等待通道打开并连接的最长时间
	StartTimeout Duration `json:"start_timeout" yaml:"start_timeout"`

	// StopTimeout 等待通道关闭的最长时间
	StopTimeout Duration `json:"stop_timeout" yaml:"stop_timeout"`

	// StateTransferTimeout 连接时获取初始状态的超时
	StateTransferTimeout Duration `json:"state_transfer_timeout" yaml:"state_transfer_timeout"`

	// WorkerQueue 生命周期 worker 任务队列长度
	WorkerQueue int `json:"worker_queue" yaml:"worker_queue"`
}

// DefaultLifecycleConfig 返回默认生命周期配置
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		StartTimeout:         Duration(30 * time.Second),
		StopTimeout:          Duration(10 * time.Second),
		StateTransferTimeout: Duration(60 * time.Second),
		WorkerQueue:          64,
	}
}

// Validate 验证生命周期配置
func (c *LifecycleConfig) Validate() error {
	if c.StartTimeout <= 0 || c.StopTimeout <= 0 || c.StateTransferTimeout <= 0 {
		return fmt.Errorf("lifecycle: timeouts must be positive")
	}
	if c.WorkerQueue <= 0 {
		return fmt.Errorf("lifecycle: worker_queue must be positive")
	}
	return nil
}
