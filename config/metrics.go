package config

import (
	"fmt"
	"time"
)

// MetricsConfig 指标配置
type MetricsConfig struct {
	// CacheSize 属性解析缓存条目数
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// PollInterval 轮询间隔，为 0 时不启动轮询器
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`

	// ReadsPerSecond 轮询器每秒最多读取的属性数
	ReadsPerSecond float64 `json:"reads_per_second" yaml:"reads_per_second"`

	// Targets 轮询并导出到 Prometheus 的属性
	Targets []MetricTarget `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// MetricTarget 轮询目标
type MetricTarget struct {
	Channel   string `json:"channel" yaml:"channel"`
	Protocol  string `json:"protocol" yaml:"protocol"`
	Attribute string `json:"attribute" yaml:"attribute"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		CacheSize:      256,
		PollInterval:   Duration(15 * time.Second),
		ReadsPerSecond: 100,
	}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if c.CacheSize <= 0 {
		return fmt.Errorf("metrics: cache_size must be positive")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("metrics: poll_interval cannot be negative")
	}
	if c.ReadsPerSecond <= 0 {
		return fmt.Errorf("metrics: reads_per_second must be positive")
	}
	for _, t := range c.Targets {
		if t.Channel == "" || t.Protocol == "" || t.Attribute == "" {
			return fmt.Errorf("metrics: incomplete target %+v", t)
		}
	}
	return nil
}
