package config

import (
	"fmt"
	"net"
	"strconv"
)

// ResourcesConfig 命名外部资源配置
//
// 协议栈配置只保存这些资源的名称，由服务容器在安装时按名称解析。
type ResourcesConfig struct {
	SocketBindings  []SocketBindingConfig `json:"socket_bindings,omitempty" yaml:"socket_bindings,omitempty"`
	Executors       []ExecutorConfig      `json:"executors,omitempty" yaml:"executors,omitempty"`
	ThreadFactories []ThreadFactoryConfig `json:"thread_factories,omitempty" yaml:"thread_factories,omitempty"`
	TimerExecutors  []TimerConfig         `json:"timer_executors,omitempty" yaml:"timer_executors,omitempty"`
}

// SocketBindingConfig 套接字绑定
type SocketBindingConfig struct {
	Name string `json:"name" yaml:"name"`
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port" yaml:"port"`
}

// Address 返回 host:port
func (c SocketBindingConfig) Address() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// ExecutorConfig 有界执行器
type ExecutorConfig struct {
	Name string `json:"name" yaml:"name"`

	// MaxThreads 最大并发任务数
	MaxThreads int `json:"max_threads" yaml:"max_threads"`
}

// ThreadFactoryConfig 线程工厂
type ThreadFactoryConfig struct {
	Name string `json:"name" yaml:"name"`

	// Pattern 命名模式，%d 替换为序号
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// TimerConfig 定时执行器
type TimerConfig struct {
	Name string `json:"name" yaml:"name"`
}

// DefaultResourcesConfig 返回默认资源配置（无资源）
func DefaultResourcesConfig() ResourcesConfig {
	return ResourcesConfig{}
}

// Validate 验证资源配置
func (c *ResourcesConfig) Validate() error {
	names := make(map[string]bool)
	check := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("resources: %s without name", kind)
		}
		key := kind + "/" + name
		if names[key] {
			return fmt.Errorf("resources: duplicate %s %q", kind, name)
		}
		names[key] = true
		return nil
	}

	for _, b := range c.SocketBindings {
		if err := check("socket-binding", b.Name); err != nil {
			return err
		}
		if b.Port < 0 || b.Port > 65535 {
			return fmt.Errorf("resources: socket-binding %q has invalid port %d", b.Name, b.Port)
		}
	}
	for _, e := range c.Executors {
		if err := check("executor", e.Name); err != nil {
			return err
		}
		if e.MaxThreads <= 0 {
			return fmt.Errorf("resources: executor %q needs max_threads > 0", e.Name)
		}
	}
	for _, f := range c.ThreadFactories {
		if err := check("thread-factory", f.Name); err != nil {
			return err
		}
	}
	for _, t := range c.TimerExecutors {
		if err := check("timer-executor", t.Name); err != nil {
			return err
		}
	}
	return nil
}
