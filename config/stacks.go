package config

import (
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// StacksConfig 协议栈配置
type StacksConfig struct {
	// Default 默认协议栈名，通道未指定栈时使用
	Default string `json:"default,omitempty" yaml:"default,omitempty"`

	// Definitions 启动时注册的协议栈定义
	Definitions []types.StackDefinition `json:"definitions,omitempty" yaml:"definitions,omitempty"`
}

// DefaultStacksConfig 返回默认协议栈配置
func DefaultStacksConfig() StacksConfig {
	return StacksConfig{}
}

// Validate 检查名称唯一与默认栈存在
func (c *StacksConfig) Validate() error {
	seen := make(map[string]bool, len(c.Definitions))
	for _, def := range c.Definitions {
		if def.Name == "" {
			return fmt.Errorf("stacks: definition without name")
		}
		if seen[def.Name] {
			return fmt.Errorf("stacks: duplicate stack %q", def.Name)
		}
		seen[def.Name] = true
	}
	if c.Default != "" && len(c.Definitions) > 0 && !seen[c.Default] {
		return fmt.Errorf("stacks: default stack %q is not defined", c.Default)
	}
	return nil
}

// ChannelsConfig 通道配置
type ChannelsConfig struct {
	// Default 默认通道名
	Default string `json:"default,omitempty" yaml:"default,omitempty"`

	Definitions []types.ChannelDefinition `json:"definitions,omitempty" yaml:"definitions,omitempty"`
}

// DefaultChannelsConfig 返回默认通道配置
func DefaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{}
}

// Validate 检查通道名与分叉名唯一
func (c *ChannelsConfig) Validate() error {
	seen := make(map[string]bool, len(c.Definitions))
	for _, def := range c.Definitions {
		if def.Name == "" {
			return fmt.Errorf("channels: definition without name")
		}
		if seen[def.Name] {
			return fmt.Errorf("channels: duplicate channel %q", def.Name)
		}
		seen[def.Name] = true

		forks := make(map[string]bool, len(def.Forks))
		for _, f := range def.Forks {
			if f.Name == "" || forks[f.Name] {
				return fmt.Errorf("channels: channel %q has an unnamed or duplicate fork %q", def.Name, f.Name)
			}
			forks[f.Name] = true
		}
	}
	return nil
}
