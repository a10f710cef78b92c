package groupstack

import (
	"fmt"
	"slices"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// Option 子系统配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// base 基础配置，为空时使用 config.NewConfig()
	base *config.Config

	// 以下覆盖项在 base 之上追加
	stacks       []types.StackDefinition
	channels     []types.ChannelDefinition
	defaultStack string
	dataDir      *string

	diagnostics struct {
		enable *bool
		addr   string
	}

	clock     clock.Clock
	fxOptions []fx.Option
}

// toConfig 合并基础配置与覆盖项，返回新的配置
func (o *options) toConfig() *config.Config {
	cfg := config.NewConfig()
	if o.base != nil {
		c := *o.base
		cfg = &c
	}

	cfg.Stacks.Definitions = slices.Concat(cfg.Stacks.Definitions, o.stacks)
	cfg.Channels.Definitions = slices.Concat(cfg.Channels.Definitions, o.channels)
	if o.defaultStack != "" {
		cfg.Stacks.Default = o.defaultStack
	}
	if o.dataDir != nil {
		cfg.Storage.DataDir = *o.dataDir
	}
	if o.diagnostics.enable != nil {
		cfg.Diagnostics.Enabled = *o.diagnostics.enable
	}
	if o.diagnostics.addr != "" {
		cfg.Diagnostics.Addr = o.diagnostics.addr
	}
	return cfg
}

// ============================================================================
//                              配置来源
// ============================================================================

// WithConfig 使用已有的统一配置作为基础
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		o.base = cfg
		return nil
	}
}

// WithConfigFile 从 JSON/YAML 文件加载基础配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.base = cfg
		return nil
	}
}

// ============================================================================
//                              协议栈与通道
// ============================================================================

// WithStack 启动时注册协议栈
func WithStack(def types.StackDefinition) Option {
	return func(o *options) error {
		if def.Name == "" {
			return fmt.Errorf("%w: stack name is required", ErrValidation)
		}
		o.stacks = append(o.stacks, *def.Clone())
		return nil
	}
}

// WithDefaultStack 设置通道未指定协议栈时使用的默认栈
func WithDefaultStack(name string) Option {
	return func(o *options) error {
		o.defaultStack = name
		return nil
	}
}

// WithChannel 启动时安装并激活通道
func WithChannel(def types.ChannelDefinition) Option {
	return func(o *options) error {
		if def.Name == "" {
			return fmt.Errorf("%w: channel name is required", ErrValidation)
		}
		o.channels = append(o.channels, def)
		return nil
	}
}

// ============================================================================
//                              运行环境
// ============================================================================

// WithDataDir 设置协议栈模型的持久化目录，空字符串表示内存模式
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.dataDir = &dir
		return nil
	}
}

// WithDiagnostics 启用本地诊断 HTTP 服务
//
// addr 为空时使用配置中的地址。
func WithDiagnostics(addr string) Option {
	return func(o *options) error {
		enable := true
		o.diagnostics.enable = &enable
		o.diagnostics.addr = addr
		return nil
	}
}

// WithClock 替换内部定时器与轮询使用的时钟，主要用于测试
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
