// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义：
//
//	cfg := config.NewConfig()
//	cfg.Storage.DataDir = "/var/lib/groupstack"
//
//	// 从文件加载（.json / .yaml / .yml）
//	cfg, err := config.LoadFile("groupstack.yaml")
package config

// Config 是 groupstack 的完整配置结构
//
//   - Log: 日志级别与格式
//   - Stacks: 协议栈定义与默认栈
//   - Channels: 通道与分叉通道
//   - Resources: 命名外部资源（套接字绑定、执行器、线程工厂、定时执行器）
//   - Storage: 协议栈模型持久化
//   - Lifecycle: 通道生命周期 worker
//   - Metrics: 指标桥接、轮询与导出
//   - Diagnostics: 本地诊断 HTTP 服务
//   - Expressions: ${key} 表达式的覆盖值
type Config struct {
	Log         LogConfig         `json:"log" yaml:"log"`
	Stacks      StacksConfig      `json:"stacks" yaml:"stacks"`
	Channels    ChannelsConfig    `json:"channels" yaml:"channels"`
	Resources   ResourcesConfig   `json:"resources" yaml:"resources"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Lifecycle   LifecycleConfig   `json:"lifecycle" yaml:"lifecycle"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`

	// Expressions 表达式解析时优先于环境变量的键值
	Expressions map[string]string `json:"expressions,omitempty" yaml:"expressions,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Log:         DefaultLogConfig(),
		Stacks:      DefaultStacksConfig(),
		Channels:    DefaultChannelsConfig(),
		Resources:   DefaultResourcesConfig(),
		Storage:     DefaultStorageConfig(),
		Lifecycle:   DefaultLifecycleConfig(),
		Metrics:     DefaultMetricsConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
	}
}

// Validate 验证配置的有效性
//
// 只做结构性检查；协议栈的语义校验由编译器完成。
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Log,
		&c.Stacks,
		&c.Channels,
		&c.Resources,
		&c.Storage,
		&c.Lifecycle,
		&c.Metrics,
		&c.Diagnostics,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
