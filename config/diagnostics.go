package config

// DiagnosticsConfig 诊断服务配置
type DiagnosticsConfig struct {
	// Enabled 是否启动本地诊断 HTTP 服务
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr 监听地址，默认只绑定本地回环
	Addr string `json:"addr" yaml:"addr"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{Addr: "127.0.0.1:6060"}
}

// Validate 验证诊断配置
func (c *DiagnosticsConfig) Validate() error {
	return nil
}
