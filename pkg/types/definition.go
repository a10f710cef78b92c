package types

import "maps"

// ============================================================================
//                              声明式定义（原始属性）
// ============================================================================
//
// Definition 系列类型对应管理模型中的原始属性：所有字段都是字符串，
// 可能包含 ${key:default} 形式的表达式，由编译器解析与校验。

// StackDefinition 协议栈声明式定义
type StackDefinition struct {
	// Name 协议栈名称
	Name string `json:"name" yaml:"name"`

	// Transport 传输层定义（编译时必需）
	Transport *TransportDefinition `json:"transport,omitempty" yaml:"transport,omitempty"`

	// Protocols 协议层定义，按线序（自下而上）排列
	Protocols []ProtocolDefinition `json:"protocols,omitempty" yaml:"protocols,omitempty"`

	// Relay 跨站点中继定义（可选）
	Relay *RelayDefinition `json:"relay,omitempty" yaml:"relay,omitempty"`
}

// TransportDefinition 传输层定义
type TransportDefinition struct {
	Type                     string            `json:"type" yaml:"type"`
	Shared                   string            `json:"shared,omitempty" yaml:"shared,omitempty"`
	SocketBinding            string            `json:"socket_binding,omitempty" yaml:"socket_binding,omitempty"`
	DiagnosticsSocketBinding string            `json:"diagnostics_socket_binding,omitempty" yaml:"diagnostics_socket_binding,omitempty"`
	DefaultExecutor          string            `json:"default_executor,omitempty" yaml:"default_executor,omitempty"`
	OOBExecutor              string            `json:"oob_executor,omitempty" yaml:"oob_executor,omitempty"`
	TimerExecutor            string            `json:"timer_executor,omitempty" yaml:"timer_executor,omitempty"`
	ThreadFactory            string            `json:"thread_factory,omitempty" yaml:"thread_factory,omitempty"`
	Site                     string            `json:"site,omitempty" yaml:"site,omitempty"`
	Rack                     string            `json:"rack,omitempty" yaml:"rack,omitempty"`
	Machine                  string            `json:"machine,omitempty" yaml:"machine,omitempty"`
	Module                   string            `json:"module,omitempty" yaml:"module,omitempty"`
	Properties               map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ProtocolDefinition 协议层定义
//
// 协议层在栈内以 Type 作为资源名，同一个栈内不允许重复。
type ProtocolDefinition struct {
	Type          string            `json:"type" yaml:"type"`
	SocketBinding string            `json:"socket_binding,omitempty" yaml:"socket_binding,omitempty"`
	Module        string            `json:"module,omitempty" yaml:"module,omitempty"`
	Properties    map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// RelayDefinition 跨站点中继定义
type RelayDefinition struct {
	Site        string                 `json:"site" yaml:"site"`
	RemoteSites []RemoteSiteDefinition `json:"remote_sites,omitempty" yaml:"remote_sites,omitempty"`
	Properties  map[string]string      `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// RemoteSiteDefinition 远端站点定义
type RemoteSiteDefinition struct {
	// Name 远端站点名称
	Name string `json:"name" yaml:"name"`

	// Channel 远端站点使用的通道/集群名
	Channel string `json:"channel" yaml:"channel"`

	// Stack 远端站点桥接通道使用的协议栈
	Stack string `json:"stack" yaml:"stack"`
}

// ChannelDefinition 通道定义
type ChannelDefinition struct {
	Name string `json:"name" yaml:"name"`

	// Stack 使用的协议栈，为空时使用默认栈
	Stack string `json:"stack,omitempty" yaml:"stack,omitempty"`

	// Cluster 连接的集群名，为空时使用通道名
	Cluster string `json:"cluster,omitempty" yaml:"cluster,omitempty"`

	Module string           `json:"module,omitempty" yaml:"module,omitempty"`
	Forks  []ForkDefinition `json:"forks,omitempty" yaml:"forks,omitempty"`
}

// ClusterName 返回实际连接的集群名
func (d ChannelDefinition) ClusterName() string {
	if d.Cluster != "" {
		return d.Cluster
	}
	return d.Name
}

// ForkDefinition 分叉通道定义
type ForkDefinition struct {
	Name      string               `json:"name" yaml:"name"`
	Protocols []ProtocolDefinition `json:"protocols,omitempty" yaml:"protocols,omitempty"`
}

// ============================================================================
//                              深拷贝
// ============================================================================

// Clone 深拷贝协议层定义
func (d ProtocolDefinition) Clone() ProtocolDefinition {
	d.Properties = maps.Clone(d.Properties)
	return d
}

// Clone 深拷贝传输层定义
func (d *TransportDefinition) Clone() *TransportDefinition {
	if d == nil {
		return nil
	}
	c := *d
	c.Properties = maps.Clone(d.Properties)
	return &c
}

// Clone 深拷贝中继定义
func (d *RelayDefinition) Clone() *RelayDefinition {
	if d == nil {
		return nil
	}
	c := *d
	c.RemoteSites = append([]RemoteSiteDefinition(nil), d.RemoteSites...)
	c.Properties = maps.Clone(d.Properties)
	return &c
}

// Clone 深拷贝协议栈定义
func (d *StackDefinition) Clone() *StackDefinition {
	if d == nil {
		return nil
	}
	c := &StackDefinition{
		Name:      d.Name,
		Transport: d.Transport.Clone(),
		Relay:     d.Relay.Clone(),
	}
	if d.Protocols != nil {
		c.Protocols = make([]ProtocolDefinition, len(d.Protocols))
		for i, p := range d.Protocols {
			c.Protocols[i] = p.Clone()
		}
	}
	return c
}

// ProtocolNames 返回按线序排列的协议层名称
func (d *StackDefinition) ProtocolNames() []string {
	names := make([]string, len(d.Protocols))
	for i, p := range d.Protocols {
		names[i] = p.Type
	}
	return names
}
