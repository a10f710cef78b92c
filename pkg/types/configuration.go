package types

import (
	"maps"
	"slices"
	"strings"
)

// ============================================================================
//                              编译后的配置对象
// ============================================================================
//
// 由编译器从 StackDefinition 生成，之后视为不可变值对象：
// 需要修改时应 Clone 后生成新版本，而不是原地修改。

// StackConfiguration 协议栈配置
type StackConfiguration struct {
	Name      string
	Transport TransportConfiguration
	Protocols []ProtocolConfiguration
	Relay     *RelayConfiguration

	// StateTransfer 栈内是否包含支持状态传输的协议层
	StateTransfer bool
}

// TransportConfiguration 传输层配置
type TransportConfiguration struct {
	ProtocolConfiguration

	Shared   bool
	Topology *Topology

	DiagnosticsSocketBinding string
	DefaultExecutor          string
	OOBExecutor              string
	TimerExecutor            string
	ThreadFactory            string
}

// ProtocolConfiguration 协议层配置
type ProtocolConfiguration struct {
	Type string

	// SocketBinding 套接字绑定的命名引用（可为空）
	SocketBinding string

	Module     string
	Properties map[string]string
}

// Topology 拓扑信息，三个字段均可为空
type Topology struct {
	Site    string
	Rack    string
	Machine string
}

// RelayConfiguration 跨站点中继配置
type RelayConfiguration struct {
	ProtocolConfiguration

	Site        string
	RemoteSites []RemoteSiteConfiguration
}

// RemoteSiteConfiguration 远端站点配置
type RemoteSiteConfiguration struct {
	Name    string
	Channel string
	Stack   string
}

// ProtocolNames 返回线序的协议层类型名（不含传输层）
func (c *StackConfiguration) ProtocolNames() []string {
	names := make([]string, len(c.Protocols))
	for i, p := range c.Protocols {
		names[i] = p.Type
	}
	return names
}

// Clone 深拷贝
func (c *StackConfiguration) Clone() *StackConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	out.Transport = c.Transport.clone()
	out.Protocols = make([]ProtocolConfiguration, len(c.Protocols))
	for i, p := range c.Protocols {
		out.Protocols[i] = p.clone()
	}
	if c.Relay != nil {
		r := *c.Relay
		r.ProtocolConfiguration = c.Relay.ProtocolConfiguration.clone()
		r.RemoteSites = slices.Clone(c.Relay.RemoteSites)
		out.Relay = &r
	}
	return &out
}

// Equal 判断两个配置是否等价（顺序敏感）
func (c *StackConfiguration) Equal(o *StackConfiguration) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Name != o.Name || c.StateTransfer != o.StateTransfer {
		return false
	}
	if !c.Transport.equal(o.Transport) {
		return false
	}
	if !slices.EqualFunc(c.Protocols, o.Protocols, ProtocolConfiguration.equal) {
		return false
	}
	if (c.Relay == nil) != (o.Relay == nil) {
		return false
	}
	if c.Relay != nil {
		if c.Relay.Site != o.Relay.Site ||
			!c.Relay.ProtocolConfiguration.equal(o.Relay.ProtocolConfiguration) ||
			!slices.Equal(c.Relay.RemoteSites, o.Relay.RemoteSites) {
			return false
		}
	}
	return true
}

// HasDeferred 是否仍有未解析的表达式属性
func (c *StackConfiguration) HasDeferred() bool {
	deferred := false
	c.eachLayer(func(p *ProtocolConfiguration) {
		for _, v := range p.Properties {
			if IsExpression(v) {
				deferred = true
			}
		}
	})
	return deferred
}

// Resolve 解析延迟的表达式属性，返回新配置
//
// fn 接收层类型、属性名、原始值，返回解析后的值。
func (c *StackConfiguration) Resolve(fn func(layer, property, raw string) (string, error)) (*StackConfiguration, error) {
	out := c.Clone()
	var err error
	out.eachLayer(func(p *ProtocolConfiguration) {
		for k, v := range p.Properties {
			if err != nil || !IsExpression(v) {
				continue
			}
			var resolved string
			if resolved, err = fn(p.Type, k, v); err == nil {
				p.Properties[k] = resolved
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StackConfiguration) eachLayer(fn func(p *ProtocolConfiguration)) {
	fn(&c.Transport.ProtocolConfiguration)
	for i := range c.Protocols {
		fn(&c.Protocols[i])
	}
	if c.Relay != nil {
		fn(&c.Relay.ProtocolConfiguration)
	}
}

func (p ProtocolConfiguration) clone() ProtocolConfiguration {
	p.Properties = maps.Clone(p.Properties)
	if p.Properties == nil {
		p.Properties = map[string]string{}
	}
	return p
}

func (p ProtocolConfiguration) equal(o ProtocolConfiguration) bool {
	return p.Type == o.Type && p.SocketBinding == o.SocketBinding &&
		p.Module == o.Module && maps.Equal(p.Properties, o.Properties)
}

func (t TransportConfiguration) clone() TransportConfiguration {
	t.ProtocolConfiguration = t.ProtocolConfiguration.clone()
	if t.Topology != nil {
		topo := *t.Topology
		t.Topology = &topo
	}
	return t
}

func (t TransportConfiguration) equal(o TransportConfiguration) bool {
	if !t.ProtocolConfiguration.equal(o.ProtocolConfiguration) {
		return false
	}
	if (t.Topology == nil) != (o.Topology == nil) {
		return false
	}
	if t.Topology != nil && *t.Topology != *o.Topology {
		return false
	}
	return t.Shared == o.Shared &&
		t.DiagnosticsSocketBinding == o.DiagnosticsSocketBinding &&
		t.DefaultExecutor == o.DefaultExecutor &&
		t.OOBExecutor == o.OOBExecutor &&
		t.TimerExecutor == o.TimerExecutor &&
		t.ThreadFactory == o.ThreadFactory
}

// IsExpression 判断属性值是否包含 ${...} 表达式
func IsExpression(v string) bool {
	i := strings.Index(v, "${")
	return i >= 0 && strings.Contains(v[i:], "}")
}
