package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// RelayType 中继层类型名
const RelayType = "relay.RELAY2"

// topologyPattern 拓扑字段（site/rack/machine）的合法形式
var topologyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Option 编译器选项
type Option func(*Compiler)

// WithLookup 设置表达式查找函数
func WithLookup(lookup Lookup) Option {
	return func(c *Compiler) {
		c.lookup = lookup
	}
}

// WithDeferredExpressions 属性表达式延迟到 Resolve 时解析
func WithDeferredExpressions() Option {
	return func(c *Compiler) {
		c.deferred = true
	}
}

// Compiler 配置编译器
type Compiler struct {
	catalog  *catalog.Catalog
	lookup   Lookup
	deferred bool
}

// New 创建编译器，默认使用环境变量解析表达式
func New(cat *catalog.Catalog, opts ...Option) *Compiler {
	c := &Compiler{
		catalog: cat,
		lookup:  EnvLookup(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deferred 是否延迟解析属性表达式
func (c *Compiler) Deferred() bool {
	return c.deferred
}

// Compile 编译协议栈定义
func (c *Compiler) Compile(def *types.StackDefinition) (*types.StackConfiguration, error) {
	if def == nil {
		return nil, &ValidationError{Field: "stack", Reason: "definition is nil"}
	}
	if def.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "stack name is required"}
	}
	s := &session{Compiler: c, stack: def.Name}

	cfg := &types.StackConfiguration{Name: def.Name}

	transport, err := s.transport(def.Transport)
	if err != nil {
		return nil, err
	}
	cfg.Transport = *transport

	if len(def.Protocols) == 0 {
		return nil, s.fail("protocols", "at least one protocol is required", nil)
	}
	seen := make(map[string]int, len(def.Protocols))
	cfg.Protocols = make([]types.ProtocolConfiguration, 0, len(def.Protocols))
	for i, pd := range def.Protocols {
		field := fmt.Sprintf("protocols[%d]", i)
		pc, lt, err := s.protocol(field, pd, catalog.KindProtocol)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[pc.Type]; dup {
			return nil, s.fail(field+".type", fmt.Sprintf("duplicate protocol %s (also at position %d)", pc.Type, prev), nil)
		}
		seen[pc.Type] = i
		cfg.Protocols = append(cfg.Protocols, pc)
		if lt.StateTransfer {
			cfg.StateTransfer = true
		}
	}

	if def.Relay != nil {
		relay, err := s.relay(def.Relay)
		if err != nil {
			return nil, err
		}
		cfg.Relay = relay
	}

	return cfg, nil
}

// CompileProtocols 编译一组协议层（用于分叉通道的私有子栈）
func (c *Compiler) CompileProtocols(owner string, defs []types.ProtocolDefinition) ([]types.ProtocolConfiguration, error) {
	s := &session{Compiler: c, stack: owner}
	seen := make(map[string]bool, len(defs))
	out := make([]types.ProtocolConfiguration, 0, len(defs))
	for i, pd := range defs {
		field := fmt.Sprintf("protocols[%d]", i)
		pc, _, err := s.protocol(field, pd, catalog.KindProtocol)
		if err != nil {
			return nil, err
		}
		if seen[pc.Type] {
			return nil, s.fail(field+".type", "duplicate protocol "+pc.Type, nil)
		}
		seen[pc.Type] = true
		out = append(out, pc)
	}
	return out, nil
}

// Resolve 解析配置中延迟的属性表达式并按转换器校验
func (c *Compiler) Resolve(cfg *types.StackConfiguration) (*types.StackConfiguration, error) {
	if !cfg.HasDeferred() {
		return cfg, nil
	}
	return cfg.Resolve(func(layer, property, raw string) (string, error) {
		v, err := Expand(raw, c.lookup)
		if err != nil {
			return "", &ValidationError{Stack: cfg.Name, Field: layer + ".properties." + property, Reason: "cannot resolve expression", Err: err}
		}
		v, err = c.catalog.Convert(layer, property, v)
		if err != nil {
			return "", &ValidationError{Stack: cfg.Name, Field: layer + ".properties." + property, Reason: "invalid value", Err: err}
		}
		return v, nil
	})
}

// ============================================================================
//                              单次编译会话
// ============================================================================

type session struct {
	*Compiler
	stack string
}

func (s *session) fail(field, reason string, err error) error {
	return &ValidationError{Stack: s.stack, Field: field, Reason: reason, Err: err}
}

// expand 立即解析表达式
func (s *session) expand(field, raw string) (string, error) {
	v, err := Expand(raw, s.lookup)
	if err != nil {
		return "", s.fail(field, "cannot resolve expression", err)
	}
	return v, nil
}

// layerType 解析并检查协议层类型
func (s *session) layerType(field, raw string, kind catalog.Kind) (*catalog.LayerType, error) {
	name, err := s.expand(field, raw)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, s.fail(field, "type is required", nil)
	}
	lt, err := s.catalog.Lookup(name)
	if err != nil {
		return nil, s.fail(field, "unresolvable layer type "+strconv.Quote(name), err)
	}
	if lt.Kind != kind {
		return nil, s.fail(field, fmt.Sprintf("%s is a %s layer, expected %s", lt.Name, lt.Kind, kind), nil)
	}
	return lt, nil
}

// properties 校验并规范化属性
func (s *session) properties(field, layer string, props map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(props))
	for k, raw := range props {
		pf := field + ".properties." + k
		if _, err := s.catalog.Property(layer, k); err != nil {
			return nil, s.fail(pf, "unknown property", err)
		}
		if s.deferred && types.IsExpression(raw) {
			out[k] = raw
			continue
		}
		v, err := s.expand(pf, raw)
		if err != nil {
			return nil, err
		}
		if v, err = s.catalog.Convert(layer, k, v); err != nil {
			if errors.Is(err, catalog.ErrConverterUnsupported) {
				return nil, s.fail(pf, "unsupported converter", err)
			}
			return nil, s.fail(pf, "invalid value", err)
		}
		out[k] = v
	}
	return out, nil
}

func (s *session) protocol(field string, pd types.ProtocolDefinition, kind catalog.Kind) (types.ProtocolConfiguration, *catalog.LayerType, error) {
	lt, err := s.layerType(field+".type", pd.Type, kind)
	if err != nil {
		return types.ProtocolConfiguration{}, nil, err
	}
	binding, err := s.expand(field+".socket_binding", pd.SocketBinding)
	if err != nil {
		return types.ProtocolConfiguration{}, nil, err
	}
	module, err := s.expand(field+".module", pd.Module)
	if err != nil {
		return types.ProtocolConfiguration{}, nil, err
	}
	props, err := s.properties(field, lt.Name, pd.Properties)
	if err != nil {
		return types.ProtocolConfiguration{}, nil, err
	}
	return types.ProtocolConfiguration{
		Type:          lt.Name,
		SocketBinding: binding,
		Module:        module,
		Properties:    props,
	}, lt, nil
}

func (s *session) transport(td *types.TransportDefinition) (*types.TransportConfiguration, error) {
	if td == nil {
		return nil, s.fail("transport", "transport is required", nil)
	}
	pc, _, err := s.protocol("transport", types.ProtocolDefinition{
		Type:          td.Type,
		SocketBinding: td.SocketBinding,
		Module:        td.Module,
		Properties:    td.Properties,
	}, catalog.KindTransport)
	if err != nil {
		return nil, err
	}
	tc := &types.TransportConfiguration{ProtocolConfiguration: pc}

	shared, err := s.expand("transport.shared", td.Shared)
	if err != nil {
		return nil, err
	}
	if shared != "" {
		if tc.Shared, err = strconv.ParseBool(shared); err != nil {
			return nil, s.fail("transport.shared", strconv.Quote(shared)+" is not a boolean", nil)
		}
	}

	if tc.Topology, err = s.topology(td); err != nil {
		return nil, err
	}

	refs := []struct {
		field string
		raw   string
		dst   *string
	}{
		{"transport.diagnostics_socket_binding", td.DiagnosticsSocketBinding, &tc.DiagnosticsSocketBinding},
		{"transport.default_executor", td.DefaultExecutor, &tc.DefaultExecutor},
		{"transport.oob_executor", td.OOBExecutor, &tc.OOBExecutor},
		{"transport.timer_executor", td.TimerExecutor, &tc.TimerExecutor},
		{"transport.thread_factory", td.ThreadFactory, &tc.ThreadFactory},
	}
	for _, ref := range refs {
		if *ref.dst, err = s.expand(ref.field, ref.raw); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

// topology 三个字段都为空时返回 nil
func (s *session) topology(td *types.TransportDefinition) (*types.Topology, error) {
	topo := &types.Topology{}
	fields := []struct {
		name string
		raw  string
		dst  *string
	}{
		{"transport.site", td.Site, &topo.Site},
		{"transport.rack", td.Rack, &topo.Rack},
		{"transport.machine", td.Machine, &topo.Machine},
	}
	for _, f := range fields {
		v, err := s.expand(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		if v != "" && !topologyPattern.MatchString(v) {
			return nil, s.fail(f.name, "malformed topology value "+strconv.Quote(v), nil)
		}
		*f.dst = v
	}
	if *topo == (types.Topology{}) {
		return nil, nil
	}
	return topo, nil
}

func (s *session) relay(rd *types.RelayDefinition) (*types.RelayConfiguration, error) {
	pc, _, err := s.protocol("relay", types.ProtocolDefinition{
		Type:       RelayType,
		Properties: rd.Properties,
	}, catalog.KindRelay)
	if err != nil {
		return nil, err
	}
	site, err := s.expand("relay.site", rd.Site)
	if err != nil {
		return nil, err
	}
	if site == "" {
		return nil, s.fail("relay.site", "site is required", nil)
	}

	rc := &types.RelayConfiguration{ProtocolConfiguration: pc, Site: site}
	names := make(map[string]bool, len(rd.RemoteSites))
	for i, rs := range rd.RemoteSites {
		field := fmt.Sprintf("relay.remote_sites[%d]", i)
		var out types.RemoteSiteConfiguration
		for _, f := range []struct {
			name string
			raw  string
			dst  *string
		}{
			{field + ".name", rs.Name, &out.Name},
			{field + ".channel", rs.Channel, &out.Channel},
			{field + ".stack", rs.Stack, &out.Stack},
		} {
			if *f.dst, err = s.expand(f.name, f.raw); err != nil {
				return nil, err
			}
			if *f.dst == "" {
				return nil, s.fail(f.name, "value is required", nil)
			}
		}
		if out.Name == site {
			return nil, s.fail(field+".name", "remote site equals local site "+strconv.Quote(site), nil)
		}
		if names[out.Name] {
			return nil, s.fail(field+".name", "duplicate remote site "+strconv.Quote(out.Name), nil)
		}
		names[out.Name] = true
		rc.RemoteSites = append(rc.RemoteSites, out)
	}
	return rc, nil
}
