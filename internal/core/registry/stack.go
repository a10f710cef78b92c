package registry

import (
	"slices"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// Layer 按线序描述的协议层
type Layer struct {
	Name       string
	Definition types.ProtocolDefinition
}

// Stack 协议栈的一个不可变版本
//
// order 与 layers 始终一一对应。
type Stack struct {
	name      string
	version   uint64
	transport *types.TransportDefinition
	relay     *types.RelayDefinition
	order     []string
	layers    map[string]types.ProtocolDefinition
}

// newStack 从有序定义构建协议栈，协议层重名时返回 ErrDuplicateLayer
func newStack(def *types.StackDefinition, version uint64) (*Stack, error) {
	s := &Stack{
		name:      def.Name,
		version:   version,
		transport: def.Transport.Clone(),
		relay:     def.Relay.Clone(),
		order:     make([]string, 0, len(def.Protocols)),
		layers:    make(map[string]types.ProtocolDefinition, len(def.Protocols)),
	}
	for _, p := range def.Protocols {
		if p.Type == "" {
			return nil, ErrInvalidStack
		}
		if _, dup := s.layers[p.Type]; dup {
			return nil, ErrDuplicateLayer
		}
		s.order = append(s.order, p.Type)
		s.layers[p.Type] = p.Clone()
	}
	return s, nil
}

// next 复制为下一个版本
func (s *Stack) next() *Stack {
	n := &Stack{
		name:      s.name,
		version:   s.version + 1,
		transport: s.transport.Clone(),
		relay:     s.relay.Clone(),
		order:     slices.Clone(s.order),
		layers:    make(map[string]types.ProtocolDefinition, len(s.layers)),
	}
	for k, v := range s.layers {
		n.layers[k] = v.Clone()
	}
	return n
}

// Name 协议栈名
func (s *Stack) Name() string { return s.name }

// Version 版本号，每次修改递增
func (s *Stack) Version() uint64 { return s.version }

// Order 协议层线序
func (s *Stack) Order() []string { return slices.Clone(s.order) }

// Len 协议层数量
func (s *Stack) Len() int { return len(s.order) }

// Layer 按名称获取协议层定义
func (s *Stack) Layer(name string) (types.ProtocolDefinition, bool) {
	def, ok := s.layers[name]
	if !ok {
		return types.ProtocolDefinition{}, false
	}
	return def.Clone(), true
}

// Describe 按线序返回协议层
func (s *Stack) Describe() []Layer {
	out := make([]Layer, len(s.order))
	for i, name := range s.order {
		out[i] = Layer{Name: name, Definition: s.layers[name].Clone()}
	}
	return out
}

// Transport 传输层定义副本
func (s *Stack) Transport() *types.TransportDefinition { return s.transport.Clone() }

// Relay 中继层定义副本
func (s *Stack) Relay() *types.RelayDefinition { return s.relay.Clone() }

// Definition 生成按线序排列的声明式定义
func (s *Stack) Definition() *types.StackDefinition {
	def := &types.StackDefinition{
		Name:      s.name,
		Transport: s.transport.Clone(),
		Relay:     s.relay.Clone(),
		Protocols: make([]types.ProtocolDefinition, 0, len(s.order)),
	}
	for _, name := range s.order {
		def.Protocols = append(def.Protocols, s.layers[name].Clone())
	}
	return def
}
