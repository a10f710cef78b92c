package toolkit

import (
	"sync/atomic"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/pkg/interfaces"
)

// Stack 协议链
//
// 层列表以不可变切片保存；插入 FORK 层时整体替换。
type Stack struct {
	layers atomic.Pointer[[]layer]
}

var _ interfaces.ProtocolStack = (*Stack)(nil)

func newStack(layers []layer) *Stack {
	s := &Stack{}
	s.layers.Store(&layers)
	return s
}

func (s *Stack) list() []layer {
	return *s.layers.Load()
}

// Protocols 按线序（自下而上）返回协议层
func (s *Stack) Protocols() []interfaces.Protocol {
	layers := s.list()
	out := make([]interfaces.Protocol, len(layers))
	for i, l := range layers {
		out[i] = l
	}
	return out
}

// FindProtocol 按名称查找协议层，容忍包前缀
func (s *Stack) FindProtocol(name string) interfaces.Protocol {
	if l := s.find(name); l != nil {
		return l
	}
	return nil
}

func (s *Stack) find(name string) layer {
	layers := s.list()
	for _, l := range layers {
		if l.Name() == name {
			return l
		}
	}
	// 带前缀或不带前缀的名称按短名匹配
	short := catalog.ShortName(name)
	for _, l := range layers {
		if catalog.ShortName(l.Name()) == short {
			return l
		}
	}
	return nil
}

// Transport 返回传输层
func (s *Stack) Transport() interfaces.Protocol {
	layers := s.list()
	if len(layers) == 0 {
		return nil
	}
	return layers[0]
}

// Top 返回最顶层协议
func (s *Stack) Top() interfaces.Protocol {
	layers := s.list()
	if len(layers) == 0 {
		return nil
	}
	return layers[len(layers)-1]
}

// insertTop 在顶部追加协议层，返回追加后的层
func (s *Stack) insertTop(l layer) {
	for {
		old := s.layers.Load()
		next := make([]layer, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, l)
		if s.layers.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *Stack) transport() *Transport {
	if t, ok := s.Transport().(*Transport); ok {
		return t
	}
	return nil
}

func (s *Stack) gms() *GMS {
	for _, l := range s.list() {
		if g, ok := l.(*GMS); ok {
			return g
		}
	}
	return nil
}
