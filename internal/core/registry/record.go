package registry

import (
	"fmt"
	"sort"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// Record 协议栈的持久化形式
//
// 当前格式写入 Order 与按线序排列的 Layers。
// 旧格式可能缺少 Order，或只有无序的 LayerMap。
type Record struct {
	Name      string                     `json:"name"`
	Version   uint64                     `json:"version"`
	Order     []string                   `json:"order,omitempty"`
	Transport *types.TransportDefinition `json:"transport,omitempty"`
	Layers    []types.ProtocolDefinition `json:"layers,omitempty"`
	Relay     *types.RelayDefinition     `json:"relay,omitempty"`

	// LayerMap 旧格式的无序协议层集合
	LayerMap map[string]types.ProtocolDefinition `json:"layer_map,omitempty"`
}

// record 生成当前格式的持久化记录
func (s *Stack) record() Record {
	def := s.Definition()
	return Record{
		Name:      s.name,
		Version:   s.version,
		Order:     s.Order(),
		Transport: def.Transport,
		Layers:    def.Protocols,
		Relay:     def.Relay,
	}
}

// Reconcile 把持久化记录恢复为协议栈
//
// 顺序来源按优先级:
//  1. 显式 Order，必须与协议层集合完全一致
//  2. 有序的 Layers 数组
//  3. LayerMap 只有一个协议层时顺序唯一；多于一个时返回 ErrAmbiguousOrder
func Reconcile(rec Record) (*Stack, error) {
	if rec.Name == "" {
		return nil, fmt.Errorf("%w: record without name", ErrInvalidStack)
	}

	byName := make(map[string]types.ProtocolDefinition, len(rec.Layers)+len(rec.LayerMap))
	for _, p := range rec.Layers {
		if _, dup := byName[p.Type]; dup {
			return nil, fmt.Errorf("%w: %s in stack %s", ErrDuplicateLayer, p.Type, rec.Name)
		}
		byName[p.Type] = p
	}
	for name, p := range rec.LayerMap {
		if p.Type == "" {
			p.Type = name
		}
		if _, dup := byName[p.Type]; dup && len(rec.Layers) > 0 {
			continue
		}
		byName[p.Type] = p
	}

	var order []string
	switch {
	case len(rec.Order) > 0:
		if len(rec.Order) != len(byName) {
			return nil, fmt.Errorf("%w: stack %s has %d names for %d layers", ErrCorruptRecord, rec.Name, len(rec.Order), len(byName))
		}
		order = rec.Order
	case len(rec.Layers) > 0:
		order = make([]string, len(rec.Layers))
		for i, p := range rec.Layers {
			order[i] = p.Type
		}
		if len(order) != len(byName) {
			return nil, fmt.Errorf("%w: stack %s mixes ordered and unordered layers", ErrAmbiguousOrder, rec.Name)
		}
	case len(rec.LayerMap) > 1:
		names := make([]string, 0, len(rec.LayerMap))
		for name := range rec.LayerMap {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: stack %s has unordered layers %v", ErrAmbiguousOrder, rec.Name, names)
	default:
		for name := range byName {
			order = append(order, name)
		}
	}

	def := &types.StackDefinition{
		Name:      rec.Name,
		Transport: rec.Transport,
		Relay:     rec.Relay,
		Protocols: make([]types.ProtocolDefinition, 0, len(order)),
	}
	for _, name := range order {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: stack %s orders unknown layer %s", ErrCorruptRecord, rec.Name, name)
		}
		def.Protocols = append(def.Protocols, p)
	}
	return newStack(def, rec.Version)
}
