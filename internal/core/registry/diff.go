package registry

import (
	"maps"
	"reflect"
	"slices"
)

// ChangeSet 两个协议栈版本之间的差异
type ChangeSet struct {
	Stack string

	AddedLayers   []string
	RemovedLayers []string

	// ChangedLayers 两个版本都有但定义不同的协议层
	ChangedLayers []string

	// Reordered 共同协议层的相对顺序发生变化
	Reordered bool

	TransportChanged bool
	RelayChanged     bool
}

// Empty 是否没有任何差异
func (c ChangeSet) Empty() bool {
	return len(c.AddedLayers) == 0 && len(c.RemovedLayers) == 0 && len(c.ChangedLayers) == 0 &&
		!c.Reordered && !c.TransportChanged && !c.RelayChanged
}

// Diff 计算从 old 到 cur 的差异；old 为 nil 表示新建
func Diff(old, cur *Stack) ChangeSet {
	cs := ChangeSet{Stack: cur.name}
	if old == nil {
		cs.AddedLayers = cur.Order()
		cs.TransportChanged = cur.transport != nil
		cs.RelayChanged = cur.relay != nil
		return cs
	}

	var commonOld, commonNew []string
	for _, name := range old.order {
		if _, ok := cur.layers[name]; ok {
			commonOld = append(commonOld, name)
		} else {
			cs.RemovedLayers = append(cs.RemovedLayers, name)
		}
	}
	for _, name := range cur.order {
		before, ok := old.layers[name]
		if !ok {
			cs.AddedLayers = append(cs.AddedLayers, name)
			continue
		}
		commonNew = append(commonNew, name)
		after := cur.layers[name]
		if before.SocketBinding != after.SocketBinding || before.Module != after.Module || !maps.Equal(before.Properties, after.Properties) {
			cs.ChangedLayers = append(cs.ChangedLayers, name)
		}
	}
	cs.Reordered = !slices.Equal(commonOld, commonNew)
	cs.TransportChanged = !reflect.DeepEqual(old.transport, cur.transport)
	cs.RelayChanged = !reflect.DeepEqual(old.relay, cur.relay)
	return cs
}
