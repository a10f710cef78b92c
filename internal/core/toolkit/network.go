package toolkit

import (
	"sync"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// Network 进程内回环网络
//
// 按集群名维护成员列表，第一个成员为协调者。
type Network struct {
	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	viewID  uint64
	members []member
}

// member 组成员（普通通道或跨站点桥接通道）
type member interface {
	address() types.Address
	viewChanged(v *types.View)
	deliver(p packet)
}

// packet 网络上传递的消息，fork 非空时投递给同名分叉通道
type packet struct {
	msg  *types.Message
	fork string
}

// NewNetwork 创建回环网络
func NewNetwork() *Network {
	return &Network{groups: make(map[string]*group)}
}

// join 加入集群并向所有成员安装新视图
func (n *Network) join(cluster string, m member) *types.View {
	n.mu.Lock()
	g, ok := n.groups[cluster]
	if !ok {
		g = &group{}
		n.groups[cluster] = g
	}
	g.members = append(g.members, m)
	v, members := g.nextView()
	n.mu.Unlock()

	for _, mm := range members {
		mm.viewChanged(v)
	}
	return v
}

// leave 离开集群，剩余成员安装新视图
func (n *Network) leave(cluster string, m member) {
	n.mu.Lock()
	g, ok := n.groups[cluster]
	if !ok {
		n.mu.Unlock()
		return
	}
	for i, mm := range g.members {
		if mm == m {
			g.members = append(g.members[:i:i], g.members[i+1:]...)
			break
		}
	}
	if len(g.members) == 0 {
		delete(n.groups, cluster)
		n.mu.Unlock()
		return
	}
	v, members := g.nextView()
	n.mu.Unlock()

	for _, mm := range members {
		mm.viewChanged(v)
	}
}

func (g *group) nextView() (*types.View, []member) {
	g.viewID++
	v := &types.View{ID: g.viewID, Members: make([]types.Address, len(g.members))}
	for i, m := range g.members {
		v.Members[i] = m.address()
	}
	return v, append([]member(nil), g.members...)
}

// send 组播（Dest 为零值）或单播
//
// 返回接收者数量。
func (n *Network) send(cluster string, p packet) int {
	n.mu.Lock()
	g, ok := n.groups[cluster]
	var targets []member
	if ok {
		for _, m := range g.members {
			if p.msg.Dest.IsZero() || m.address() == p.msg.Dest {
				targets = append(targets, m)
			}
		}
	}
	n.mu.Unlock()

	for _, m := range targets {
		m.deliver(p)
	}
	return len(targets)
}

// Clusters 返回当前有成员的集群名
func (n *Network) Clusters() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.groups))
	for name := range n.groups {
		out = append(out, name)
	}
	return out
}

// coordinator 返回集群协调者，集群不存在时返回 nil
func (n *Network) coordinator(cluster string) member {
	n.mu.Lock()
	defer n.mu.Unlock()
	if g, ok := n.groups[cluster]; ok && len(g.members) > 0 {
		return g.members[0]
	}
	return nil
}
