package toolkit

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// 计数器名
const (
	cMsgsSent         = "msgs_sent"
	cMsgsReceived     = "msgs_received"
	cBytesSent        = "bytes_sent"
	cBytesReceived    = "bytes_received"
	cViews            = "views"
	cHeartbeatsSent   = "heartbeats_sent"
	cSuspectEvents    = "suspect_events"
	cStateRequests    = "state_requests"
	cFragments        = "fragments"
	cForwarded        = "forwarded"
	cDiscoveryRuns    = "discovery_runs"
	cStableMsgs       = "stable_msgs"
	cBlockings        = "blockings"
	cMergeEvents      = "merge_events"
	cDroppedDelivered = "dropped"
)

var counterNames = []string{
	cMsgsSent, cMsgsReceived, cBytesSent, cBytesReceived, cViews, cHeartbeatsSent,
	cSuspectEvents, cStateRequests, cFragments, cForwarded, cDiscoveryRuns,
	cStableMsgs, cBlockings, cMergeEvents, cDroppedDelivered,
}

// layer 协议链中的协议层
type layer interface {
	interfaces.Protocol
	base() *Layer
	onSend(msg *types.Message)
	onReceive(msg *types.Message)
}

// Layer 协议层基础实现
//
// settings 在创建时由属性与默认值合成，之后只读。
type Layer struct {
	name     string
	kind     catalog.Kind
	id       int16
	settings map[string]string
	counters map[string]*atomic.Int64

	// binding 协议层的套接字绑定（可为空）
	binding interfaces.SocketBinding
}

var _ interfaces.Protocol = (*Layer)(nil)

func newLayer(chain []*catalog.LayerType, position int, props map[string]string) *Layer {
	settings := make(map[string]string)
	// 从最外层父类型开始，子类型默认值覆盖父类型
	for i := len(chain) - 1; i >= 0; i-- {
		for k, spec := range chain[i].Properties {
			if spec.Default != "" {
				settings[k] = spec.Default
			}
		}
	}
	for k, v := range props {
		settings[k] = v
	}

	counters := make(map[string]*atomic.Int64, len(counterNames))
	for _, n := range counterNames {
		counters[n] = new(atomic.Int64)
	}

	id := int16(position + 1)
	if v, ok := settings["id"]; ok {
		if n, err := strconv.ParseInt(v, 10, 16); err == nil {
			id = int16(n)
		}
	}

	return &Layer{
		name:     chain[0].Name,
		kind:     chain[0].Kind,
		id:       id,
		settings: settings,
		counters: counters,
	}
}

// Name 协议层类型名
func (l *Layer) Name() string { return l.name }

// ID 协议层 ID
func (l *Layer) ID() int16 { return l.id }

// BindAddress 绑定地址，未配置套接字绑定时为空
func (l *Layer) BindAddress() string {
	if l.binding == nil {
		return ""
	}
	return l.binding.Address()
}

// Setting 返回只读设置
func (l *Layer) Setting(name string) (string, bool) {
	v, ok := l.settings[name]
	return v, ok
}

// Counter 返回计数器当前值
func (l *Layer) Counter(name string) int64 {
	if c, ok := l.counters[name]; ok {
		return c.Load()
	}
	return 0
}

func (l *Layer) base() *Layer { return l }

func (l *Layer) add(name string, delta int64) {
	if c, ok := l.counters[name]; ok {
		c.Add(delta)
	}
}

// statsEnabled stats=false 时不累计消息计数
func (l *Layer) statsEnabled() bool {
	v, ok := l.settings["stats"]
	return !ok || v != "false"
}

// durationSetting 读取毫秒设置
func (l *Layer) durationSetting(name string, def time.Duration) time.Duration {
	if v, ok := l.settings[name]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func (l *Layer) intSetting(name string, def int64) int64 {
	if v, ok := l.settings[name]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// onSend 消息自上而下经过本层
func (l *Layer) onSend(msg *types.Message) {
	if !l.statsEnabled() {
		return
	}
	l.add(cMsgsSent, 1)
	l.add(cBytesSent, int64(msg.Size()))
}

// onReceive 消息自下而上经过本层
func (l *Layer) onReceive(msg *types.Message) {
	if !l.statsEnabled() {
		return
	}
	l.add(cMsgsReceived, 1)
	l.add(cBytesReceived, int64(msg.Size()))
}

// ============================================================================
//                              特定协议层
// ============================================================================

// Transport 传输层
type Transport struct {
	*Layer
	cluster atomic.Pointer[string]
	local   atomic.Pointer[types.Address]
}

// ClusterName 当前集群名
func (t *Transport) ClusterName() string {
	if c := t.cluster.Load(); c != nil {
		return *c
	}
	return ""
}

// GMS 组成员管理层
type GMS struct {
	*Layer
	view  atomic.Pointer[types.View]
	local atomic.Pointer[types.Address]
}

// View 当前视图，未连接时为 nil
func (g *GMS) View() *types.View {
	return g.view.Load()
}

// IsCoordinator 本地成员是否为协调者
func (g *GMS) IsCoordinator() bool {
	v := g.view.Load()
	a := g.local.Load()
	return v != nil && a != nil && v.Coordinator() == *a
}

func (g *GMS) installView(v *types.View) {
	g.view.Store(v)
	if v != nil {
		g.add(cViews, 1)
	}
}

// Frag 分片层
type Frag struct {
	*Layer
}

func (f *Frag) onSend(msg *types.Message) {
	f.Layer.onSend(msg)
	size := int64(f.intSetting("frag_size", 60000))
	if size > 0 && int64(msg.Size()) > size {
		f.add(cFragments, (int64(msg.Size())+size-1)/size)
	}
}

// StateTransfer 状态传输层
type StateTransfer struct {
	*Layer
}

// newProtocolLayer 按类型名选择具体实现
func newProtocolLayer(chain []*catalog.LayerType, position int, pc types.ProtocolConfiguration) layer {
	base := newLayer(chain, position, pc.Properties)
	switch {
	case base.kind == catalog.KindTransport:
		return &Transport{Layer: base}
	case base.name == "pbcast.GMS":
		return &GMS{Layer: base}
	case base.name == "FRAG2":
		return &Frag{Layer: base}
	case base.name == "FORK":
		return newForkLayer(base)
	case base.kind == catalog.KindRelay:
		return &Relay{Layer: base}
	case chain[0].StateTransfer:
		return &StateTransfer{Layer: base}
	default:
		return base
	}
}
