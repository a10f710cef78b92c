package toolkit

import (
	"strconv"
	"strings"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// ============================================================================
//                              内置协议层类型
// ============================================================================

// RegisterBuiltins 向目录注册工具包支持的全部协议层类型与文本转换器
func RegisterBuiltins(cat *catalog.Catalog) {
	cat.RegisterTextConverter("view", viewText)
	cat.RegisterTextConverter("address", addressText)

	cat.MustRegister(
		&catalog.LayerType{
			Name: "Protocol",
			Kind: catalog.KindAbstract,
			Properties: props(
				"stats", "bool", "true",
				"ergonomics", "bool", "true",
				"id", "int16", "",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"name":  {Class: catalog.ClassText, Get: baseAttr(func(l *Layer) any { return l.name })},
				"id":    {Class: catalog.ClassInt16, Get: baseAttr(func(l *Layer) any { return l.id })},
				"stats": settingAttr("stats", catalog.ClassBool),
			},
		},
		&catalog.LayerType{
			Name:   "TP",
			Kind:   catalog.KindAbstract,
			Parent: "Protocol",
			Properties: props(
				"bind_addr", "string", "",
				"bind_port", "int32", "",
				"port_range", "int32", "50",
				"max_bundle_size", "int32", "64000",
				"bundler_type", "string", "transfer-queue",
				"thread_pool.min_threads", "int32", "0",
				"thread_pool.max_threads", "int32", "100",
				"thread_pool.keep_alive_time", "duration", "30000",
				"log_discard_msgs", "bool", "true",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"num_msgs_sent":      counterAttr(cMsgsSent, catalog.ClassInt64),
				"num_msgs_received":  counterAttr(cMsgsReceived, catalog.ClassInt64),
				"num_bytes_sent":     counterAttr(cBytesSent, catalog.ClassInt64),
				"num_bytes_received": counterAttr(cBytesReceived, catalog.ClassInt64),
				"num_dropped_msgs":   counterAttr(cDroppedDelivered, catalog.ClassInt64),
				"max_bundle_size":    settingAttr("max_bundle_size", catalog.ClassInt32),
				"bind_addr":          {Class: catalog.ClassText, Get: baseAttr(func(l *Layer) any { return l.BindAddress() })},
				"cluster_name": {Class: catalog.ClassText, Get: func(p interfaces.Protocol) (any, bool) {
					t, ok := p.(*Transport)
					if !ok {
						return nil, false
					}
					return t.ClusterName(), true
				}},
				"local_address": {Class: catalog.ClassOpaque, Converter: "address", Get: func(p interfaces.Protocol) (any, bool) {
					t, ok := p.(*Transport)
					if !ok {
						return nil, false
					}
					if a := t.local.Load(); a != nil {
						return *a, true
					}
					return nil, true
				}},
			},
		},
		&catalog.LayerType{
			Name:   "UDP",
			Kind:   catalog.KindTransport,
			Parent: "TP",
			Properties: props(
				"ip_ttl", "int16", "8",
				"tos", "int8", "8",
				"mcast_addr", "string", "228.8.8.8",
				"mcast_port", "int32", "45588",
				"ip_mcast", "bool", "true",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"ip_ttl":     settingAttr("ip_ttl", catalog.ClassInt16),
				"tos":        settingAttr("tos", catalog.ClassInt8),
				"mcast_addr": settingAttr("mcast_addr", catalog.ClassText),
				"mcast_port": settingAttr("mcast_port", catalog.ClassInt32),
				"ip_mcast":   settingAttr("ip_mcast", catalog.ClassBool),
			},
		},
		&catalog.LayerType{
			Name:   "TCP",
			Kind:   catalog.KindTransport,
			Parent: "TP",
			Properties: props(
				"recv_buf_size", "int32", "",
				"send_buf_size", "int32", "",
				"sock_conn_timeout", "duration", "2000",
				"peer_addr_read_timeout", "duration", "1000",
				"tcp_nodelay", "bool", "true",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"sock_conn_timeout": settingAttr("sock_conn_timeout", catalog.ClassInt64),
				"tcp_nodelay":       settingAttr("tcp_nodelay", catalog.ClassBool),
			},
		},
		&catalog.LayerType{
			Name:   "TUNNEL",
			Kind:   catalog.KindTransport,
			Parent: "TP",
			Properties: props(
				"gossip_router_hosts", "list", "",
				"reconnect_interval", "duration", "5000",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"gossip_router_hosts": settingAttr("gossip_router_hosts", catalog.ClassText),
			},
		},
		&catalog.LayerType{
			Name:   "Discovery",
			Kind:   catalog.KindAbstract,
			Parent: "Protocol",
			Properties: props(
				"timeout", "duration", "3000",
				"num_discovery_runs", "int32", "1",
				"break_on_coord_rsp", "bool", "true",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"timeout":                settingAttr("timeout", catalog.ClassInt64),
				"num_discovery_runs":     settingAttr("num_discovery_runs", catalog.ClassInt32),
				"num_discovery_requests": counterAttr(cDiscoveryRuns, catalog.ClassInt32),
			},
		},
		&catalog.LayerType{Name: "PING", Kind: catalog.KindProtocol, Parent: "Discovery"},
		&catalog.LayerType{
			Name:   "MPING",
			Kind:   catalog.KindProtocol,
			Parent: "Discovery",
			Properties: props(
				"mcast_addr", "string", "230.5.6.7",
				"mcast_port", "int32", "7555",
				"ip_ttl", "int16", "8",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"mcast_port": settingAttr("mcast_port", catalog.ClassInt32),
			},
		},
		&catalog.LayerType{
			Name:   "TCPPING",
			Kind:   catalog.KindProtocol,
			Parent: "Discovery",
			Properties: props(
				"initial_hosts", "list", "",
				"port_range", "int32", "1",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"initial_hosts": settingAttr("initial_hosts", catalog.ClassText),
			},
		},
		&catalog.LayerType{
			Name:   "MERGE3",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"min_interval", "duration", "10000",
				"max_interval", "duration", "30000",
				"max_participants_in_merge", "int32", "100",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"min_interval":     settingAttr("min_interval", catalog.ClassInt64),
				"max_interval":     settingAttr("max_interval", catalog.ClassInt64),
				"num_merge_events": counterAttr(cMergeEvents, catalog.ClassInt32),
			},
		},
		&catalog.LayerType{
			Name:   "FD_SOCK",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"start_port", "int32", "",
				"port_range", "int32", "50",
				"suspect_msg_interval", "duration", "5000",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"num_suspect_events": counterAttr(cSuspectEvents, catalog.ClassInt32),
				"bind_addr":          {Class: catalog.ClassText, Get: baseAttr(func(l *Layer) any { return l.BindAddress() })},
			},
		},
		&catalog.LayerType{
			Name:   "FD",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"timeout", "duration", "3000",
				"max_tries", "int32", "3",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"timeout":             settingAttr("timeout", catalog.ClassInt64),
				"max_tries":           settingAttr("max_tries", catalog.ClassInt32),
				"num_heartbeats_sent": counterAttr(cHeartbeatsSent, catalog.ClassInt64),
				"num_suspect_events":  counterAttr(cSuspectEvents, catalog.ClassInt32),
			},
		},
		&catalog.LayerType{
			Name:   "FD_ALL",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"timeout", "duration", "40000",
				"interval", "duration", "8000",
				"timeout_check_interval", "duration", "2000",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"timeout":             settingAttr("timeout", catalog.ClassInt64),
				"interval":            settingAttr("interval", catalog.ClassInt64),
				"num_heartbeats_sent": counterAttr(cHeartbeatsSent, catalog.ClassInt64),
			},
		},
		&catalog.LayerType{
			Name:   "VERIFY_SUSPECT",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"timeout", "duration", "2000",
				"num_msgs", "int32", "1",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"timeout":  settingAttr("timeout", catalog.ClassInt64),
				"num_msgs": settingAttr("num_msgs", catalog.ClassInt32),
			},
		},
		&catalog.LayerType{
			Name:   "pbcast.NAKACK2",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"use_mcast_xmit", "bool", "false",
				"xmit_interval", "duration", "500",
				"discard_delivered_msgs", "bool", "true",
				"xmit_table_num_rows", "int32", "100",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"num_messages_sent":     counterAttr(cMsgsSent, catalog.ClassInt64),
				"num_messages_received": counterAttr(cMsgsReceived, catalog.ClassInt64),
				"use_mcast_xmit":        settingAttr("use_mcast_xmit", catalog.ClassBool),
				"xmit_interval":         settingAttr("xmit_interval", catalog.ClassInt64),
			},
		},
		&catalog.LayerType{
			Name:   "UNICAST3",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"xmit_interval", "duration", "500",
				"conn_expiry_timeout", "duration", "0",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"num_messages_sent":     counterAttr(cMsgsSent, catalog.ClassInt64),
				"num_messages_received": counterAttr(cMsgsReceived, catalog.ClassInt64),
				"xmit_interval":         settingAttr("xmit_interval", catalog.ClassInt64),
			},
		},
		&catalog.LayerType{
			Name:   "pbcast.STABLE",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"desired_avg_gossip", "duration", "50000",
				"max_bytes", "int64", "4000000",
				"stability_delay", "duration", "0",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"desired_avg_gossip":   settingAttr("desired_avg_gossip", catalog.ClassInt64),
				"max_bytes":            settingAttr("max_bytes", catalog.ClassInt64),
				"num_stable_msgs_sent": counterAttr(cStableMsgs, catalog.ClassInt32),
			},
		},
		&catalog.LayerType{
			Name:   "pbcast.GMS",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"join_timeout", "duration", "2000",
				"print_local_addr", "bool", "true",
				"view_bundling", "bool", "true",
				"max_join_attempts", "int32", "10",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"view": {Class: catalog.ClassOpaque, Converter: "view", Get: gmsAttr(func(g *GMS) any {
					if v := g.View(); v != nil {
						return v
					}
					return nil
				})},
				"members": {Class: catalog.ClassText, Get: gmsAttr(func(g *GMS) any {
					v := g.View()
					if v == nil {
						return nil
					}
					names := make([]string, len(v.Members))
					for i, m := range v.Members {
						names[i] = m.String()
					}
					return strings.Join(names, ",")
				})},
				"is_coord":        {Class: catalog.ClassBool, Get: gmsAttr(func(g *GMS) any { return g.IsCoordinator() })},
				"number_of_views": counterAttr(cViews, catalog.ClassInt32),
				"join_timeout":    settingAttr("join_timeout", catalog.ClassInt64),
			},
		},
		&catalog.LayerType{
			Name:   "FlowControl",
			Kind:   catalog.KindAbstract,
			Parent: "Protocol",
			Properties: props(
				"max_credits", "int64", "4000000",
				"min_threshold", "float32", "0.4",
				"max_block_time", "duration", "5000",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"max_credits":         settingAttr("max_credits", catalog.ClassInt64),
				"min_threshold":       settingAttr("min_threshold", catalog.ClassFloat32),
				"number_of_blockings": counterAttr(cBlockings, catalog.ClassInt32),
			},
		},
		&catalog.LayerType{Name: "UFC", Kind: catalog.KindProtocol, Parent: "FlowControl"},
		&catalog.LayerType{Name: "MFC", Kind: catalog.KindProtocol, Parent: "FlowControl"},
		&catalog.LayerType{
			Name:   "FRAG2",
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Properties: props(
				"frag_size", "int32", "60000",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"frag_size":                settingAttr("frag_size", catalog.ClassInt32),
				"number_of_sent_fragments": counterAttr(cFragments, catalog.ClassInt64),
			},
		},
		&catalog.LayerType{
			Name:          "pbcast.STATE_TRANSFER",
			Kind:          catalog.KindProtocol,
			Parent:        "Protocol",
			StateTransfer: true,
			Attributes: map[string]catalog.AttributeSpec{
				"number_of_state_requests": counterAttr(cStateRequests, catalog.ClassInt64),
				"average_state_size": {Class: catalog.ClassFloat64, Get: baseAttr(func(l *Layer) any {
					if n := l.Counter(cStateRequests); n > 0 {
						return float64(l.Counter(cBytesReceived)) / float64(n)
					}
					return float64(0)
				})},
			},
		},
		&catalog.LayerType{
			Name:   "relay.RELAY2",
			Kind:   catalog.KindRelay,
			Parent: "Protocol",
			Properties: props(
				"max_site_masters", "int32", "1",
				"can_become_site_master", "bool", "true",
				"relay_multicasts", "bool", "true",
				"async_relay_creation", "bool", "true",
			),
			Attributes: map[string]catalog.AttributeSpec{
				"site":                       {Class: catalog.ClassText, Get: relayAttr(func(r *Relay) any { return r.Site() })},
				"remote_sites":               {Class: catalog.ClassText, Get: relayAttr(func(r *Relay) any { return strings.Join(r.RemoteSites(), ",") })},
				"num_bridges":                {Class: catalog.ClassInt32, Get: relayAttr(func(r *Relay) any { return r.Bridges() })},
				"num_forwarded_to_remote_dc": counterAttr(cForwarded, catalog.ClassInt64),
				"max_site_masters":           settingAttr("max_site_masters", catalog.ClassInt32),
			},
		},
		&catalog.LayerType{
			Name:   ForkType,
			Kind:   catalog.KindProtocol,
			Parent: "Protocol",
			Attributes: map[string]catalog.AttributeSpec{
				"fork_stacks": {Class: catalog.ClassText, Get: forkAttr(func(f *Fork) any { return strings.Join(f.Forks(), ",") })},
				"number_of_fork_stacks": {Class: catalog.ClassInt32, Get: forkAttr(func(f *Fork) any {
					return int32(len(f.Forks()))
				})},
			},
		},
	)
}

// props 以 (名称, 转换器, 默认值) 三元组构造属性表
func props(triples ...string) map[string]catalog.PropertySpec {
	out := make(map[string]catalog.PropertySpec, len(triples)/3)
	for i := 0; i+2 < len(triples); i += 3 {
		out[triples[i]] = catalog.PropertySpec{Converter: triples[i+1], Default: triples[i+2]}
	}
	return out
}

// ============================================================================
//                              访问函数
// ============================================================================

func baseAttr(fn func(l *Layer) any) catalog.Accessor {
	return func(p interfaces.Protocol) (any, bool) {
		l, ok := p.(layer)
		if !ok {
			return nil, false
		}
		return fn(l.base()), true
	}
}

func gmsAttr(fn func(g *GMS) any) catalog.Accessor {
	return func(p interfaces.Protocol) (any, bool) {
		g, ok := p.(*GMS)
		if !ok {
			return nil, false
		}
		return fn(g), true
	}
}

func relayAttr(fn func(r *Relay) any) catalog.Accessor {
	return func(p interfaces.Protocol) (any, bool) {
		r, ok := p.(*Relay)
		if !ok {
			return nil, false
		}
		return fn(r), true
	}
}

func forkAttr(fn func(f *Fork) any) catalog.Accessor {
	return func(p interfaces.Protocol) (any, bool) {
		f, ok := p.(*Fork)
		if !ok {
			return nil, false
		}
		return fn(f), true
	}
}

// counterAttr 读取原子计数器，按声明类型截断
func counterAttr(name string, class catalog.Class) catalog.AttributeSpec {
	return catalog.AttributeSpec{Class: class, Get: baseAttr(func(l *Layer) any {
		n := l.Counter(name)
		if class == catalog.ClassInt32 {
			return int32(n)
		}
		return n
	})}
}

// settingAttr 读取只读设置并解析为声明类型，设置不存在时值为 nil
func settingAttr(name string, class catalog.Class) catalog.AttributeSpec {
	return catalog.AttributeSpec{Class: class, Get: baseAttr(func(l *Layer) any {
		raw, ok := l.Setting(name)
		if !ok {
			return nil
		}
		return typed(raw, class)
	})}
}

func typed(raw string, class catalog.Class) any {
	switch class {
	case catalog.ClassBool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case catalog.ClassInt8:
		if n, err := strconv.ParseInt(raw, 10, 8); err == nil {
			return int8(n)
		}
	case catalog.ClassInt16:
		if n, err := strconv.ParseInt(raw, 10, 16); err == nil {
			return int16(n)
		}
	case catalog.ClassInt32:
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
			return int32(n)
		}
	case catalog.ClassInt64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case catalog.ClassFloat32:
		if f, err := strconv.ParseFloat(raw, 32); err == nil {
			return float32(f)
		}
	case catalog.ClassFloat64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case catalog.ClassText:
		return raw
	}
	return nil
}

// ============================================================================
//                              文本转换器
// ============================================================================

func viewText(v any) (string, bool) {
	view, ok := v.(*types.View)
	if !ok || view == nil {
		return "", false
	}
	return view.String(), true
}

func addressText(v any) (string, bool) {
	switch a := v.(type) {
	case types.Address:
		return a.String(), !a.IsZero()
	case *types.Address:
		if a == nil {
			return "", false
		}
		return a.String(), true
	}
	return "", false
}
