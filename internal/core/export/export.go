package export

import (
	"sort"
	"strconv"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// Export 按线序把协议栈定义展开为 add 命令
func Export(def *types.StackDefinition) []Command {
	if def == nil {
		return nil
	}
	stack := address(KeyStack, def.Name)
	cmds := []Command{{Op: OpAdd, Address: stack, Params: map[string]string{}}}

	if t := def.Transport; t != nil {
		at := append(clone(stack), Segment{KeyTransport, t.Type})
		cmds = append(cmds, Command{Op: OpAdd, Address: at, Params: transportParams(t)})
		cmds = append(cmds, properties(at, t.Properties)...)
	}

	for _, p := range def.Protocols {
		params := map[string]string{"type": p.Type}
		setIf(params, "socket_binding", p.SocketBinding)
		setIf(params, "module", p.Module)
		cmds = append(cmds, Command{Op: OpAddProtocol, Address: clone(stack), Params: params})
		cmds = append(cmds, properties(append(clone(stack), Segment{KeyProtocol, p.Type}), p.Properties)...)
	}

	if r := def.Relay; r != nil {
		ar := append(clone(stack), Segment{KeyRelay, RelayType})
		cmds = append(cmds, Command{Op: OpAdd, Address: ar, Params: map[string]string{"site": r.Site}})
		for _, rs := range r.RemoteSites {
			cmds = append(cmds, Command{
				Op:      OpAdd,
				Address: append(clone(ar), Segment{KeyRemoteSite, rs.Name}),
				Params:  map[string]string{"channel": rs.Channel, "stack": rs.Stack},
			})
		}
		cmds = append(cmds, properties(ar, r.Properties)...)
	}
	return cmds
}

// RelayType 中继层在地址中的名称
const RelayType = "relay.RELAY2"

func transportParams(t *types.TransportDefinition) map[string]string {
	params := map[string]string{"type": t.Type}
	setIf(params, "shared", t.Shared)
	setIf(params, "socket_binding", t.SocketBinding)
	setIf(params, "diagnostics_socket_binding", t.DiagnosticsSocketBinding)
	setIf(params, "default_executor", t.DefaultExecutor)
	setIf(params, "oob_executor", t.OOBExecutor)
	setIf(params, "timer_executor", t.TimerExecutor)
	setIf(params, "thread_factory", t.ThreadFactory)
	setIf(params, "site", t.Site)
	setIf(params, "rack", t.Rack)
	setIf(params, "machine", t.Machine)
	setIf(params, "module", t.Module)
	return params
}

// properties 按键排序生成属性命令
func properties(owner []Segment, props map[string]string) []Command {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cmds := make([]Command, len(keys))
	for i, k := range keys {
		cmds[i] = Command{
			Op:      OpAdd,
			Address: append(clone(owner), Segment{KeyProperty, k}),
			Params:  map[string]string{"value": props[k]},
		}
	}
	return cmds
}

func setIf(params map[string]string, key, v string) {
	if v != "" {
		params[key] = v
	}
}

func clone(s []Segment) []Segment {
	return append(make([]Segment, 0, len(s)+2), s...)
}

// Summary 命令序列的简要统计，如 "12 commands, 3 protocols"
func Summary(cmds []Command) string {
	protocols := 0
	for _, c := range cmds {
		if c.Op == OpAddProtocol {
			protocols++
		}
	}
	return strconv.Itoa(len(cmds)) + " commands, " + strconv.Itoa(protocols) + " protocols"
}
