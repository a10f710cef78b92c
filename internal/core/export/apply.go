package export

import (
	"fmt"
	"maps"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// Apply 按顺序执行命令，重建协议栈定义
//
// 第一条命令必须是 add /stack=S；协议层顺序取自 add-protocol 命令的顺序。
func Apply(cmds []Command) (*types.StackDefinition, error) {
	if len(cmds) == 0 || cmds[0].Op != OpAdd || cmds[0].path() != KeyStack {
		return nil, fmt.Errorf("%w: first command must add a stack", ErrInvalidCommand)
	}
	def := &types.StackDefinition{Name: cmds[0].value(0)}
	if def.Name == "" {
		return nil, fmt.Errorf("%w: empty stack name", ErrInvalidCommand)
	}

	for i, c := range cmds[1:] {
		if c.value(0) != def.Name {
			return nil, fmt.Errorf("%w: command %d targets stack %q", ErrInvalidCommand, i+1, c.value(0))
		}
		if err := apply(def, c); err != nil {
			return nil, fmt.Errorf("command %d %s: %w", i+1, c, err)
		}
	}
	return def, nil
}

func apply(def *types.StackDefinition, c Command) error {
	switch {
	case c.Op == OpAddProtocol && c.path() == KeyStack:
		pd := types.ProtocolDefinition{
			Type:          c.Params["type"],
			SocketBinding: c.Params["socket_binding"],
			Module:        c.Params["module"],
		}
		if pd.Type == "" {
			return fmt.Errorf("%w: protocol without type", ErrInvalidCommand)
		}
		for _, p := range def.Protocols {
			if p.Type == pd.Type {
				return fmt.Errorf("%w: duplicate protocol %s", ErrInvalidCommand, pd.Type)
			}
		}
		def.Protocols = append(def.Protocols, pd)
		return nil
	case c.Op != OpAdd:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, c.Op)
	}

	switch c.path() {
	case "stack/transport":
		def.Transport = &types.TransportDefinition{
			Type:                     c.value(1),
			Shared:                   c.Params["shared"],
			SocketBinding:            c.Params["socket_binding"],
			DiagnosticsSocketBinding: c.Params["diagnostics_socket_binding"],
			DefaultExecutor:          c.Params["default_executor"],
			OOBExecutor:              c.Params["oob_executor"],
			TimerExecutor:            c.Params["timer_executor"],
			ThreadFactory:            c.Params["thread_factory"],
			Site:                     c.Params["site"],
			Rack:                     c.Params["rack"],
			Machine:                  c.Params["machine"],
			Module:                   c.Params["module"],
		}
	case "stack/transport/property":
		if def.Transport == nil || def.Transport.Type != c.value(1) {
			return fmt.Errorf("%w: transport %s not added", ErrInvalidCommand, c.value(1))
		}
		def.Transport.Properties = setProperty(def.Transport.Properties, c)
	case "stack/protocol/property":
		idx := -1
		for i, p := range def.Protocols {
			if p.Type == c.value(1) {
				idx = i
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: protocol %s not added", ErrInvalidCommand, c.value(1))
		}
		def.Protocols[idx].Properties = setProperty(def.Protocols[idx].Properties, c)
	case "stack/relay":
		def.Relay = &types.RelayDefinition{Site: c.Params["site"]}
	case "stack/relay/remote-site":
		if def.Relay == nil {
			return fmt.Errorf("%w: relay not added", ErrInvalidCommand)
		}
		def.Relay.RemoteSites = append(def.Relay.RemoteSites, types.RemoteSiteDefinition{
			Name:    c.value(2),
			Channel: c.Params["channel"],
			Stack:   c.Params["stack"],
		})
	case "stack/relay/property":
		if def.Relay == nil {
			return fmt.Errorf("%w: relay not added", ErrInvalidCommand)
		}
		def.Relay.Properties = setProperty(def.Relay.Properties, c)
	default:
		return fmt.Errorf("%w: unknown address %s", ErrInvalidCommand, c.path())
	}
	return nil
}

func setProperty(props map[string]string, c Command) map[string]string {
	props = maps.Clone(props)
	if props == nil {
		props = make(map[string]string)
	}
	props[c.Address[len(c.Address)-1].Value] = c.Params["value"]
	return props
}
