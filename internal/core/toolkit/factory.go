package toolkit

import (
	"context"
	"fmt"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// SiteConnector 获取远端站点的对端协议栈工厂
//
// 在第一次跨站点发送时调用；release 在本地通道关闭时调用。
type SiteConnector func(ctx context.Context, site string) (factory interfaces.ChannelFactory, release func(), err error)

// Resources 协议栈引用的外部资源
//
// 可选资源为 nil 时协议层使用内置行为。
type Resources struct {
	// Bindings 按协议层类型名索引的套接字绑定，传输层也在其中
	Bindings map[string]interfaces.SocketBinding

	Diagnostics     interfaces.SocketBinding
	DefaultExecutor interfaces.Executor
	OOBExecutor     interfaces.Executor
	Timer           interfaces.ScheduledExecutor
	ThreadFactory   interfaces.ThreadFactory

	Sites SiteConnector
}

// Factory 通道工厂
type Factory struct {
	catalog *catalog.Catalog
	network *Network
	config  *types.StackConfiguration
	res     Resources

	// chains 每个协议层（自下而上）的类型链
	chains [][]*catalog.LayerType
	layers []types.ProtocolConfiguration
}

var _ interfaces.ChannelFactory = (*Factory)(nil)

// NewFactory 创建通道工厂
//
// 配置中不能再有延迟的表达式属性。
func NewFactory(cat *catalog.Catalog, network *Network, cfg *types.StackConfiguration, res Resources) (*Factory, error) {
	if cfg.HasDeferred() {
		return nil, fmt.Errorf("toolkit: stack %s has unresolved properties", cfg.Name)
	}

	layers := make([]types.ProtocolConfiguration, 0, len(cfg.Protocols)+2)
	layers = append(layers, cfg.Transport.ProtocolConfiguration)
	layers = append(layers, cfg.Protocols...)
	if cfg.Relay != nil {
		layers = append(layers, cfg.Relay.ProtocolConfiguration)
	}

	chains := make([][]*catalog.LayerType, len(layers))
	for i, pc := range layers {
		chain, err := cat.Chain(pc.Type)
		if err != nil {
			return nil, fmt.Errorf("toolkit: stack %s: %w", cfg.Name, err)
		}
		chains[i] = chain
	}

	return &Factory{
		catalog: cat,
		network: network,
		config:  cfg,
		res:     res,
		chains:  chains,
		layers:  layers,
	}, nil
}

// Configuration 返回工厂使用的协议栈配置
func (f *Factory) Configuration() *types.StackConfiguration {
	return f.config
}

// CreateChannel 创建一个打开但未连接的通道
func (f *Factory) CreateChannel(name string) (interfaces.Channel, error) {
	layers := make([]layer, len(f.layers))
	for i, pc := range f.layers {
		l := newProtocolLayer(f.chains[i], i, pc)
		l.base().binding = f.res.Bindings[pc.Type]
		if r, ok := l.(*Relay); ok {
			r.configure(f.config.Relay, f.res.Sites)
		}
		layers[i] = l
	}
	return newChannel(name, f, newStack(layers)), nil
}
