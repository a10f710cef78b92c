package installer

import (
	"context"
	"fmt"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// stackService 协议栈服务单元
type stackService struct {
	cfg      *types.StackConfiguration
	catalog  *catalog.Catalog
	compiler *compiler.Compiler
	network  *toolkit.Network

	bindings    map[string]*service.Injected[pkgif.SocketBinding]
	diagnostics service.Injected[pkgif.SocketBinding]
	defaultExec service.Injected[pkgif.Executor]
	oobExec     service.Injected[pkgif.Executor]
	timer       service.Injected[pkgif.ScheduledExecutor]
	threads     service.Injected[pkgif.ThreadFactory]
	sites       map[string]*service.LazyValue[pkgif.ChannelFactory]

	factory *toolkit.Factory
}

// build 为协议栈配置建立服务单元及其依赖边
func (i *Installer) build(cfg *types.StackConfiguration) (*service.Builder, *stackService) {
	svc := &stackService{
		cfg:      cfg,
		catalog:  i.catalog,
		compiler: i.compiler,
		network:  i.network,
		bindings: make(map[string]*service.Injected[pkgif.SocketBinding]),
		sites:    make(map[string]*service.LazyValue[pkgif.ChannelFactory]),
	}
	b := i.container.AddService(types.StackServiceName(cfg.Name), svc)

	layers := append([]types.ProtocolConfiguration{cfg.Transport.ProtocolConfiguration}, cfg.Protocols...)
	for _, pc := range layers {
		if pc.SocketBinding == "" {
			continue
		}
		slot := new(service.Injected[pkgif.SocketBinding])
		svc.bindings[pc.Type] = slot
		service.Require(b, types.SocketBindingServiceName(pc.SocketBinding), slot)
	}

	t := cfg.Transport
	if t.TimerExecutor != "" {
		service.Require(b, types.TimerServiceName(t.TimerExecutor), &svc.timer)
	}
	if t.ThreadFactory != "" {
		service.Require(b, types.ThreadFactoryServiceName(t.ThreadFactory), &svc.threads)
	}
	if t.DiagnosticsSocketBinding != "" {
		service.Optional(b, types.SocketBindingServiceName(t.DiagnosticsSocketBinding), &svc.diagnostics)
	}
	if t.DefaultExecutor != "" {
		service.Optional(b, types.ExecutorServiceName(t.DefaultExecutor), &svc.defaultExec)
	}
	if t.OOBExecutor != "" {
		service.Optional(b, types.ExecutorServiceName(t.OOBExecutor), &svc.oobExec)
	}

	if cfg.Relay != nil {
		for _, rs := range cfg.Relay.RemoteSites {
			lazy := new(service.LazyValue[pkgif.ChannelFactory])
			svc.sites[rs.Name] = lazy
			service.Lazy(b, types.StackServiceName(rs.Stack), lazy)
		}
	}
	return b, svc
}

func (s *stackService) Start(context.Context) error {
	cfg, err := s.compiler.Resolve(s.cfg)
	if err != nil {
		return err
	}

	res := toolkit.Resources{
		Bindings:        make(map[string]pkgif.SocketBinding, len(s.bindings)),
		Diagnostics:     s.diagnostics.Get(),
		DefaultExecutor: s.defaultExec.Get(),
		OOBExecutor:     s.oobExec.Get(),
		Timer:           s.timer.Get(),
		ThreadFactory:   s.threads.Get(),
	}
	for layer, slot := range s.bindings {
		res.Bindings[layer] = slot.Get()
	}
	if len(s.sites) > 0 {
		res.Sites = s.connectSite
	}

	factory, err := toolkit.NewFactory(s.catalog, s.network, cfg, res)
	if err != nil {
		return err
	}
	s.factory = factory
	logger.Info("协议栈已激活", "stack", cfg.Name, "protocols", cfg.ProtocolNames())
	return nil
}

// connectSite 启动远端站点的对端协议栈，release 在桥接通道关闭时调用
func (s *stackService) connectSite(ctx context.Context, site string) (pkgif.ChannelFactory, func(), error) {
	lazy, ok := s.sites[site]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", toolkit.ErrUnknownSite, site)
	}
	factory, h, err := lazy.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return factory, func() {
		if err := h.Release(); err != nil {
			logger.Warn("释放对端协议栈出错", "stack", s.cfg.Name, "site", site, "err", err)
		}
	}, nil
}

func (s *stackService) Stop(context.Context) error {
	s.factory = nil
	logger.Debug("协议栈已停用", "stack", s.cfg.Name)
	return nil
}

func (s *stackService) Value() any {
	return pkgif.ChannelFactory(s.factory)
}
