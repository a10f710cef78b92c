package introspect

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/lifecycle"
	"github.com/dep2p/go-groupstack/internal/core/registry"
	"github.com/dep2p/go-groupstack/internal/core/service"
)

// Module 返回诊断服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// Params 诊断服务依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config      `optional:"true"`
	Registry   *registry.Registry  `optional:"true"`
	Container  *service.Container  `optional:"true"`
	Channels   *lifecycle.Manager  `optional:"true"`
	Gatherer   prometheus.Gatherer `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
}

// Output 诊断服务输出
type Output struct {
	fx.Out

	Server *Server `optional:"true"`
}

// ConfigFromUnified 从统一配置创建诊断服务配置，未启用时返回 nil
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil || !cfg.Diagnostics.Enabled {
		return nil
	}
	return &Config{Addr: cfg.Diagnostics.Addr}
}

// NewFromParams 从参数创建诊断服务
func NewFromParams(p Params) Output {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if cfg == nil {
		return Output{}
	}

	cfg.Registry = p.Registry
	cfg.Container = p.Container
	if p.Channels != nil {
		cfg.Channels = p.Channels
	}
	cfg.Gatherer = p.Gatherer
	cfg.Clock = p.Clock

	return Output{Server: New(*cfg)}
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
