package metrics

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/lifecycle"
)

// Params 指标模块依赖参数
type Params struct {
	fx.In

	Catalog *catalog.Catalog
	Config  *config.Config `optional:"true"`
}

// PollerParams 轮询器依赖参数
type PollerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Bridge    *Bridge
	Channels  *lifecycle.Manager
	Config    *config.Config `optional:"true"`
	Clock     clock.Clock    `optional:"true"`
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(
			ProvideBridge,
			ProvidePoller,
			NewCollector,
			NewRegistry,
			func(reg *prometheus.Registry) prometheus.Gatherer { return reg },
		),
	)
}

// ProvideBridge 按配置的缓存大小创建指标桥接
func ProvideBridge(p Params) (*Bridge, error) {
	size := DefaultCacheSize
	if p.Config != nil {
		size = p.Config.Metrics.CacheSize
	}
	return NewBridge(p.Catalog, size)
}

// ProvidePoller 创建轮询器，应用启动时开始轮询
func ProvidePoller(p PollerParams) *Poller {
	mcfg := config.DefaultMetricsConfig()
	if p.Config != nil {
		mcfg = p.Config.Metrics
	}
	targets := make([]Target, len(mcfg.Targets))
	for i, t := range mcfg.Targets {
		targets[i] = Target{Channel: t.Channel, Layer: t.Protocol, Attribute: t.Attribute}
	}
	poller := NewPoller(p.Bridge, p.Channels, targets, mcfg.PollInterval.Duration(),
		WithClock(p.Clock), WithRateLimit(mcfg.ReadsPerSecond))

	if len(targets) > 0 {
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				poller.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				poller.Stop()
				return nil
			},
		})
	}
	return poller
}
