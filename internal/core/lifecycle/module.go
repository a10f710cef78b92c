package lifecycle

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/service"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
)

// Params 生命周期模块依赖参数
type Params struct {
	fx.In

	Container *service.Container
	Compiler  *compiler.Compiler
	Worker    *Worker
	Config    *config.Config `optional:"true"`
	EventBus  pkgif.EventBus `optional:"true"`
	Clock     clock.Clock    `optional:"true"`
}

// WorkerParams Worker 依赖参数
type WorkerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config `optional:"true"`
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("lifecycle",
		fx.Provide(
			ProvideWorker,
			ProvideManager,
		),
	)
}

// ProvideWorker 提供生命周期 Worker，应用停止时排空队列后关闭
func ProvideWorker(p WorkerParams) *Worker {
	queue := config.DefaultLifecycleConfig().WorkerQueue
	if p.Config != nil {
		queue = p.Config.Lifecycle.WorkerQueue
	}
	w := NewWorker(queue)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			w.Close()
			return nil
		},
	})
	return w
}

// ProvideManager 提供通道管理器
func ProvideManager(lc fx.Lifecycle, p Params) (*Manager, error) {
	lcfg := config.DefaultLifecycleConfig()
	var defaultStack string
	if p.Config != nil {
		lcfg = p.Config.Lifecycle
		defaultStack = p.Config.Stacks.Default
	}
	m, err := NewManager(p.Container, p.Compiler, p.Worker, p.EventBus, lcfg, p.Clock, defaultStack)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return m.Close()
		},
	})
	return m, nil
}
