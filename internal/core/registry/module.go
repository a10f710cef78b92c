package registry

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/storage"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// StorePrefix 协议栈记录的键前缀
const StorePrefix = "s/"

// Params 注册表依赖参数
type Params struct {
	fx.In

	Engine   *storage.Engine  `optional:"true"`
	EventBus pkgif.EventBus   `optional:"true"`
	Catalog  *catalog.Catalog `optional:"true"`
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(ProvideRegistry),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRegistry 提供注册表
func ProvideRegistry(p Params) (*Registry, error) {
	var opts []Option
	if p.Catalog != nil {
		opts = append(opts, WithLayerNames(p.Catalog.Canonical))
	}
	if p.Engine != nil {
		opts = append(opts, WithStore(storage.NewKV(p.Engine, []byte(StorePrefix))))
	}
	if p.EventBus != nil {
		em, err := p.EventBus.Emitter(new(types.EvtStackChanged))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithEmitter(em))
	}
	return New(opts...), nil
}

func registerLifecycle(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := r.Load(); err != nil {
				logger.Warn("部分协议栈记录未能恢复", "err", err)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if r.emitter != nil {
				return r.emitter.Close()
			}
			return nil
		},
	})
}
