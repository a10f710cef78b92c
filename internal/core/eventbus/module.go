package eventbus

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideEventBus),
	)
}

// ProvideEventBus 提供 EventBus 实例
func ProvideEventBus() pkgif.EventBus {
	return NewBus()
}
