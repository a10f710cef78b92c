package toolkit

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
)

// Module 返回 fx 模块
//
// 提供进程内回环网络，并在启动时向目录注册内置协议层类型。
func Module() fx.Option {
	return fx.Module("toolkit",
		fx.Provide(NewNetwork),
		fx.Invoke(func(cat *catalog.Catalog) {
			RegisterBuiltins(cat)
		}),
	)
}
