package catalog

import "go.uber.org/fx"

// Module 返回 fx 模块
//
// 目录本身为空，内置类型由 toolkit 模块通过 fx.Invoke 注册。
func Module() fx.Option {
	return fx.Module("catalog",
		fx.Provide(New),
	)
}
