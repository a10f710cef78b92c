package service

import (
	"context"

	"go.uber.org/fx"
)

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("service",
		fx.Provide(New),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, c *Container) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return c.Close()
		},
	})
}
