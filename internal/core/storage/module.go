package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/config"
)

// Params 存储模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 返回存储 fx 模块
//
// 生命周期:
//   - OnStart: 启动后台垃圾回收
//   - OnStop: 关闭引擎
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideEngine),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideEngine 按统一配置打开存储引擎
func ProvideEngine(p Params) (*Engine, error) {
	return Open(ConfigFromUnified(p.UnifiedCfg))
}

func registerLifecycle(lc fx.Lifecycle, eng *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return eng.Start()
		},
		OnStop: func(_ context.Context) error {
			if err := eng.Close(); err != nil {
				logger.Warn("存储引擎关闭失败", "error", err)
				return err
			}
			logger.Info("存储引擎已关闭")
			return nil
		},
	})
}
