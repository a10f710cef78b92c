package groupstack

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/eventbus"
	"github.com/dep2p/go-groupstack/internal/core/installer"
	"github.com/dep2p/go-groupstack/internal/core/lifecycle"
	"github.com/dep2p/go-groupstack/internal/core/metrics"
	"github.com/dep2p/go-groupstack/internal/core/registry"
	"github.com/dep2p/go-groupstack/internal/core/resource"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/internal/core/storage"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	"github.com/dep2p/go-groupstack/internal/debug/introspect"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
)

var fxLogger = log.Logger("groupstack/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 目录与工具包：catalog → toolkit（注册内置协议层类型）→ compiler
//  2. 基础设施：eventbus → storage → service → resource（安装命名资源单元）
//  3. 模型与安装：registry → installer
//  4. 运行时：lifecycle → metrics
//  5. 诊断：introspect（按配置加载）
func buildFxApp(cfg *config.Config, o *options, s *Subsystem) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),

		catalog.Module(),
		toolkit.Module(),
		compiler.Module(),

		eventbus.Module(),
		storage.Module(),
		service.Module(),
		resource.Module(),

		registry.Module(),
		installer.Module(),

		lifecycle.Module(),
		metrics.Module(),
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 诊断服务（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if cfg.Diagnostics.Enabled {
		modules = append(modules,
			introspect.Module(),
			fx.Populate(&s.introspect),
		)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展与组件导出
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, o.fxOptions...)
	modules = append(modules,
		fx.Populate(
			&s.catalog,
			&s.compiler,
			&s.bus,
			&s.container,
			&s.registry,
			&s.installer,
			&s.channels,
			&s.bridge,
			&s.poller,
		),
		fx.WithLogger(func() fxevent.Logger {
			return newFxEventLogger(cfg.Log)
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// newFxEventLogger debug 级别输出 Fx 事件，其余级别静默
func newFxEventLogger(cfg config.LogConfig) fxevent.Logger {
	if cfg.Level != "debug" {
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}
	zl, err := zap.NewDevelopment()
	if err != nil {
		fxLogger.Warn("创建 Fx 事件日志失败", "error", err)
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}
	return &fxevent.ZapLogger{Logger: zl.Named("fx")}
}
