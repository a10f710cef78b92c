package compiler

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/catalog"
)

// Params 编译器依赖参数
type Params struct {
	fx.In

	Catalog *catalog.Catalog
	Config  *config.Config `optional:"true"`
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("compiler",
		fx.Provide(ProvideCompiler),
	)
}

// ProvideCompiler 提供编译器
//
// 表达式先查配置的 Expressions，再查环境变量；属性表达式延迟到激活时解析。
func ProvideCompiler(p Params) *Compiler {
	var overrides map[string]string
	if p.Config != nil {
		overrides = p.Config.Expressions
	}
	return New(p.Catalog, WithLookup(EnvLookup(overrides)), WithDeferredExpressions())
}
