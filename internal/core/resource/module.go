package resource

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
)

var logger = log.Logger("core/resource")

// Params 资源模块依赖参数
type Params struct {
	fx.In

	Container *service.Container
	Config    *config.Config `optional:"true"`
	Clock     clock.Clock    `optional:"true"`
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("resource",
		fx.Invoke(installFromConfig),
	)
}

func installFromConfig(p Params) error {
	if p.Config == nil {
		return nil
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return InstallAll(p.Container, p.Config.Resources, clk)
}
