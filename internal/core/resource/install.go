package resource

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// InstallSocketBinding 安装套接字绑定单元
func InstallSocketBinding(c *service.Container, cfg config.SocketBindingConfig) error {
	svc := &bindingService{binding: NewSocketBinding(cfg.Name, cfg.Host, cfg.Port)}
	return c.AddService(types.SocketBindingServiceName(cfg.Name), svc).Install()
}

// InstallExecutor 安装执行器单元
func InstallExecutor(c *service.Container, cfg config.ExecutorConfig) error {
	svc := &executorService{name: cfg.Name, maxThreads: cfg.MaxThreads}
	return c.AddService(types.ExecutorServiceName(cfg.Name), svc).Install()
}

// InstallThreadFactory 安装线程工厂单元
func InstallThreadFactory(c *service.Container, cfg config.ThreadFactoryConfig) error {
	svc := &threadFactoryService{factory: NewThreadFactory(cfg.Name, cfg.Pattern)}
	return c.AddService(types.ThreadFactoryServiceName(cfg.Name), svc).Install()
}

// InstallTimer 安装定时执行器单元
func InstallTimer(c *service.Container, cfg config.TimerConfig, clk clock.Clock) error {
	svc := &timerService{name: cfg.Name, clock: clk}
	return c.AddService(types.TimerServiceName(cfg.Name), svc).Install()
}

// InstallAll 安装配置中的全部资源
func InstallAll(c *service.Container, cfg config.ResourcesConfig, clk clock.Clock) error {
	for _, b := range cfg.SocketBindings {
		if err := InstallSocketBinding(c, b); err != nil {
			return fmt.Errorf("socket-binding %s: %w", b.Name, err)
		}
	}
	for _, e := range cfg.Executors {
		if err := InstallExecutor(c, e); err != nil {
			return fmt.Errorf("executor %s: %w", e.Name, err)
		}
	}
	for _, f := range cfg.ThreadFactories {
		if err := InstallThreadFactory(c, f); err != nil {
			return fmt.Errorf("thread-factory %s: %w", f.Name, err)
		}
	}
	for _, t := range cfg.TimerExecutors {
		if err := InstallTimer(c, t, clk); err != nil {
			return fmt.Errorf("timer-executor %s: %w", t.Name, err)
		}
	}
	logger.Info("外部资源已安装",
		"socket_bindings", len(cfg.SocketBindings),
		"executors", len(cfg.Executors),
		"thread_factories", len(cfg.ThreadFactories),
		"timers", len(cfg.TimerExecutors))
	return nil
}
