package installer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
	"github.com/dep2p/go-groupstack/pkg/types"
)

var logger = log.Logger("core/installer")

// Installer 协议栈安装器
type Installer struct {
	container *service.Container
	catalog   *catalog.Catalog
	compiler  *compiler.Compiler
	network   *toolkit.Network

	mu     sync.Mutex
	stacks map[string]*types.StackConfiguration
}

// New 创建安装器
func New(c *service.Container, cat *catalog.Catalog, comp *compiler.Compiler, network *toolkit.Network) *Installer {
	return &Installer{
		container: c,
		catalog:   cat,
		compiler:  comp,
		network:   network,
		stacks:    make(map[string]*types.StackConfiguration),
	}
}

// Install 安装协议栈单元，返回单元名
func (i *Installer) Install(cfg *types.StackConfiguration) (types.ServiceName, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installLocked(cfg)
}

func (i *Installer) installLocked(cfg *types.StackConfiguration) (types.ServiceName, error) {
	cfg = cfg.Clone()
	b, _ := i.build(cfg)
	if err := b.Install(); err != nil {
		return "", fmt.Errorf("install stack %s: %w", cfg.Name, err)
	}
	i.stacks[cfg.Name] = cfg
	logger.Info("协议栈单元已安装", "stack", cfg.Name, "unit", types.StackServiceName(cfg.Name))
	return types.StackServiceName(cfg.Name), nil
}

// Uninstall 卸载协议栈单元
func (i *Installer) Uninstall(stack string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.uninstallLocked(stack)
}

func (i *Installer) uninstallLocked(stack string) error {
	if _, ok := i.stacks[stack]; !ok {
		return fmt.Errorf("%w: %s", ErrStackNotInstalled, stack)
	}
	if err := i.container.Uninstall(types.StackServiceName(stack)); err != nil {
		return err
	}
	delete(i.stacks, stack)
	logger.Info("协议栈单元已卸载", "stack", stack)
	return nil
}

// Reinstall 以新配置替换已安装的协议栈单元
//
// 仍有依赖方时保持旧单元不变并返回 ErrDependentsStillPresent；
// 新配置安装失败时恢复旧配置。
func (i *Installer) Reinstall(cfg *types.StackConfiguration) (types.ServiceName, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	old, exists := i.stacks[cfg.Name]
	if exists {
		if err := i.uninstallLocked(cfg.Name); err != nil {
			return "", err
		}
	}
	name, err := i.installLocked(cfg)
	if err != nil && exists {
		if _, rerr := i.installLocked(old); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore previous stack %s: %w", cfg.Name, rerr))
		}
	}
	return name, err
}

// InstallAll 按远端站点引用的拓扑顺序安装一组协议栈
//
// 被引用的对端协议栈先于引用方安装；引用成环时返回 ErrDependencyCycle。
func (i *Installer) InstallAll(cfgs []*types.StackConfiguration) error {
	ordered, err := installOrder(cfgs)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, cfg := range ordered {
		if _, err := i.installLocked(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Configuration 返回已安装协议栈的配置副本
func (i *Installer) Configuration(stack string) (*types.StackConfiguration, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	cfg, ok := i.stacks[stack]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStackNotInstalled, stack)
	}
	return cfg.Clone(), nil
}

// Stacks 返回已安装的协议栈名（排序）
func (i *Installer) Stacks() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	names := make([]string, 0, len(i.stacks))
	for name := range i.stacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// installOrder 对远端站点引用做拓扑排序，同层按名称排序
func installOrder(cfgs []*types.StackConfiguration) ([]*types.StackConfiguration, error) {
	byName := make(map[string]*types.StackConfiguration, len(cfgs))
	for _, cfg := range cfgs {
		byName[cfg.Name] = cfg
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(cfgs))
	out := make([]*types.StackConfiguration, 0, len(cfgs))

	var visit func(name string) error
	visit = func(name string) error {
		cfg, ok := byName[name]
		if !ok {
			// 不在本批次中的对端协议栈由容器检查
			return nil
		}
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w: at stack %s", ErrDependencyCycle, name)
		case done:
			return nil
		}
		state[name] = visiting
		if cfg.Relay != nil {
			peers := make([]string, 0, len(cfg.Relay.RemoteSites))
			for _, rs := range cfg.Relay.RemoteSites {
				peers = append(peers, rs.Stack)
			}
			sort.Strings(peers)
			for _, peer := range peers {
				if err := visit(peer); err != nil {
					return err
				}
			}
		}
		state[name] = done
		out = append(out, cfg)
		return nil
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}
