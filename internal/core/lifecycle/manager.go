package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/service"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// Manager 通道单元管理器
//
// 负责把通道定义安装为服务单元，并按名称取用运行中的通道。
type Manager struct {
	container    *service.Container
	compiler     *compiler.Compiler
	eng          *engine
	defaultStack string

	mu       sync.Mutex
	channels map[string]*installedChannel
}

// installedChannel 一个通道对应的全部单元，按安装顺序排列
type installedChannel struct {
	stack string
	entry types.ServiceName
	units []types.ServiceName
}

// NewManager 创建通道管理器
//
// bus 与 clk 可为 nil；defaultStack 用于未指定协议栈的通道。
func NewManager(c *service.Container, comp *compiler.Compiler, worker *Worker, bus pkgif.EventBus,
	cfg config.LifecycleConfig, clk clock.Clock, defaultStack string) (*Manager, error) {
	eng, err := newEngine(worker, bus, cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: create emitters: %w", err)
	}
	return &Manager{
		container:    c,
		compiler:     comp,
		eng:          eng,
		defaultStack: defaultStack,
		channels:     make(map[string]*installedChannel),
	}, nil
}

func (m *Manager) stackFor(name, stack string) (string, error) {
	if stack != "" {
		return stack, nil
	}
	if m.defaultStack == "" {
		return "", fmt.Errorf("%w: %s", ErrNoStack, name)
	}
	return m.defaultStack, nil
}

// InstallChannel 安装通道单元及其分叉通道单元
//
// 分叉协议层先全部编译，任一单元安装失败时回滚已安装的单元。
func (m *Manager) InstallChannel(def types.ChannelDefinition) (types.ServiceName, error) {
	stack, err := m.stackFor(def.Name, def.Stack)
	if err != nil {
		return "", err
	}

	forks := make([][]types.ProtocolConfiguration, len(def.Forks))
	for i, f := range def.Forks {
		if forks[i], err = m.compiler.CompileProtocols(def.Name+"/"+f.Name, f.Protocols); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[def.Name]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateChannel, def.Name)
	}

	svc := newChannelService(m.eng, def.Name, def.ClusterName(), true)
	b := m.container.AddService(svc.unit, svc)
	service.Require(b, types.StackServiceName(stack), &svc.factory)
	if err := b.Install(); err != nil {
		return "", fmt.Errorf("install channel %s: %w", def.Name, err)
	}
	rec := &installedChannel{stack: stack, entry: svc.unit, units: []types.ServiceName{svc.unit}}

	for i, f := range def.Forks {
		fs := newForkChannelService(m.eng, m.compiler, def.Name, f.Name, forks[i])
		fb := m.container.AddService(fs.unit, fs)
		service.Require(fb, svc.unit, &fs.parent)
		if err := fb.Install(); err != nil {
			m.rollback(rec.units)
			return "", fmt.Errorf("install fork %s/%s: %w", def.Name, f.Name, err)
		}
		rec.units = append(rec.units, fs.unit)
	}

	m.channels[def.Name] = rec
	logger.Info("通道单元已安装", "channel", def.Name, "stack", stack, "forks", len(def.Forks))
	return svc.unit, nil
}

// InstallConnectedChannel 安装只打开的通道单元和以 cluster 连接它的单元
func (m *Manager) InstallConnectedChannel(name, stack, cluster string) (types.ServiceName, error) {
	stack, err := m.stackFor(name, stack)
	if err != nil {
		return "", err
	}
	if cluster == "" {
		cluster = name
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[name]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}

	svc := newChannelService(m.eng, name, cluster, false)
	b := m.container.AddService(svc.unit, svc)
	service.Require(b, types.StackServiceName(stack), &svc.factory)
	if err := b.Install(); err != nil {
		return "", fmt.Errorf("install channel %s: %w", name, err)
	}

	cs := newConnectedChannelService(m.eng, name, cluster)
	cb := m.container.AddService(cs.unit, cs)
	service.Require(cb, svc.unit, &cs.channel)
	service.Require(cb, types.StackServiceName(stack), &cs.factory)
	if err := cb.Install(); err != nil {
		m.rollback([]types.ServiceName{svc.unit})
		return "", fmt.Errorf("install connected channel %s: %w", name, err)
	}

	m.channels[name] = &installedChannel{
		stack: stack,
		entry: cs.unit,
		units: []types.ServiceName{svc.unit, cs.unit},
	}
	logger.Info("已连接通道单元已安装", "channel", name, "stack", stack, "cluster", cluster)
	return cs.unit, nil
}

// rollback 逆序卸载单元，调用方持有 m.mu
func (m *Manager) rollback(units []types.ServiceName) {
	for i := len(units) - 1; i >= 0; i-- {
		if err := m.container.Uninstall(units[i]); err != nil {
			logger.Warn("回滚卸载单元失败", "unit", units[i], "err", err)
		}
	}
}

// UninstallChannel 逆序卸载通道的全部单元
//
// 某个单元仍有依赖方时停止卸载并返回错误，已卸载的单元不再恢复。
func (m *Manager) UninstallChannel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.channels[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotInstalled, name)
	}
	for len(rec.units) > 0 {
		last := rec.units[len(rec.units)-1]
		if err := m.container.Uninstall(last); err != nil {
			return fmt.Errorf("uninstall channel %s: %w", name, err)
		}
		rec.units = rec.units[:len(rec.units)-1]
	}
	delete(m.channels, name)
	logger.Info("通道单元已卸载", "channel", name)
	return nil
}

// Activate 把通道单元切换为主动模式，立即启动并保持运行
func (m *Manager) Activate(name string) error {
	m.mu.Lock()
	rec, ok := m.channels[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotInstalled, name)
	}
	return m.container.SetMode(rec.entry, service.ModeActive)
}

// Channel 取用运行中的通道，必要时按需启动
//
// 使用完毕后调用方必须 Release 返回的句柄。
func (m *Manager) Channel(ctx context.Context, name string) (pkgif.Channel, *service.Handle, error) {
	m.mu.Lock()
	rec, ok := m.channels[name]
	m.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrChannelNotInstalled, name)
	}
	return m.acquire(ctx, rec.entry)
}

// Fork 取用运行中的分叉通道
func (m *Manager) Fork(ctx context.Context, channel, fork string) (pkgif.Channel, *service.Handle, error) {
	unit := types.ForkServiceName(channel, fork)
	m.mu.Lock()
	rec, ok := m.channels[channel]
	m.mu.Unlock()
	if !ok || !slices.Contains(rec.units, unit) {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrChannelNotInstalled, channel, fork)
	}
	return m.acquire(ctx, unit)
}

func (m *Manager) acquire(ctx context.Context, unit types.ServiceName) (pkgif.Channel, *service.Handle, error) {
	h, err := m.container.Acquire(ctx, unit)
	if err != nil {
		return nil, nil, err
	}
	ch, err := service.HandleValue[pkgif.Channel](h)
	if err != nil {
		_ = h.Release()
		return nil, nil, err
	}
	return ch, h, nil
}

// Peek 返回运行中的通道，不增加引用、不触发启动
func (m *Manager) Peek(name string) (pkgif.Channel, bool) {
	m.mu.Lock()
	rec, ok := m.channels[name]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	v, ok := m.container.Peek(rec.entry)
	if !ok {
		return nil, false
	}
	ch, ok := v.(pkgif.Channel)
	return ch, ok
}

// Channels 已安装的通道名（排序）
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Units 通道的全部单元名，按安装顺序
func (m *Manager) Units(name string) []types.ServiceName {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.channels[name]; ok {
		return slices.Clone(rec.units)
	}
	return nil
}

// Close 关闭事件发射器
func (m *Manager) Close() error {
	m.eng.close()
	return nil
}
