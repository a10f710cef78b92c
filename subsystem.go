package groupstack

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/export"
	"github.com/dep2p/go-groupstack/internal/core/installer"
	"github.com/dep2p/go-groupstack/internal/core/lifecycle"
	"github.com/dep2p/go-groupstack/internal/core/metrics"
	"github.com/dep2p/go-groupstack/internal/core/registry"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/internal/debug/introspect"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
	"github.com/dep2p/go-groupstack/pkg/types"
)

var logger = log.Logger("groupstack")

const (
	// initializeTimeout Fx App 启动超时
	initializeTimeout = 30 * time.Second

	// shutdownTimeout Close 时 Fx App 停止超时
	shutdownTimeout = 30 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              子系统状态
// ════════════════════════════════════════════════════════════════════════════

// State 子系统状态
type State int

const (
	// StateIdle 已创建，未启动
	StateIdle State = iota

	// StateStarting 启动中（Fx App 启动、部署协议栈与通道）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止，不可再次启动
	StateStopped
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              Subsystem
// ════════════════════════════════════════════════════════════════════════════

// Subsystem 组通信协议栈子系统
//
// 持有有序协议栈模型、服务容器与通道生命周期，对外提供管理操作与指标查询：
//
//	sub, err := groupstack.New(ctx,
//	    groupstack.WithStack(types.StackDefinition{
//	        Name:      "udp",
//	        Transport: &types.TransportDefinition{Type: "UDP"},
//	        Protocols: []types.ProtocolDefinition{{Type: "PING"}, {Type: "pbcast.GMS"}},
//	    }),
//	    groupstack.WithChannel(types.ChannelDefinition{Name: "ee", Stack: "udp"}),
//	)
//	if err := sub.Start(ctx); err != nil { ... }
//	defer sub.Close()
//
//	v, err := sub.ReadMetric("ee", "GMS", "view")
type Subsystem struct {
	config *config.Config
	app    *fx.App

	// ────────────────────────────────────────────────────────────────────────
	// 核心组件（由 Fx 注入）
	// ────────────────────────────────────────────────────────────────────────

	catalog    *catalog.Catalog
	compiler   *compiler.Compiler
	bus        pkgif.EventBus
	container  *service.Container
	registry   *registry.Registry
	installer  *installer.Installer
	channels   *lifecycle.Manager
	bridge     *metrics.Bridge
	poller     *metrics.Poller
	introspect *introspect.Server

	// admin 串行化管理操作
	admin sync.Mutex

	mu    sync.RWMutex
	state State
}

// New 创建子系统
//
// 只构建组件，不部署协议栈；需要调用 Start。
func New(_ context.Context, opts ...Option) (*Subsystem, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	s := &Subsystem{config: o.toConfig()}
	app, err := buildFxApp(s.config, o, s)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	s.app = app
	return s, nil
}

// Start 启动子系统
//
// 阶段：
//  1. 启动 Fx App（存储打开、注册表从存储恢复）
//  2. 部署：配置中的协议栈写入注册表，全部编译后按远端站点依赖顺序安装
//  3. 安装并激活配置中的通道
//
// 部署失败时停止 Fx App 并返回错误。
func (s *Subsystem) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopped, StateStopping:
		return ErrClosed
	case StateIdle:
	default:
		return ErrAlreadyStarted
	}

	s.state = StateStarting
	logger.Info("正在启动子系统")

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	if err := s.app.Start(initCtx); err != nil {
		s.state = StateStopped
		logger.Error("子系统初始化失败", "error", err)
		return fmt.Errorf("initialize failed: %w", err)
	}

	if err := s.deploy(); err != nil {
		logger.Error("部署失败", "error", err)
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		_ = s.app.Stop(stopCtx)
		s.state = StateStopped
		return fmt.Errorf("deploy failed: %w", err)
	}

	s.state = StateRunning
	logger.Info("子系统已启动", "stacks", s.registry.Stacks(), "channels", s.channels.Channels())
	return nil
}

// deploy 部署配置中的协议栈与通道
//
// 注册表中已从存储恢复的同名协议栈优先于配置，保留运行期的修改。
func (s *Subsystem) deploy() error {
	s.admin.Lock()
	defer s.admin.Unlock()

	// 全部编译通过后才写入注册表，失败时撤销本次写入的协议栈
	var pending []*types.StackDefinition
	for i := range s.config.Stacks.Definitions {
		def := &s.config.Stacks.Definitions[i]
		if _, err := s.registry.Stack(def.Name); err == nil {
			logger.Debug("使用已持久化的协议栈", "stack", def.Name)
			continue
		}
		if _, err := s.compiler.Compile(def); err != nil {
			return err
		}
		pending = append(pending, def)
	}
	var added []string
	rollback := func(err error) error {
		for i := len(added) - 1; i >= 0; i-- {
			err = multierr.Append(err, s.registry.RemoveStack(added[i]))
		}
		return err
	}
	for _, def := range pending {
		if _, err := s.registry.AddStack(def); err != nil {
			return rollback(err)
		}
		added = append(added, def.Name)
	}

	names := s.registry.Stacks()
	cfgs := make([]*types.StackConfiguration, 0, len(names))
	for _, name := range names {
		st, err := s.registry.Stack(name)
		if err != nil {
			return err
		}
		cfg, err := s.compiler.Compile(st.Definition())
		if err != nil {
			return rollback(err)
		}
		cfgs = append(cfgs, cfg)
	}
	if err := s.installer.InstallAll(cfgs); err != nil {
		return rollback(err)
	}

	for _, def := range s.config.Channels.Definitions {
		if _, err := s.channels.InstallChannel(def); err != nil {
			return err
		}
		// 启动失败只影响该通道单元，下一次取用时重试
		if err := s.channels.Activate(def.Name); err != nil {
			return err
		}
	}
	return nil
}

// Stop 停止子系统并释放资源
func (s *Subsystem) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopped:
		return ErrClosed
	case StateIdle:
		return ErrNotStarted
	}

	s.state = StateStopping
	logger.Info("正在停止子系统")

	err := s.app.Stop(ctx)
	s.state = StateStopped
	if err != nil {
		logger.Error("停止子系统失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("子系统已停止")
	return nil
}

// Close 停止子系统，重复调用无副作用
func (s *Subsystem) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Stop(ctx)
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrNotStarted) {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	return err
}

// State 返回子系统状态
func (s *Subsystem) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Subsystem) checkRunning() error {
	switch s.State() {
	case StateRunning:
		return nil
	case StateStopping, StateStopped:
		return ErrClosed
	default:
		return ErrNotStarted
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              协议栈管理
// ════════════════════════════════════════════════════════════════════════════

// AddStack 编译并安装新协议栈
//
// 编译失败时注册表与容器都不变。
func (s *Subsystem) AddStack(def *types.StackDefinition) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	cfg, err := s.compiler.Compile(def)
	if err != nil {
		return err
	}
	if _, err := s.installer.Install(cfg); err != nil {
		return err
	}
	if _, err := s.registry.AddStack(def); err != nil {
		return multierr.Append(err, s.installer.Uninstall(def.Name))
	}
	return nil
}

// RemoveStack 卸载并删除协议栈，仍有通道使用时返回 ErrDependentsStillPresent
func (s *Subsystem) RemoveStack(name string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	if _, err := s.registry.Stack(name); err != nil {
		return err
	}
	old, cerr := s.installer.Configuration(name)
	if err := s.installer.Uninstall(name); err != nil && !errors.Is(err, installer.ErrStackNotInstalled) {
		return err
	}
	if err := s.registry.RemoveStack(name); err != nil {
		// 注册表未删除时恢复单元，模型与容器保持一致
		if cerr == nil {
			if _, rerr := s.installer.Install(old); rerr != nil {
				err = multierr.Append(err, rerr)
			}
		}
		return err
	}
	return nil
}

// AddLayer 在 position 处插入协议层，position < 0 时追加到末尾
func (s *Subsystem) AddLayer(stack string, def types.ProtocolDefinition, position int) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	cur, err := s.registry.Stack(stack)
	if err != nil {
		return err
	}
	if s.registry.IndexOf(cur, def.Type) >= 0 {
		return fmt.Errorf("%w: %s in stack %s", ErrDuplicateLayer, def.Type, stack)
	}
	proposed := cur.Definition()
	if position < 0 || position >= len(proposed.Protocols) {
		position = len(proposed.Protocols)
	}
	proposed.Protocols = slices.Insert(proposed.Protocols, position, def.Clone())

	return s.apply(proposed, func() error {
		_, err := s.registry.AddLayer(stack, def, position)
		return err
	})
}

// RemoveLayer 删除协议层，其余协议层保持相对顺序
func (s *Subsystem) RemoveLayer(stack, name string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	cur, err := s.registry.Stack(stack)
	if err != nil {
		return err
	}
	i := s.registry.IndexOf(cur, name)
	if i < 0 {
		return fmt.Errorf("%w: %s in stack %s", ErrLayerNotFound, name, stack)
	}
	proposed := cur.Definition()
	proposed.Protocols = slices.Delete(proposed.Protocols, i, i+1)

	return s.apply(proposed, func() error {
		_, err := s.registry.RemoveLayer(stack, name)
		return err
	})
}

// SetLayer 替换协议层定义，位置不变
func (s *Subsystem) SetLayer(stack string, def types.ProtocolDefinition) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	cur, err := s.registry.Stack(stack)
	if err != nil {
		return err
	}
	i := s.registry.IndexOf(cur, def.Type)
	if i < 0 {
		return fmt.Errorf("%w: %s in stack %s", ErrLayerNotFound, def.Type, stack)
	}
	proposed := cur.Definition()
	proposed.Protocols[i] = def.Clone()
	proposed.Protocols[i].Type = cur.Order()[i]

	return s.apply(proposed, func() error {
		_, err := s.registry.SetLayer(stack, def)
		return err
	})
}

// SetTransport 替换传输层定义
func (s *Subsystem) SetTransport(stack string, def *types.TransportDefinition) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	cur, err := s.registry.Stack(stack)
	if err != nil {
		return err
	}
	proposed := cur.Definition()
	proposed.Transport = def.Clone()

	return s.apply(proposed, func() error {
		_, err := s.registry.SetTransport(stack, def)
		return err
	})
}

// SetRelay 设置中继层，def 为 nil 时移除
func (s *Subsystem) SetRelay(stack string, def *types.RelayDefinition) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	cur, err := s.registry.Stack(stack)
	if err != nil {
		return err
	}
	proposed := cur.Definition()
	proposed.Relay = def.Clone()

	return s.apply(proposed, func() error {
		_, err := s.registry.SetRelay(stack, def)
		return err
	})
}

// apply 编译新定义并替换已安装的协议栈单元，成功后提交到注册表
//
// 提交失败时恢复旧单元。调用方持有 admin 锁。
func (s *Subsystem) apply(def *types.StackDefinition, commit func() error) error {
	cfg, err := s.compiler.Compile(def)
	if err != nil {
		return err
	}
	old, cerr := s.installer.Configuration(def.Name)
	installed := cerr == nil
	if installed {
		if _, err := s.installer.Reinstall(cfg); err != nil {
			return err
		}
	}
	if err := commit(); err != nil {
		if installed {
			if _, rerr := s.installer.Reinstall(old); rerr != nil {
				err = multierr.Append(err, rerr)
			}
		}
		return err
	}
	return nil
}

// Describe 按线序返回协议层
func (s *Subsystem) Describe(stack string) ([]registry.Layer, error) {
	return s.registry.Describe(stack)
}

// Stacks 返回全部协议栈名（排序）
func (s *Subsystem) Stacks() []string {
	return s.registry.Stacks()
}

// ════════════════════════════════════════════════════════════════════════════
//                              导出与导入
// ════════════════════════════════════════════════════════════════════════════

// Export 导出协议栈为有序的 add 命令序列
func (s *Subsystem) Export(stack string) ([]export.Command, error) {
	st, err := s.registry.Stack(stack)
	if err != nil {
		return nil, err
	}
	return export.Export(st.Definition()), nil
}

// Import 按命令序列重建协议栈并安装
func (s *Subsystem) Import(cmds []export.Command) error {
	def, err := export.Apply(cmds)
	if err != nil {
		return err
	}
	return s.AddStack(def)
}

// ════════════════════════════════════════════════════════════════════════════
//                              通道
// ════════════════════════════════════════════════════════════════════════════

// InstallChannel 安装通道及其分叉通道单元，按需启动
func (s *Subsystem) InstallChannel(def types.ChannelDefinition) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	_, err := s.channels.InstallChannel(def)
	return err
}

// UninstallChannel 卸载通道及其分叉通道单元
func (s *Subsystem) UninstallChannel(name string) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	return s.channels.UninstallChannel(name)
}

// Channel 取用通道，必要时启动；使用完毕后调用方必须 Release 句柄
func (s *Subsystem) Channel(ctx context.Context, name string) (pkgif.Channel, *service.Handle, error) {
	if err := s.checkRunning(); err != nil {
		return nil, nil, err
	}
	return s.channels.Channel(ctx, name)
}

// Fork 取用分叉通道，父通道随之启动
func (s *Subsystem) Fork(ctx context.Context, channel, fork string) (pkgif.Channel, *service.Handle, error) {
	if err := s.checkRunning(); err != nil {
		return nil, nil, err
	}
	return s.channels.Fork(ctx, channel, fork)
}

// Channels 已安装的通道名（排序）
func (s *Subsystem) Channels() []string {
	return s.channels.Channels()
}

// Services 服务容器单元快照
func (s *Subsystem) Services() []service.UnitInfo {
	return s.container.Snapshot()
}

// ════════════════════════════════════════════════════════════════════════════
//                              指标
// ════════════════════════════════════════════════════════════════════════════

// ReadMetric 读取运行中通道某个协议层的属性
//
// 通道未运行或协议层不在协议链中时返回匹配 ErrNotFound 的错误；
// 属性未声明时返回 ErrUnknownAttribute；值不可用时返回 metrics.Undefined。
func (s *Subsystem) ReadMetric(channel, layer, attribute string) (metrics.Value, error) {
	ch, ok := s.channels.Peek(channel)
	if !ok {
		return metrics.Undefined, fmt.Errorf("%w: %s", ErrChannelNotRunning, channel)
	}
	return s.bridge.ReadAttribute(ch, layer, attribute)
}

// ReadMetrics 读取同一协议层的多个属性，单个属性失败不影响其他属性
func (s *Subsystem) ReadMetrics(channel, layer string, attributes ...string) ([]metrics.Result, error) {
	ch, ok := s.channels.Peek(channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotRunning, channel)
	}
	return s.bridge.ReadAttributes(ch, layer, attributes...)
}

// Attributes 列出协议层可读的属性名
func (s *Subsystem) Attributes(channel, layer string) ([]string, error) {
	ch, ok := s.channels.Peek(channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotRunning, channel)
	}
	return s.bridge.Attributes(ch, layer)
}

// Samples 返回轮询器最近一次的有效采样
func (s *Subsystem) Samples() []metrics.Sample {
	return s.poller.Samples()
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件与诊断
// ════════════════════════════════════════════════════════════════════════════

// EventBus 返回内部事件总线，可订阅 types.EvtChannelStarted 等事件
func (s *Subsystem) EventBus() pkgif.EventBus {
	return s.bus
}

// DiagnosticsAddr 返回诊断服务实际监听地址，未启用时为空
func (s *Subsystem) DiagnosticsAddr() string {
	if s.introspect == nil {
		return ""
	}
	return s.introspect.Addr()
}

// Config 返回生效的配置
func (s *Subsystem) Config() *config.Config {
	return s.config
}
