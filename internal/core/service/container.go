package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-groupstack/pkg/lib/log"
	"github.com/dep2p/go-groupstack/pkg/types"
)

var logger = log.Logger("core/service")

// unit 已安装的服务单元
type unit struct {
	name types.ServiceName
	svc  Service
	deps []*dependency
	seq  uint64

	// mu 串行化引用计数增减与启停，启动期间一直持有
	mu     sync.Mutex
	held   []*Handle
	active *Handle

	// pub 保护对外可读的字段，只在写入时短暂持有，读取方不等待进行中的启动
	pub     sync.RWMutex
	mode    Mode
	refs    int
	value   any
	lastErr error

	state atomic.Int32
}

func (u *unit) State() State { return State(u.state.Load()) }

func (u *unit) setState(s State) { u.state.Store(int32(s)) }

// publish 在 pub 写锁内修改对外可读的字段
func (u *unit) publish(fn func()) {
	u.pub.Lock()
	defer u.pub.Unlock()
	fn()
}

// Container 服务单元容器
type Container struct {
	mu     sync.RWMutex
	units  map[types.ServiceName]*unit
	seq    uint64
	closed bool
}

// New 创建容器
func New() *Container {
	return &Container{units: make(map[types.ServiceName]*unit)}
}

// AddService 开始构建一个服务单元
func (c *Container) AddService(name types.ServiceName, svc Service) *Builder {
	return &Builder{c: c, name: name, svc: svc}
}

func (c *Container) install(b *Builder) error {
	if b.name == "" || b.svc == nil {
		return fmt.Errorf("service: unit %q needs a name and a service", b.name)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrContainerClosed
	}
	if _, exists := c.units[b.name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateService, b.name)
	}
	var missing []string
	for _, d := range b.deps {
		if d.kind == EdgeOptional {
			continue
		}
		if _, ok := c.units[d.name]; !ok {
			missing = append(missing, d.name.String())
		}
	}
	if len(missing) > 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s requires %v", ErrMissingDependency, b.name, missing)
	}
	if path := c.cycleLocked(b.name, b.deps); path != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDependencyCycle, path)
	}
	c.seq++
	u := &unit{
		name: b.name,
		svc:  b.svc,
		mode: b.mode,
		deps: slices.Clone(b.deps),
		seq:  c.seq,
	}
	c.units[b.name] = u
	c.mu.Unlock()

	logger.Debug("服务单元已安装", "unit", b.name, "mode", b.mode, "deps", len(b.deps))

	if u.mode == ModeActive {
		c.activate(u)
	}
	return nil
}

// cycleLocked 检查以 name 为起点、沿启动时会取用的边（必需与可选）能否回到 name
//
// 可选边指向的单元可能晚于依赖方安装，因此环只能在安装环上最后一个单元时发现。
// 延迟边在启动之后才取用，不参与检查。调用方持有 c.mu。
func (c *Container) cycleLocked(name types.ServiceName, deps []*dependency) []string {
	visited := make(map[types.ServiceName]bool)
	var walk func(deps []*dependency, path []string) []string
	walk = func(deps []*dependency, path []string) []string {
		for _, d := range deps {
			if d.kind == EdgeLazy {
				continue
			}
			next := append(slices.Clone(path), d.name.String())
			if d.name == name {
				return next
			}
			if visited[d.name] {
				continue
			}
			visited[d.name] = true
			if u, ok := c.units[d.name]; ok {
				if found := walk(u.deps, next); found != nil {
					return found
				}
			}
		}
		return nil
	}
	return walk(deps, []string{name.String()})
}

// activate 为 ModeActive 单元持有一个容器引用
func (c *Container) activate(u *unit) {
	h, err := c.acquireUnit(context.Background(), u)
	if err != nil {
		logger.Warn("主动单元启动失败", "unit", u.name, "err", err)
		return
	}
	u.mu.Lock()
	u.active = h
	u.mu.Unlock()
}

// SetMode 修改已安装单元的启动模式
func (c *Container) SetMode(name types.ServiceName, mode Mode) error {
	u, err := c.lookup(name)
	if err != nil {
		return err
	}
	u.mu.Lock()
	prev := u.mode
	u.publish(func() { u.mode = mode })
	active := u.active
	if mode == ModeOnDemand {
		u.active = nil
	}
	u.mu.Unlock()

	switch {
	case prev != ModeActive && mode == ModeActive:
		c.activate(u)
	case prev == ModeActive && mode == ModeOnDemand && active != nil:
		return active.Release()
	}
	return nil
}

// Acquire 取得单元的一个引用，必要时先启动单元及其依赖
func (c *Container) Acquire(ctx context.Context, name types.ServiceName) (*Handle, error) {
	u, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return c.acquireUnit(ctx, u)
}

func (c *Container) acquireUnit(ctx context.Context, u *unit) (*Handle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.State() == StateRemoved {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, u.name)
	}
	if u.refs == 0 {
		if err := c.start(ctx, u); err != nil {
			return nil, err
		}
	}
	u.publish(func() { u.refs++ })
	return &Handle{c: c, u: u}, nil
}

// start 启动单元，调用方持有 u.mu
func (c *Container) start(ctx context.Context, u *unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.setState(StateStarting)

	handles := make([]*Handle, len(u.deps))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range u.deps {
		switch d.kind {
		case EdgeRequired:
			g.Go(func() error {
				h, err := c.Acquire(gctx, d.name)
				if err != nil {
					return fmt.Errorf("dependency %s: %w", d.name, err)
				}
				handles[i] = h
				return nil
			})
		case EdgeOptional:
			dep, err := c.lookup(d.name)
			if err != nil {
				continue
			}
			g.Go(func() error {
				h, err := c.acquireUnit(gctx, dep)
				if err != nil {
					logger.Warn("可选依赖启动失败，按缺失处理", "unit", u.name, "dependency", d.name, "err", err)
					return nil
				}
				handles[i] = h
				return nil
			})
		}
	}
	err := g.Wait()

	var held []*Handle
	for _, h := range handles {
		if h != nil {
			held = append(held, h)
		}
	}
	if err == nil {
		err = c.inject(u, handles)
	}
	if err == nil {
		err = u.svc.Start(ctx)
	}
	if err != nil {
		c.uninject(u)
		err = multierr.Append(err, releaseAll(held))
		u.publish(func() {
			u.lastErr = err
			u.setState(StateFailed)
		})
		logger.Warn("服务单元启动失败", "unit", u.name, "err", err)
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, u.name, err)
	}

	u.held = held
	value := u.svc.Value()
	u.publish(func() {
		u.value = value
		u.lastErr = nil
		u.setState(StateUp)
	})
	logger.Debug("服务单元已启动", "unit", u.name)
	return nil
}

func (c *Container) inject(u *unit, handles []*Handle) error {
	for i, d := range u.deps {
		switch {
		case d.kind == EdgeLazy && d.lazy != nil:
			d.lazy.bind(c, d.name)
		case d.slot != nil && handles[i] != nil:
			if err := d.slot.set(handles[i].Value()); err != nil {
				return fmt.Errorf("dependency %s: %w", d.name, err)
			}
		}
	}
	return nil
}

func (c *Container) uninject(u *unit) error {
	var err error
	for _, d := range u.deps {
		if d.slot != nil {
			d.slot.clear()
		}
		if d.lazy != nil {
			err = multierr.Append(err, d.lazy.unbind())
		}
	}
	return err
}

func (c *Container) release(u *unit) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.refs == 0 {
		return nil
	}
	u.publish(func() { u.refs-- })
	if u.refs > 0 {
		return nil
	}
	return c.stop(u)
}

// stop 停止单元，调用方持有 u.mu；停止错误汇总返回，不阻止依赖释放
func (c *Container) stop(u *unit) error {
	u.publish(func() {
		if u.State() != StateRemoved {
			u.setState(StateStopping)
		}
	})
	err := u.svc.Stop(context.Background())
	err = multierr.Append(err, c.uninject(u))
	err = multierr.Append(err, releaseAll(u.held))
	u.held = nil
	u.publish(func() {
		u.value = nil
		if u.State() != StateRemoved {
			u.setState(StateDown)
		}
	})
	if err != nil {
		logger.Warn("服务单元停止出错", "unit", u.name, "err", err)
		return fmt.Errorf("stop %s: %w", u.name, err)
	}
	logger.Debug("服务单元已停止", "unit", u.name)
	return nil
}

func releaseAll(handles []*Handle) error {
	var err error
	for i := len(handles) - 1; i >= 0; i-- {
		err = multierr.Append(err, handles[i].Release())
	}
	return err
}

// Peek 返回运行中单元的产出值，不取得引用
//
// 不等待进行中的启动或停止，此时返回 false。
func (c *Container) Peek(name types.ServiceName) (any, bool) {
	u, err := c.lookup(name)
	if err != nil {
		return nil, false
	}
	u.pub.RLock()
	defer u.pub.RUnlock()
	if u.State() != StateUp {
		return nil, false
	}
	return u.value, true
}

// Uninstall 卸载单元
//
// 其他已安装单元持有必需或延迟依赖边，或运行中的单元持有可选依赖边时，
// 返回 ErrDependentsStillPresent。
func (c *Container) Uninstall(name types.ServiceName) error {
	c.mu.Lock()
	u, ok := c.units[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if dependents := c.dependentsLocked(name); len(dependents) > 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is needed by %v", ErrDependentsStillPresent, name, dependents)
	}
	delete(c.units, name)
	c.mu.Unlock()

	u.mu.Lock()
	active := u.active
	u.active = nil
	u.mu.Unlock()

	var err error
	if active != nil {
		err = active.Release()
	}
	u.setState(StateRemoved)
	logger.Debug("服务单元已卸载", "unit", name)
	return err
}

func (c *Container) dependentsLocked(name types.ServiceName) []string {
	var out []string
	for other, ou := range c.units {
		for _, d := range ou.deps {
			if d.name != name {
				continue
			}
			if d.kind != EdgeOptional || ou.State() == StateUp || ou.State() == StateStarting {
				out = append(out, other.String())
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Dependents 返回依赖该单元的已安装单元名
func (c *Container) Dependents(name types.ServiceName) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for other, ou := range c.units {
		for _, d := range ou.deps {
			if d.name == name {
				out = append(out, other.String())
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// State 返回单元状态
func (c *Container) State(name types.ServiceName) (State, error) {
	u, err := c.lookup(name)
	if err != nil {
		return StateRemoved, err
	}
	return u.State(), nil
}

// LastError 返回单元最近一次启动失败的原因
func (c *Container) LastError(name types.ServiceName) error {
	u, err := c.lookup(name)
	if err != nil {
		return err
	}
	u.pub.RLock()
	defer u.pub.RUnlock()
	return u.lastErr
}

// Installed 单元是否已安装
func (c *Container) Installed(name types.ServiceName) bool {
	_, err := c.lookup(name)
	return err == nil
}

// Names 返回所有已安装单元名（排序）
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.units))
	for name := range c.units {
		names = append(names, name.String())
	}
	sort.Strings(names)
	return names
}

// UnitInfo 单元快照
type UnitInfo struct {
	Name  string            `json:"name"`
	State string            `json:"state"`
	Mode  string            `json:"mode"`
	Refs  int               `json:"refs"`
	Deps  map[string]string `json:"deps,omitempty"`
}

// Snapshot 返回所有单元的快照（按名称排序）
func (c *Container) Snapshot() []UnitInfo {
	c.mu.RLock()
	units := make([]*unit, 0, len(c.units))
	for _, u := range c.units {
		units = append(units, u)
	}
	c.mu.RUnlock()

	out := make([]UnitInfo, 0, len(units))
	for _, u := range units {
		info := UnitInfo{Name: u.name.String(), State: u.State().String()}
		u.pub.RLock()
		info.Mode = u.mode.String()
		info.Refs = u.refs
		u.pub.RUnlock()
		if len(u.deps) > 0 {
			info.Deps = make(map[string]string, len(u.deps))
			for _, d := range u.deps {
				info.Deps[d.name.String()] = d.kind.String()
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close 按安装逆序释放所有主动单元并拒绝后续安装
func (c *Container) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	units := make([]*unit, 0, len(c.units))
	for _, u := range c.units {
		units = append(units, u)
	}
	c.mu.Unlock()

	sort.Slice(units, func(i, j int) bool { return units[i].seq > units[j].seq })
	var err error
	for _, u := range units {
		u.mu.Lock()
		active := u.active
		u.active = nil
		u.mu.Unlock()
		if active != nil {
			err = multierr.Append(err, active.Release())
		}
	}
	return err
}

func (c *Container) lookup(name types.ServiceName) (*unit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.units[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return u, nil
}

// IsStartFailure 错误是否来自单元启动失败
func IsStartFailure(err error) bool {
	return errors.Is(err, ErrStartFailed)
}
