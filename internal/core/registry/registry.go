package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dep2p/go-groupstack/internal/core/storage"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
	"github.com/dep2p/go-groupstack/pkg/types"
)

var logger = log.Logger("core/registry")

// Registry 协议栈注册表
//
// 所有修改在同一把锁内串行执行：先持久化新版本，成功后再替换内存中的版本，
// 因此读者只会看到完整的版本。
type Registry struct {
	mu      sync.RWMutex
	stacks  map[string]*Stack
	store   *storage.KV
	emitter pkgif.Emitter
	canon   func(string) string
}

// Option 注册表选项
type Option func(*Registry)

// WithStore 持久化到指定的 KV 视图
func WithStore(store *storage.KV) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithEmitter 每个新版本发射 EvtStackChanged
func WithEmitter(em pkgif.Emitter) Option {
	return func(r *Registry) {
		r.emitter = em
	}
}

// WithLayerNames 比较协议层名前先用 canon 规范化，GMS 与 pbcast.GMS 视为同一协议层
func WithLayerNames(canon func(name string) string) Option {
	return func(r *Registry) {
		r.canon = canon
	}
}

// New 创建注册表
func New(opts ...Option) *Registry {
	r := &Registry{stacks: make(map[string]*Stack)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load 从存储恢复全部协议栈
//
// 单条记录无法恢复时跳过并记录日志，返回汇总错误。
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}
	var records []Record
	var errs []error
	err := r.store.Scan(func(key, value []byte) bool {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			errs = append(errs, fmt.Errorf("stack %s: %w", key, err))
			return true
		}
		records = append(records, rec)
		return true
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		s, err := Reconcile(rec)
		if err != nil {
			logger.Warn("跳过无法恢复的协议栈记录", "stack", rec.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		r.stacks[s.name] = s
	}
	logger.Info("协议栈模型已加载", "count", len(r.stacks))
	return errors.Join(errs...)
}

// AddStack 添加协议栈
func (r *Registry) AddStack(def *types.StackDefinition) (*Stack, error) {
	if def == nil || def.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidStack)
	}
	s, err := newStack(def, 1)
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", def.Name, err)
	}
	for i, name := range s.order {
		if r.IndexOf(s, name) != i {
			return nil, fmt.Errorf("stack %s: %w: %s", def.Name, ErrDuplicateLayer, name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stacks[def.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateStack, def.Name)
	}
	if err := r.commitLocked(s); err != nil {
		return nil, err
	}
	return s, nil
}

// RemoveStack 删除协议栈
func (r *Registry) RemoveStack(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStackNotFound, name)
	}
	if r.store != nil {
		if err := r.store.Delete([]byte(name)); err != nil {
			return fmt.Errorf("delete stack %s: %w", name, err)
		}
	}
	delete(r.stacks, name)
	r.emit(types.EvtStackChanged{Stack: name, Version: s.version, Removed: true})
	return nil
}

// Stack 返回协议栈当前版本
func (r *Registry) Stack(name string) (*Stack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stacks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, name)
	}
	return s, nil
}

// Stacks 返回全部协议栈名（排序）
func (r *Registry) Stacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stacks))
	for name := range r.stacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe 按线序返回协议层
func (r *Registry) Describe(stack string) ([]Layer, error) {
	s, err := r.Stack(stack)
	if err != nil {
		return nil, err
	}
	return s.Describe(), nil
}

// AddLayer 在指定位置插入协议层
//
// position < 0 或 >= 协议层数量时追加到末尾。
// 顺序列表与协议层集合在同一个新版本中一起更新。
func (r *Registry) AddLayer(stack string, def types.ProtocolDefinition, position int) (*Stack, error) {
	if def.Type == "" {
		return nil, fmt.Errorf("%w: layer type is required", ErrInvalidStack)
	}
	return r.mutate(stack, func(s *Stack) error {
		if r.IndexOf(s, def.Type) >= 0 {
			return fmt.Errorf("%w: %s in stack %s", ErrDuplicateLayer, def.Type, stack)
		}
		if position < 0 || position >= len(s.order) {
			position = len(s.order)
		}
		s.order = slices.Insert(s.order, position, def.Type)
		s.layers[def.Type] = def.Clone()
		return nil
	})
}

// RemoveLayer 删除协议层，其余协议层保持相对顺序
func (r *Registry) RemoveLayer(stack, name string) (*Stack, error) {
	return r.mutate(stack, func(s *Stack) error {
		i := r.IndexOf(s, name)
		if i < 0 {
			return fmt.Errorf("%w: %s in stack %s", ErrLayerNotFound, name, stack)
		}
		delete(s.layers, s.order[i])
		s.order = slices.Delete(s.order, i, i+1)
		return nil
	})
}

// SetLayer 替换已有协议层的定义，位置不变
func (r *Registry) SetLayer(stack string, def types.ProtocolDefinition) (*Stack, error) {
	return r.mutate(stack, func(s *Stack) error {
		i := r.IndexOf(s, def.Type)
		if i < 0 {
			return fmt.Errorf("%w: %s in stack %s", ErrLayerNotFound, def.Type, stack)
		}
		// 保留已有的写法，order 与 layers 的键保持一致
		d := def.Clone()
		d.Type = s.order[i]
		s.layers[d.Type] = d
		return nil
	})
}

// IndexOf 返回协议层在 s 中的位置，不存在时返回 -1
func (r *Registry) IndexOf(s *Stack, name string) int {
	want := r.canonical(name)
	return slices.IndexFunc(s.order, func(o string) bool { return r.canonical(o) == want })
}

func (r *Registry) canonical(name string) string {
	if r.canon == nil {
		return name
	}
	return r.canon(name)
}

// SetTransport 设置传输层
func (r *Registry) SetTransport(stack string, def *types.TransportDefinition) (*Stack, error) {
	return r.mutate(stack, func(s *Stack) error {
		s.transport = def.Clone()
		return nil
	})
}

// SetRelay 设置中继层，def 为 nil 时移除
func (r *Registry) SetRelay(stack string, def *types.RelayDefinition) (*Stack, error) {
	return r.mutate(stack, func(s *Stack) error {
		s.relay = def.Clone()
		return nil
	})
}

// mutate 在当前版本的副本上执行修改并提交为新版本
func (r *Registry) mutate(stack string, fn func(s *Stack) error) (*Stack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.stacks[stack]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, stack)
	}
	next := cur.next()
	if err := fn(next); err != nil {
		return nil, err
	}
	if len(next.order) != len(next.layers) {
		return nil, fmt.Errorf("%w: stack %s", ErrCorruptRecord, stack)
	}
	if err := r.commitLocked(next); err != nil {
		return nil, err
	}
	return next, nil
}

func (r *Registry) commitLocked(s *Stack) error {
	if r.store != nil {
		if err := r.store.PutJSON([]byte(s.name), s.record()); err != nil {
			return fmt.Errorf("persist stack %s: %w", s.name, err)
		}
	}
	r.stacks[s.name] = s
	logger.Debug("协议栈新版本", "stack", s.name, "version", s.version, "order", s.order)
	r.emit(types.EvtStackChanged{Stack: s.name, Version: s.version})
	return nil
}

func (r *Registry) emit(evt types.EvtStackChanged) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.Emit(evt); err != nil {
		logger.Debug("发射协议栈事件失败", "stack", evt.Stack, "err", err)
	}
}
