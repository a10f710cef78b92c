package service

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// slot 注入槽位，容器在单元启动前写入、停止后清空
type slot interface {
	set(v any) error
	clear()
}

// lazySlot 延迟槽位，容器在单元启动前绑定、停止后解绑
type lazySlot interface {
	bind(c *Container, name types.ServiceName)
	unbind() error
}

// ============================================================================
//                              Injected
// ============================================================================

// Injected 依赖值的注入槽位
//
// 只在所属单元运行期间有值；可选依赖未安装时 Present 返回 false。
type Injected[T any] struct {
	mu      sync.RWMutex
	value   T
	present bool
}

// Get 返回注入的值，没有值时返回零值
func (i *Injected[T]) Get() T {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.value
}

// Present 是否已注入
func (i *Injected[T]) Present() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.present
}

func (i *Injected[T]) set(v any) error {
	t, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, reflect.TypeFor[T](), v)
	}
	i.mu.Lock()
	i.value, i.present = t, true
	i.mu.Unlock()
	return nil
}

func (i *Injected[T]) clear() {
	var zero T
	i.mu.Lock()
	i.value, i.present = zero, false
	i.mu.Unlock()
}

// ============================================================================
//                              LazyValue
// ============================================================================

// LazyValue 延迟依赖
//
// 所属单元启动时只做绑定，依赖单元在第一次 Get/Acquire 时才启动。
// Get 取得的引用由所属单元持有，单元停止时自动释放；
// Acquire 每次取得独立引用，由调用方释放。
type LazyValue[T any] struct {
	mu     sync.Mutex
	c      *Container
	name   types.ServiceName
	shared *Handle
}

// Name 依赖的单元名
func (l *LazyValue[T]) Name() types.ServiceName {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// Started 依赖是否已通过 Get 启动
func (l *LazyValue[T]) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shared != nil
}

// Get 启动依赖（如尚未启动）并返回其值
func (l *LazyValue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c == nil {
		return zero, ErrNotBound
	}
	if l.shared == nil {
		h, err := l.c.Acquire(ctx, l.name)
		if err != nil {
			return zero, err
		}
		l.shared = h
	}
	return HandleValue[T](l.shared)
}

// Acquire 取得依赖的一个独立引用
func (l *LazyValue[T]) Acquire(ctx context.Context) (T, *Handle, error) {
	var zero T
	l.mu.Lock()
	c, name := l.c, l.name
	l.mu.Unlock()
	if c == nil {
		return zero, nil, ErrNotBound
	}
	h, err := c.Acquire(ctx, name)
	if err != nil {
		return zero, nil, err
	}
	v, err := HandleValue[T](h)
	if err != nil {
		_ = h.Release()
		return zero, nil, err
	}
	return v, h, nil
}

func (l *LazyValue[T]) bind(c *Container, name types.ServiceName) {
	l.mu.Lock()
	l.c, l.name = c, name
	l.mu.Unlock()
}

func (l *LazyValue[T]) unbind() error {
	l.mu.Lock()
	h := l.shared
	l.c, l.shared = nil, nil
	l.mu.Unlock()
	if h != nil {
		return h.Release()
	}
	return nil
}
