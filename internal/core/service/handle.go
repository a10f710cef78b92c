package service

import (
	"fmt"
	"sync/atomic"
)

// Handle 对运行中单元的一个引用
type Handle struct {
	c        *Container
	u        *unit
	released atomic.Bool
}

// Name 单元名
func (h *Handle) Name() string {
	return h.u.name.String()
}

// Value 单元的产出值
func (h *Handle) Value() any {
	h.u.pub.RLock()
	defer h.u.pub.RUnlock()
	return h.u.value
}

// Release 释放引用，最后一个引用释放时停止单元；重复调用无副作用
func (h *Handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	return h.c.release(h.u)
}

// HandleValue 以指定类型读取单元产出值
func HandleValue[T any](h *Handle) (T, error) {
	v, ok := h.Value().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: unit %s produced %T", ErrTypeMismatch, h.u.name, h.Value())
	}
	return v, nil
}
