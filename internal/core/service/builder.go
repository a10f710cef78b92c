package service

import (
	"context"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// Service 服务单元的行为
//
// Start 在所有必需依赖注入后调用；Value 在 Start 成功后读取一次作为产出值。
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Value() any
}

// dependency 一条依赖边
type dependency struct {
	name types.ServiceName
	kind EdgeKind
	slot slot
	lazy lazySlot
}

// Builder 服务单元构建器
type Builder struct {
	c    *Container
	name types.ServiceName
	svc  Service
	mode Mode
	deps []*dependency
}

// SetMode 设置启动模式
func (b *Builder) SetMode(mode Mode) *Builder {
	b.mode = mode
	return b
}

// Require 添加必需依赖，依赖值在启动时注入 slot
//
// slot 为 nil 时只建立依赖关系。
func Require[T any](b *Builder, name types.ServiceName, slot *Injected[T]) *Builder {
	d := &dependency{name: name, kind: EdgeRequired}
	if slot != nil {
		d.slot = slot
	}
	b.deps = append(b.deps, d)
	return b
}

// Optional 添加可选依赖
func Optional[T any](b *Builder, name types.ServiceName, slot *Injected[T]) *Builder {
	d := &dependency{name: name, kind: EdgeOptional}
	if slot != nil {
		d.slot = slot
	}
	b.deps = append(b.deps, d)
	return b
}

// Lazy 添加延迟依赖
func Lazy[T any](b *Builder, name types.ServiceName, value *LazyValue[T]) *Builder {
	d := &dependency{name: name, kind: EdgeLazy}
	if value != nil {
		d.lazy = value
	}
	b.deps = append(b.deps, d)
	return b
}

// Install 安装单元
//
// 必需与延迟依赖必须已安装，否则返回 ErrMissingDependency 且不做任何注册。
// ModeActive 单元安装后立即启动，启动失败只记录在单元状态中。
func (b *Builder) Install() error {
	return b.c.install(b)
}
