// Package eventbus 实现进程内事件总线
//
// 生命周期 worker 通过总线异步上报通道启动/停止结果，
// 订阅者按事件类型接收。慢消费者的事件会被丢弃而不是阻塞发射方。
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

var (
	// ErrClosed 订阅或发射器已关闭
	ErrClosed = errors.New("eventbus: closed")
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("eventbus: invalid event type")
	// ErrNonPointerType 事件类型必须以指针形式给出
	ErrNonPointerType = errors.New("eventbus: event type must be a pointer")
)

// defaultBuffer 订阅默认缓冲区大小
const defaultBuffer = 16

// Bus 事件总线
type Bus struct {
	mu    sync.Mutex
	nodes map[reflect.Type]*node
}

var _ pkgif.EventBus = (*Bus)(nil)

// node 单个事件类型的订阅者集合
type node struct {
	mu        sync.Mutex
	typ       reflect.Type
	sinks     []*Subscription
	keepLast  bool
	last      any
	dropCount atomic.Int64
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{nodes: make(map[reflect.Type]*node)}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe(eventType any, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := pkgif.SubscriptionSettings{Buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&settings)
	}

	sub := &Subscription{
		bus: b,
		typ: typ,
		out: make(chan any, settings.Buffer),
	}

	n := b.node(typ)
	n.mu.Lock()
	n.sinks = append(n.sinks, sub)
	if n.keepLast && n.last != nil {
		select {
		case sub.out <- n.last:
		default:
		}
	}
	n.mu.Unlock()

	return sub, nil
}

// Emitter 获取发射器
func (b *Bus) Emitter(eventType any, opts ...pkgif.EmitterOpt) (pkgif.Emitter, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	var settings pkgif.EmitterSettings
	for _, opt := range opts {
		opt(&settings)
	}

	n := b.node(typ)
	if settings.Stateful {
		n.mu.Lock()
		n.keepLast = true
		n.mu.Unlock()
	}
	return &Emitter{node: n}, nil
}

func (b *Bus) node(typ reflect.Type) *node {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ}
		b.nodes[typ] = n
	}
	return n
}

func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	n, ok := b.nodes[sub.typ]
	b.mu.Unlock()
	if !ok {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			break
		}
	}
	// 在持有节点锁时关闭，保证 emit 不会向已关闭的通道发送
	close(sub.out)
}

func (n *node) emit(event any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.keepLast {
		n.last = event
	}
	for _, sub := range n.sinks {
		select {
		case sub.out <- event:
		default:
			if dropped := n.dropCount.Add(1); dropped%100 == 1 {
				logger.Warn("慢消费者检测", "dropped", dropped, "type", n.typ)
			}
		}
	}
}

func elemType(eventType any) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}
