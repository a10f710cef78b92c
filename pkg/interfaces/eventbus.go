package interfaces

// EventBus 事件总线
//
// 事件按 Go 类型路由，订阅与发射都以事件类型的指针作为键：
//
//	sub, _ := bus.Subscribe(new(types.EvtChannelStarted))
//	em, _ := bus.Emitter(new(types.EvtChannelStarted))
type EventBus interface {
	Subscribe(eventType any, opts ...SubscriptionOpt) (Subscription, error)
	Emitter(eventType any, opts ...EmitterOpt) (Emitter, error)
}

// Subscription 事件订阅
type Subscription interface {
	// Out 返回接收事件的通道，Close 后通道关闭
	Out() <-chan any
	Close() error
}

// Emitter 事件发射器
type Emitter interface {
	Emit(event any) error
	Close() error
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*SubscriptionSettings)

// EmitterOpt 发射器选项
type EmitterOpt func(*EmitterSettings)

// SubscriptionSettings 订阅设置
type SubscriptionSettings struct {
	Buffer int
}

// EmitterSettings 发射器设置
type EmitterSettings struct {
	// Stateful 新订阅者会立即收到最后一个事件
	Stateful bool
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = size
	}
}

// Stateful 设置发射器为有状态模式
func Stateful() EmitterOpt {
	return func(s *EmitterSettings) {
		s.Stateful = true
	}
}
