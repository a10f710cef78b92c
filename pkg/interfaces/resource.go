package interfaces

import (
	"context"
	"time"
)

// SocketBinding 命名套接字绑定
type SocketBinding interface {
	Name() string
	Host() string
	Port() int

	// Address 返回 host:port
	Address() string
}

// Executor 任务执行器
type Executor interface {
	// Execute 提交任务，执行器已关闭或上下文取消时返回错误
	Execute(ctx context.Context, task func()) error
}

// ScheduledExecutor 定时执行器
type ScheduledExecutor interface {
	// Schedule 延迟执行任务，返回取消函数
	Schedule(delay time.Duration, task func()) (cancel func())

	// ScheduleAtFixedRate 按固定周期执行任务，返回取消函数
	ScheduleAtFixedRate(period time.Duration, task func()) (cancel func())
}

// ThreadFactory 线程（goroutine）工厂
type ThreadFactory interface {
	// NewThread 以工厂命名规则启动一个 goroutine 执行任务
	NewThread(task func()) string
}
