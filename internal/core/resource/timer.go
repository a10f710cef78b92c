package resource

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
)

// Timer 基于 clock.Clock 的定时执行器
type Timer struct {
	name  string
	clock clock.Clock

	mu      sync.Mutex
	nextID  uint64
	cancels map[uint64]func()
	stopped bool
}

var _ pkgif.ScheduledExecutor = (*Timer)(nil)

// NewTimer 创建定时执行器，clk 为 nil 时使用系统时钟
func NewTimer(name string, clk clock.Clock) *Timer {
	if clk == nil {
		clk = clock.New()
	}
	return &Timer{name: name, clock: clk, cancels: make(map[uint64]func())}
}

// Name 定时执行器名
func (t *Timer) Name() string { return t.name }

// Schedule 延迟执行一次任务
func (t *Timer) Schedule(delay time.Duration, task func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return func() {}
	}
	id := t.nextID
	t.nextID++

	timer := t.clock.AfterFunc(delay, func() {
		if t.forget(id) {
			task()
		}
	})
	t.cancels[id] = func() { timer.Stop() }
	return func() {
		if t.forget(id) {
			timer.Stop()
		}
	}
}

// ScheduleAtFixedRate 按固定周期执行任务，直到取消或定时执行器停止
func (t *Timer) ScheduleAtFixedRate(period time.Duration, task func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || period <= 0 {
		return func() {}
	}
	id := t.nextID
	t.nextID++

	ticker := t.clock.Ticker(period)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
	t.cancels[id] = stop

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				task()
			}
		}
	}()
	return func() {
		if t.forget(id) {
			stop()
		}
	}
}

// Pending 尚未完成或取消的任务数
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cancels)
}

// forget 移除任务登记，返回任务是否仍在登记中
func (t *Timer) forget(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cancels[id]; !ok {
		return false
	}
	delete(t.cancels, id)
	return true
}

// Stop 取消所有任务，之后的调度请求被忽略
func (t *Timer) Stop() {
	t.mu.Lock()
	cancels := t.cancels
	t.cancels = make(map[uint64]func())
	t.stopped = true
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// timerService 定时执行器服务单元
type timerService struct {
	name  string
	clock clock.Clock
	timer *Timer
}

func (s *timerService) Start(context.Context) error {
	s.timer = NewTimer(s.name, s.clock)
	return nil
}

func (s *timerService) Stop(context.Context) error {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

func (s *timerService) Value() any { return pkgif.ScheduledExecutor(s.timer) }
