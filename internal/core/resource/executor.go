package resource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
)

// Executor 有界执行器
//
// 同时运行的任务数不超过 maxThreads，提交方在没有空闲槽位时阻塞。
type Executor struct {
	name       string
	maxThreads int64
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	shutdown   atomic.Bool
	running    atomic.Int64
	completed  atomic.Int64
}

var _ pkgif.Executor = (*Executor)(nil)

// NewExecutor 创建执行器，maxThreads 小于 1 时按 1 处理
func NewExecutor(name string, maxThreads int) *Executor {
	if maxThreads < 1 {
		maxThreads = 1
	}
	return &Executor{
		name:       name,
		maxThreads: int64(maxThreads),
		sem:        semaphore.NewWeighted(int64(maxThreads)),
	}
}

// Name 执行器名
func (e *Executor) Name() string { return e.name }

// Execute 提交任务
func (e *Executor) Execute(ctx context.Context, task func()) error {
	if e.shutdown.Load() {
		return fmt.Errorf("%w: %s", ErrExecutorShutdown, e.name)
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if e.shutdown.Load() {
		e.sem.Release(1)
		return fmt.Errorf("%w: %s", ErrExecutorShutdown, e.name)
	}
	e.wg.Add(1)
	e.running.Add(1)
	go func() {
		defer func() {
			e.running.Add(-1)
			e.completed.Add(1)
			e.sem.Release(1)
			e.wg.Done()
		}()
		task()
	}()
	return nil
}

// Running 正在运行的任务数
func (e *Executor) Running() int64 { return e.running.Load() }

// Completed 已完成的任务数
func (e *Executor) Completed() int64 { return e.completed.Load() }

// Shutdown 拒绝新任务并等待已提交的任务完成
func (e *Executor) Shutdown(ctx context.Context) error {
	e.shutdown.Store(true)
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor %s: %w", e.name, ctx.Err())
	}
}

// executorService 执行器服务单元，每次启动创建新的执行器
type executorService struct {
	name       string
	maxThreads int
	exec       *Executor
}

func (s *executorService) Start(context.Context) error {
	s.exec = NewExecutor(s.name, s.maxThreads)
	return nil
}

func (s *executorService) Stop(ctx context.Context) error {
	exec := s.exec
	s.exec = nil
	if exec == nil {
		return nil
	}
	return exec.Shutdown(ctx)
}

func (s *executorService) Value() any { return pkgif.Executor(s.exec) }
