package resource

import (
	"context"
	"fmt"
	"runtime/pprof"
	"strings"
	"sync/atomic"

	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
)

// ThreadFactory 按命名模式启动 goroutine
//
// goroutine 带有 pprof 标签 thread=<名称>，便于在 profile 中区分。
type ThreadFactory struct {
	name    string
	pattern string
	seq     atomic.Uint64
}

var _ pkgif.ThreadFactory = (*ThreadFactory)(nil)

// NewThreadFactory 创建线程工厂
//
// pattern 中的 %d 替换为序号；为空时使用 "<name>-%d"，不含 %d 时追加 "-%d"。
func NewThreadFactory(name, pattern string) *ThreadFactory {
	switch {
	case pattern == "":
		pattern = name + "-%d"
	case !strings.Contains(pattern, "%d"):
		pattern += "-%d"
	}
	return &ThreadFactory{name: name, pattern: pattern}
}

// Name 工厂名
func (f *ThreadFactory) Name() string { return f.name }

// NewThread 启动 goroutine 执行任务，返回分配的线程名
func (f *ThreadFactory) NewThread(task func()) string {
	name := fmt.Sprintf(f.pattern, f.seq.Add(1))
	go pprof.Do(context.Background(), pprof.Labels("thread", name), func(context.Context) {
		task()
	})
	return name
}

// threadFactoryService 线程工厂服务单元
type threadFactoryService struct {
	factory *ThreadFactory
}

func (s *threadFactoryService) Start(context.Context) error { return nil }

func (s *threadFactoryService) Stop(context.Context) error { return nil }

func (s *threadFactoryService) Value() any { return pkgif.ThreadFactory(s.factory) }
