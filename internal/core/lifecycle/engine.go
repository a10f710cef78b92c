package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-groupstack/config"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
	"github.com/dep2p/go-groupstack/pkg/types"
)

var logger = log.Logger("core/lifecycle")

// engine 通道服务共享的 worker、事件与超时设置
type engine struct {
	worker *Worker
	clock  clock.Clock

	startTimeout time.Duration
	stopTimeout  time.Duration
	stateTimeout time.Duration

	started pkgif.Emitter
	stopped pkgif.Emitter
	failed  pkgif.Emitter
}

func newEngine(worker *Worker, bus pkgif.EventBus, cfg config.LifecycleConfig, clk clock.Clock) (*engine, error) {
	if clk == nil {
		clk = clock.New()
	}
	e := &engine{
		worker:       worker,
		clock:        clk,
		startTimeout: cfg.StartTimeout.Duration(),
		stopTimeout:  cfg.StopTimeout.Duration(),
		stateTimeout: cfg.StateTransferTimeout.Duration(),
	}
	if bus == nil {
		return e, nil
	}
	var err error
	if e.started, err = bus.Emitter(new(types.EvtChannelStarted)); err != nil {
		return nil, err
	}
	if e.stopped, err = bus.Emitter(new(types.EvtChannelStopped)); err != nil {
		return nil, err
	}
	if e.failed, err = bus.Emitter(new(types.EvtChannelFailed)); err != nil {
		return nil, err
	}
	return e, nil
}

// run 在 worker 上执行 fn 并等待结果，超时后 fn 仍会执行完
func (e *engine) run(ctx context.Context, timeout time.Duration, fn func() error) error {
	result := make(chan error, 1)
	if err := e.worker.Submit(func() { result <- fn() }); err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("lifecycle task: %w", ctx.Err())
	}
}

// startTask 一次提交到 worker 的启动任务
type startTask struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	abandoned bool
}

// start 在 worker 上执行 fn，等待到完成或启动超时
//
// 调用方超时或 ctx 取消后任务被标记为放弃；fn 之后成功完成时，
// worker 立即调用 fn 返回的 undo 撤销它的结果。
func (e *engine) start(ctx context.Context, fn func() (undo func(), err error)) error {
	t := &startTask{done: make(chan struct{})}
	err := e.worker.Submit(func() {
		undo, err := fn()
		t.mu.Lock()
		t.err = err
		abandoned := t.abandoned
		close(t.done)
		t.mu.Unlock()
		if abandoned && err == nil && undo != nil {
			undo()
		}
	})
	if err != nil {
		return err
	}

	if e.startTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.startTimeout)
		defer cancel()
	}
	select {
	case <-t.done:
	case <-ctx.Done():
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		return t.err
	default:
		t.abandoned = true
		return fmt.Errorf("lifecycle task: %w", ctx.Err())
	}
}

// stop 在 worker 上执行关闭任务，worker 已关闭时直接在当前 goroutine 执行
func (e *engine) stop(ctx context.Context, fn func() error) error {
	err := e.run(ctx, e.stopTimeout, fn)
	if errors.Is(err, ErrWorkerClosed) {
		return fn()
	}
	return err
}

// connect 连接到集群，协议栈支持状态传输时同时获取初始状态
func (e *engine) connect(ch pkgif.Channel, cluster string, withState bool) error {
	if !withState {
		return ch.Connect(cluster)
	}
	ctx := context.Background()
	if e.stateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stateTimeout)
		defer cancel()
	}
	return ch.ConnectWithState(ctx, cluster)
}

func (e *engine) emitStarted(unit types.ServiceName, ch pkgif.Channel) {
	if e.started == nil {
		return
	}
	_ = e.started.Emit(types.EvtChannelStarted{
		Service:   unit,
		Channel:   ch.Name(),
		Cluster:   ch.ClusterName(),
		Address:   ch.Address().String(),
		Timestamp: e.clock.Now(),
	})
}

func (e *engine) emitStopped(unit types.ServiceName, channel, cluster string, err error) {
	if e.stopped == nil {
		return
	}
	_ = e.stopped.Emit(types.EvtChannelStopped{
		Service:   unit,
		Channel:   channel,
		Cluster:   cluster,
		Err:       err,
		Timestamp: e.clock.Now(),
	})
}

func (e *engine) emitFailed(unit types.ServiceName, channel, cluster string, err error) {
	if e.failed == nil {
		return
	}
	_ = e.failed.Emit(types.EvtChannelFailed{
		Service:   unit,
		Channel:   channel,
		Cluster:   cluster,
		Err:       err,
		Timestamp: e.clock.Now(),
	})
}

func (e *engine) close() {
	for _, em := range []pkgif.Emitter{e.started, e.stopped, e.failed} {
		if em != nil {
			_ = em.Close()
		}
	}
}
