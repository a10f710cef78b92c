package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// fakeService 记录启停次数的测试服务
type fakeService struct {
	value    any
	startErr error
	stopErr  error
	onStart  func()

	starts atomic.Int32
	stops  atomic.Int32
}

func (s *fakeService) Start(context.Context) error {
	s.starts.Add(1)
	if s.onStart != nil {
		s.onStart()
	}
	return s.startErr
}

func (s *fakeService) Stop(context.Context) error {
	s.stops.Add(1)
	return s.stopErr
}

func (s *fakeService) Value() any { return s.value }

const (
	nBinding types.ServiceName = "socket-binding.udp"
	nTimer   types.ServiceName = "timer-executor.t"
	nStack   types.ServiceName = "jgroups.stack.udp"
	nDiag    types.ServiceName = "socket-binding.diag"
	nRemote  types.ServiceName = "jgroups.stack.remote"
)

func TestContainer_OnDemandRefCount(t *testing.T) {
	c := New()
	binding := &fakeService{value: "127.0.0.1:7600"}
	stack := &fakeService{value: 42}
	require.NoError(t, c.AddService(nBinding, binding).Install())

	var slot Injected[string]
	b := c.AddService(nStack, stack)
	Require(b, nBinding, &slot)
	require.NoError(t, b.Install())

	st, err := c.State(nStack)
	require.NoError(t, err)
	assert.Equal(t, StateDown, st)
	assert.Zero(t, binding.starts.Load())

	h1, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	h2, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)

	assert.Equal(t, int32(1), stack.starts.Load())
	assert.Equal(t, int32(1), binding.starts.Load())
	assert.Equal(t, "127.0.0.1:7600", slot.Get())
	assert.True(t, slot.Present())
	assert.Equal(t, 42, h1.Value())

	v, ok := c.Peek(nStack)
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	require.NoError(t, h1.Release())
	require.NoError(t, h1.Release())
	assert.Zero(t, stack.stops.Load())

	require.NoError(t, h2.Release())
	assert.Equal(t, int32(1), stack.stops.Load())
	assert.Equal(t, int32(1), binding.stops.Load())
	assert.False(t, slot.Present())

	_, ok = c.Peek(nStack)
	assert.False(t, ok)
	st, _ = c.State(nBinding)
	assert.Equal(t, StateDown, st)
}

func TestContainer_InstallIsAtomic(t *testing.T) {
	c := New()
	require.NoError(t, c.AddService(nBinding, &fakeService{}).Install())

	b := c.AddService(nStack, &fakeService{})
	Require[string](b, nBinding, nil)
	Require[string](b, nTimer, nil)
	err := b.Install()
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.False(t, c.Installed(nStack))

	b = c.AddService(nStack, &fakeService{})
	Lazy[string](b, nRemote, nil)
	assert.ErrorIs(t, b.Install(), ErrMissingDependency)

	b = c.AddService(nStack, &fakeService{})
	Optional[string](b, nDiag, nil)
	require.NoError(t, b.Install())

	err = c.AddService(nStack, &fakeService{}).Install()
	assert.ErrorIs(t, err, ErrDuplicateService)
	assert.Equal(t, []string{string(nStack), string(nBinding)}, c.Names())
}

func TestContainer_FailedStartIsRestartable(t *testing.T) {
	c := New()
	boom := errors.New("bind failed")
	binding := &fakeService{startErr: boom}
	sibling := &fakeService{value: "ok"}
	stack := &fakeService{}

	require.NoError(t, c.AddService(nBinding, binding).Install())
	require.NoError(t, c.AddService(nTimer, sibling).Install())
	b := c.AddService(nStack, stack)
	Require[any](b, nBinding, nil)
	Require[any](b, nTimer, nil)
	require.NoError(t, b.Install())

	_, err := c.Acquire(context.Background(), nStack)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsStartFailure(err))
	assert.Zero(t, stack.starts.Load())

	st, _ := c.State(nStack)
	assert.Equal(t, StateFailed, st)
	assert.ErrorIs(t, c.LastError(nStack), boom)

	// 兄弟依赖已被释放，不受影响
	st, _ = c.State(nTimer)
	assert.Equal(t, StateDown, st)

	binding.startErr = nil
	h, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	st, _ = c.State(nStack)
	assert.Equal(t, StateUp, st)
	assert.NoError(t, c.LastError(nStack))
	require.NoError(t, h.Release())
}

func TestContainer_TypeMismatch(t *testing.T) {
	c := New()
	require.NoError(t, c.AddService(nBinding, &fakeService{value: 7}).Install())

	var slot Injected[string]
	b := c.AddService(nStack, &fakeService{})
	Require(b, nBinding, &slot)
	require.NoError(t, b.Install())

	_, err := c.Acquire(context.Background(), nStack)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	st, _ := c.State(nBinding)
	assert.Equal(t, StateDown, st)
}

func TestContainer_OptionalDependency(t *testing.T) {
	c := New()
	var diag Injected[string]
	b := c.AddService(nStack, &fakeService{})
	Optional(b, nDiag, &diag)
	require.NoError(t, b.Install())

	h, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	assert.False(t, diag.Present())
	require.NoError(t, h.Release())

	require.NoError(t, c.AddService(nDiag, &fakeService{value: "diag"}).Install())
	h, err = c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	assert.Equal(t, "diag", diag.Get())

	// 运行中的单元持有可选边时不允许卸载
	assert.ErrorIs(t, c.Uninstall(nDiag), ErrDependentsStillPresent)
	require.NoError(t, h.Release())
	require.NoError(t, c.Uninstall(nDiag))
}

func TestContainer_OptionalFailureTreatedAsAbsent(t *testing.T) {
	c := New()
	require.NoError(t, c.AddService(nDiag, &fakeService{startErr: errors.New("no port")}).Install())
	var diag Injected[string]
	b := c.AddService(nStack, &fakeService{})
	Optional(b, nDiag, &diag)
	require.NoError(t, b.Install())

	h, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	assert.False(t, diag.Present())
	require.NoError(t, h.Release())
}

func TestContainer_LazyDependency(t *testing.T) {
	c := New()
	remote := &fakeService{value: "remote-factory"}
	require.NoError(t, c.AddService(nRemote, remote).Install())

	var lazy LazyValue[string]
	b := c.AddService(nStack, &fakeService{})
	Lazy(b, nRemote, &lazy)
	require.NoError(t, b.Install())

	_, err := lazy.Get(context.Background())
	assert.ErrorIs(t, err, ErrNotBound)

	h, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	assert.Zero(t, remote.starts.Load())
	assert.False(t, lazy.Started())

	v, err := lazy.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remote-factory", v)
	assert.Equal(t, int32(1), remote.starts.Load())
	assert.True(t, lazy.Started())

	v2, rh, err := lazy.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, v, v2)
	require.NoError(t, rh.Release())
	assert.Zero(t, remote.stops.Load())

	// 延迟边也阻止卸载
	assert.ErrorIs(t, c.Uninstall(nRemote), ErrDependentsStillPresent)

	require.NoError(t, h.Release())
	assert.Equal(t, int32(1), remote.stops.Load())
	assert.False(t, lazy.Started())
}

func TestContainer_Uninstall(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Uninstall(nStack), ErrServiceNotFound)
	assert.ErrorIs(t, c.Uninstall(nStack), types.ErrNotFound)

	require.NoError(t, c.AddService(nBinding, &fakeService{}).Install())
	b := c.AddService(nStack, &fakeService{})
	Require[any](b, nBinding, nil)
	require.NoError(t, b.Install())

	err := c.Uninstall(nBinding)
	assert.ErrorIs(t, err, ErrDependentsStillPresent)
	assert.Equal(t, []string{string(nStack)}, c.Dependents(nBinding))

	require.NoError(t, c.Uninstall(nStack))
	require.NoError(t, c.Uninstall(nBinding))
	assert.Empty(t, c.Names())

	_, err = c.Acquire(context.Background(), nStack)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestContainer_ActiveMode(t *testing.T) {
	c := New()
	binding := &fakeService{}
	active := &fakeService{value: "ch"}
	require.NoError(t, c.AddService(nBinding, binding).Install())

	b := c.AddService(nStack, active).SetMode(ModeActive)
	Require[any](b, nBinding, nil)
	require.NoError(t, b.Install())

	st, _ := c.State(nStack)
	assert.Equal(t, StateUp, st)
	assert.Equal(t, int32(1), binding.starts.Load())

	require.NoError(t, c.SetMode(nStack, ModeOnDemand))
	st, _ = c.State(nStack)
	assert.Equal(t, StateDown, st)

	require.NoError(t, c.SetMode(nStack, ModeActive))
	st, _ = c.State(nStack)
	assert.Equal(t, StateUp, st)

	require.NoError(t, c.Uninstall(nStack))
	assert.Equal(t, int32(2), active.stops.Load())
	st, _ = c.State(nBinding)
	assert.Equal(t, StateDown, st)
}

func TestContainer_StopErrorStillReleasesDependencies(t *testing.T) {
	c := New()
	binding := &fakeService{}
	require.NoError(t, c.AddService(nBinding, binding).Install())
	b := c.AddService(nStack, &fakeService{stopErr: errors.New("close failed")})
	Require[any](b, nBinding, nil)
	require.NoError(t, b.Install())

	h, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	assert.Error(t, h.Release())
	assert.Equal(t, int32(1), binding.stops.Load())
}

func TestContainer_ConcurrentAcquireStartsOnce(t *testing.T) {
	c := New()
	svc := &fakeService{}
	require.NoError(t, c.AddService(nStack, svc).Install())

	var wg sync.WaitGroup
	handles := make([]*Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Acquire(context.Background(), nStack)
			if err == nil {
				handles[i] = h
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), svc.starts.Load())

	for _, h := range handles {
		require.NotNil(t, h)
		require.NoError(t, h.Release())
	}
	assert.Equal(t, int32(1), svc.stops.Load())
}

func TestContainer_CancelledContext(t *testing.T) {
	c := New()
	svc := &fakeService{}
	require.NoError(t, c.AddService(nStack, svc).Install())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Acquire(ctx, nStack)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, svc.starts.Load())
}

func TestContainer_Snapshot(t *testing.T) {
	c := New()
	require.NoError(t, c.AddService(nBinding, &fakeService{}).Install())
	b := c.AddService(nStack, &fakeService{})
	Require[any](b, nBinding, nil)
	Optional[any](b, nDiag, nil)
	require.NoError(t, b.Install())

	h, err := c.Acquire(context.Background(), nStack)
	require.NoError(t, err)
	defer h.Release()

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, string(nStack), snap[0].Name)
	assert.Equal(t, "up", snap[0].State)
	assert.Equal(t, 1, snap[0].Refs)
	assert.Equal(t, map[string]string{string(nBinding): "required", string(nDiag): "optional"}, snap[0].Deps)
	assert.Equal(t, "up", snap[1].State)
}

func TestModule_CloseReleasesActiveUnits(t *testing.T) {
	var c *Container
	app := fxtest.New(t, Module(), fx.Populate(&c))
	app.RequireStart()

	svc := &fakeService{}
	require.NoError(t, c.AddService(nStack, svc).SetMode(ModeActive).Install())
	assert.Equal(t, int32(1), svc.starts.Load())

	app.RequireStop()
	assert.Equal(t, int32(1), svc.stops.Load())
	assert.ErrorIs(t, c.AddService(nBinding, &fakeService{}).Install(), ErrContainerClosed)
}

func TestContainer_ReadsDoNotWaitForStart(t *testing.T) {
	c := New()
	gate := make(chan struct{})
	svc := &fakeService{value: 7, onStart: func() { <-gate }}
	require.NoError(t, c.AddService(nStack, svc).Install())

	acquired := make(chan *Handle, 1)
	go func() {
		h, err := c.Acquire(context.Background(), nStack)
		assert.NoError(t, err)
		acquired <- h
	}()
	require.Eventually(t, func() bool {
		st, _ := c.State(nStack)
		return st == StateStarting
	}, 2*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := c.Peek(nStack)
		assert.False(t, ok)
		snap := c.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, StateStarting.String(), snap[0].State)
		assert.NoError(t, c.LastError(nStack))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reads blocked by a start in progress")
	}

	close(gate)
	h := <-acquired
	v, ok := c.Peek(nStack)
	require.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Equal(t, 7, h.Value())
	require.NoError(t, h.Release())
}

func TestContainer_RejectsCycles(t *testing.T) {
	c := New()

	// a 的可选依赖 b 尚未安装，安装 b 时才形成环
	a := c.AddService("a", &fakeService{})
	Optional[any](a, "b", nil)
	require.NoError(t, a.Install())

	b := c.AddService("b", &fakeService{})
	Require[any](b, "a", nil)
	err := b.Install()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.False(t, c.Installed("b"))

	self := c.AddService("self", &fakeService{})
	Optional[any](self, "self", nil)
	assert.ErrorIs(t, self.Install(), ErrDependencyCycle)

	// 延迟边在启动后才取用，不构成启动环
	lazy := c.AddService("b", &fakeService{})
	Lazy[any](lazy, "a", nil)
	require.NoError(t, lazy.Install())

	h, err := c.Acquire(context.Background(), "a")
	require.NoError(t, err)
	require.NoError(t, h.Release())
}
