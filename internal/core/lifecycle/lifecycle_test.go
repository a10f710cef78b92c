package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/eventbus"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// ============================================================================
//                              测试替身
// ============================================================================

type fakeChannel struct {
	name       string
	connectErr error

	mu        sync.Mutex
	cluster   string
	withState bool
	connected bool
	closed    bool
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) ClusterName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cluster
}

func (c *fakeChannel) Address() types.Address { return types.Address{Name: c.name, ID: "0001"} }
func (c *fakeChannel) View() *types.View      { return nil }

func (c *fakeChannel) Connect(cluster string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.cluster, c.connected = cluster, true
	return nil
}

func (c *fakeChannel) ConnectWithState(_ context.Context, cluster string) error {
	if err := c.Connect(cluster); err != nil {
		return err
	}
	c.mu.Lock()
	c.withState = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cluster, c.connected = "", false
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cluster, c.connected, c.closed = "", false, true
	return nil
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) isClosed() bool { return !c.IsOpen() }

func (c *fakeChannel) Send(*types.Message) error           { return nil }
func (c *fakeChannel) SetReceiver(pkgif.Receiver)          {}
func (c *fakeChannel) ProtocolStack() pkgif.ProtocolStack { return nil }

type fakeFactory struct {
	cfg        *types.StackConfiguration
	connectErr error
	block      chan struct{}

	mu      sync.Mutex
	created []*fakeChannel
}

func (f *fakeFactory) CreateChannel(name string) (pkgif.Channel, error) {
	if f.block != nil {
		<-f.block
	}
	ch := &fakeChannel{name: name, connectErr: f.connectErr}
	f.mu.Lock()
	f.created = append(f.created, ch)
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeFactory) Configuration() *types.StackConfiguration { return f.cfg }

func (f *fakeFactory) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// valueService 把固定值作为产出的服务单元
type valueService struct{ value any }

func (s *valueService) Start(context.Context) error { return nil }
func (s *valueService) Stop(context.Context) error  { return nil }
func (s *valueService) Value() any                  { return s.value }

type fixture struct {
	container *service.Container
	manager   *Manager
	bus       *eventbus.Bus
	catalog   *catalog.Catalog
}

func newFixture(t *testing.T, stack string, factory pkgif.ChannelFactory, mutate func(*config.LifecycleConfig)) *fixture {
	t.Helper()
	cat := catalog.New()
	toolkit.RegisterBuiltins(cat)

	c := service.New()
	require.NoError(t, c.AddService(types.StackServiceName(stack), &valueService{value: factory}).Install())

	cfg := config.DefaultLifecycleConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	worker := NewWorker(cfg.WorkerQueue)
	t.Cleanup(worker.Close)

	bus := eventbus.NewBus()
	m, err := NewManager(c, compiler.New(cat), worker, bus, cfg, clock.NewMock(), stack)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return &fixture{container: c, manager: m, bus: bus, catalog: cat}
}

func subscribe(t *testing.T, bus *eventbus.Bus, evt any) pkgif.Subscription {
	t.Helper()
	sub, err := bus.Subscribe(evt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func next(t *testing.T, sub pkgif.Subscription) any {
	t.Helper()
	select {
	case e := <-sub.Out():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// ============================================================================
//                              ChannelService
// ============================================================================

func TestChannel_StartAndStopEmitEvents(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}}
	f := newFixture(t, "udp", factory, nil)
	started := subscribe(t, f.bus, new(types.EvtChannelStarted))
	stopped := subscribe(t, f.bus, new(types.EvtChannelStopped))

	unit, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee", Cluster: "web"})
	require.NoError(t, err)
	assert.Equal(t, types.ChannelServiceName("ee"), unit)

	ch, h, err := f.manager.Channel(context.Background(), "ee")
	require.NoError(t, err)
	assert.Equal(t, "ee", ch.Name())
	assert.Equal(t, "web", ch.ClusterName())
	assert.False(t, factory.last().withState)

	evt := next(t, started).(types.EvtChannelStarted)
	assert.Equal(t, unit, evt.Service)
	assert.Equal(t, "web", evt.Cluster)
	assert.Equal(t, "ee-0001", evt.Address)

	peeked, ok := f.manager.Peek("ee")
	require.True(t, ok)
	assert.Same(t, ch, peeked)

	require.NoError(t, h.Release())
	assert.True(t, factory.last().isClosed())
	stop := next(t, stopped).(types.EvtChannelStopped)
	assert.Equal(t, "ee", stop.Channel)
	assert.NoError(t, stop.Err)

	_, ok = f.manager.Peek("ee")
	assert.False(t, ok)
}

func TestChannel_StateTransferStack(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp", StateTransfer: true}}
	f := newFixture(t, "udp", factory, nil)

	_, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	require.NoError(t, err)
	ch, h, err := f.manager.Channel(context.Background(), "ee")
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, "ee", ch.ClusterName())
	assert.True(t, factory.last().withState)
}

func TestChannel_ConnectFailure(t *testing.T) {
	boom := errors.New("boom")
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}, connectErr: boom}
	f := newFixture(t, "udp", factory, nil)
	failed := subscribe(t, f.bus, new(types.EvtChannelFailed))

	unit, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	require.NoError(t, err)

	_, _, err = f.manager.Channel(context.Background(), "ee")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, err, boom)
	assert.True(t, service.IsStartFailure(err))
	assert.True(t, factory.last().isClosed())

	evt := next(t, failed).(types.EvtChannelFailed)
	assert.ErrorIs(t, evt.Err, ErrConnectFailed)

	st, err := f.container.State(unit)
	require.NoError(t, err)
	assert.Equal(t, service.StateFailed, st)
}

func TestChannel_AbandonedStartClosesChannel(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}, block: make(chan struct{})}
	f := newFixture(t, "udp", factory, func(c *config.LifecycleConfig) {
		c.StartTimeout = config.Duration(20 * time.Millisecond)
	})
	stopped := subscribe(t, f.bus, new(types.EvtChannelStopped))
	started := subscribe(t, f.bus, new(types.EvtChannelStarted))

	_, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	require.NoError(t, err)

	_, _, err = f.manager.Channel(context.Background(), "ee")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, factory.last())

	close(factory.block)
	assert.Eventually(t, func() bool {
		ch := factory.last()
		return ch != nil && ch.isClosed()
	}, 2*time.Second, 5*time.Millisecond)

	evt := next(t, stopped).(types.EvtChannelStopped)
	assert.Equal(t, "ee", evt.Channel)
	select {
	case e := <-started.Out():
		t.Fatalf("unexpected started event %v", e)
	default:
	}
}

func TestChannel_InstallErrors(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}}
	f := newFixture(t, "udp", factory, nil)

	_, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	require.NoError(t, err)
	_, err = f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	assert.ErrorIs(t, err, ErrDuplicateChannel)

	_, err = f.manager.InstallChannel(types.ChannelDefinition{Name: "other", Stack: "missing"})
	assert.ErrorIs(t, err, service.ErrMissingDependency)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, _, err = f.manager.Channel(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrChannelNotInstalled)
	assert.ErrorIs(t, err, types.ErrNotFound)

	f.manager.defaultStack = ""
	_, err = f.manager.InstallChannel(types.ChannelDefinition{Name: "nostack"})
	assert.ErrorIs(t, err, ErrNoStack)
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.Equal(t, []string{"ee"}, f.manager.Channels())
	require.NoError(t, f.manager.UninstallChannel("ee"))
	assert.False(t, f.container.Installed(types.ChannelServiceName("ee")))
	assert.ErrorIs(t, f.manager.UninstallChannel("ee"), ErrChannelNotInstalled)
}

func TestChannel_Activate(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}}
	f := newFixture(t, "udp", factory, nil)

	_, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	require.NoError(t, err)
	require.NoError(t, f.manager.Activate("ee"))

	assert.Eventually(t, func() bool {
		ch := factory.last()
		return ch != nil && ch.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, f.manager.Activate("nope"), ErrChannelNotInstalled)
	require.NoError(t, f.container.Close())
	assert.True(t, factory.last().isClosed())
}

// ============================================================================
//                              ConnectedChannelService
// ============================================================================

func TestConnectedChannel(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}}
	f := newFixture(t, "udp", factory, nil)
	started := subscribe(t, f.bus, new(types.EvtChannelStarted))

	unit, err := f.manager.InstallConnectedChannel("ee", "", "other")
	require.NoError(t, err)
	assert.Equal(t, types.ConnectedChannelServiceName("ee"), unit)
	assert.Equal(t, []types.ServiceName{types.ChannelServiceName("ee"), unit}, f.manager.Units("ee"))

	ch, h, err := f.manager.Channel(context.Background(), "ee")
	require.NoError(t, err)
	assert.Equal(t, "other", ch.ClusterName())

	evt := next(t, started).(types.EvtChannelStarted)
	assert.Equal(t, unit, evt.Service)

	require.NoError(t, h.Release())
	assert.True(t, factory.last().isClosed())

	err = f.manager.UninstallChannel("ee")
	require.NoError(t, err)
	assert.False(t, f.container.Installed(types.ChannelServiceName("ee")))
}

// ============================================================================
//                              ForkChannelService
// ============================================================================

func udpFactory(t *testing.T, cat *catalog.Catalog) pkgif.ChannelFactory {
	t.Helper()
	cfg := &types.StackConfiguration{
		Name: "udp",
		Transport: types.TransportConfiguration{
			ProtocolConfiguration: types.ProtocolConfiguration{Type: "UDP", Properties: map[string]string{}},
		},
		Protocols: []types.ProtocolConfiguration{
			{Type: "PING", Properties: map[string]string{}},
			{Type: "pbcast.GMS", Properties: map[string]string{}},
		},
	}
	factory, err := toolkit.NewFactory(cat, toolkit.NewNetwork(), cfg, toolkit.Resources{})
	require.NoError(t, err)
	return factory
}

func TestForkChannel(t *testing.T) {
	cat := catalog.New()
	toolkit.RegisterBuiltins(cat)
	f := newFixture(t, "udp", udpFactory(t, cat), nil)

	_, err := f.manager.InstallChannel(types.ChannelDefinition{
		Name:  "ee",
		Forks: []types.ForkDefinition{{Name: "web", Protocols: []types.ProtocolDefinition{{Type: "FRAG2"}}}},
	})
	require.NoError(t, err)
	assert.Len(t, f.manager.Units("ee"), 2)

	fork, h, err := f.manager.Fork(context.Background(), "ee", "web")
	require.NoError(t, err)
	assert.True(t, fork.IsConnected())
	assert.Equal(t, "ee", fork.ClusterName())
	assert.NotNil(t, fork.ProtocolStack().FindProtocol("FRAG2"))

	parent, ok := f.manager.Peek("ee")
	require.True(t, ok)
	assert.NotNil(t, parent.ProtocolStack().FindProtocol(toolkit.ForkType))

	require.NoError(t, h.Release())
	assert.False(t, fork.IsOpen())

	_, _, err = f.manager.Fork(context.Background(), "ee", "missing")
	assert.ErrorIs(t, err, ErrChannelNotInstalled)
	require.NoError(t, f.manager.UninstallChannel("ee"))
	assert.False(t, f.container.Installed(types.ForkServiceName("ee", "web")))
}

func TestForkChannel_InvalidProtocolRejectedAtInstall(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}}
	f := newFixture(t, "udp", factory, nil)

	_, err := f.manager.InstallChannel(types.ChannelDefinition{
		Name:  "ee",
		Forks: []types.ForkDefinition{{Name: "web", Protocols: []types.ProtocolDefinition{{Type: "NOPE"}}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.False(t, f.container.Installed(types.ChannelServiceName("ee")))
	assert.Empty(t, f.manager.Channels())
}

func TestForkChannel_RefusesUnconnectedParent(t *testing.T) {
	eng, err := newEngine(NewWorker(1), nil, config.DefaultLifecycleConfig(), nil)
	require.NoError(t, err)
	defer eng.worker.Close()

	svc := newForkChannelService(eng, nil, "ee", "web", nil)
	err = svc.Start(context.Background())
	assert.ErrorIs(t, err, toolkit.ErrParentNotConnected)
	assert.Nil(t, svc.Value())
	assert.NoError(t, svc.Stop(context.Background()))
}

// ============================================================================
//                              Worker
// ============================================================================

func TestWorker_DrainsQueueOnClose(t *testing.T) {
	w := NewWorker(8)
	gate := make(chan struct{})
	var ran atomic.Int32

	require.NoError(t, w.Submit(func() { <-gate }))
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Submit(func() { ran.Add(1) }))
	}
	require.NoError(t, w.Submit(func() { panic("boom") }))

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()
	close(gate)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not close")
	}
	assert.Equal(t, int32(5), ran.Load())
	assert.ErrorIs(t, w.Submit(func() {}), ErrWorkerClosed)
	w.Close()
}

func TestChannel_StopAfterWorkerClosed(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}}
	f := newFixture(t, "udp", factory, nil)

	_, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	require.NoError(t, err)
	_, h, err := f.manager.Channel(context.Background(), "ee")
	require.NoError(t, err)

	f.manager.eng.worker.Close()
	require.NoError(t, h.Release())
	assert.True(t, factory.last().isClosed())
}

// ============================================================================
//                              启动超时与重启
// ============================================================================

// blockWorker 让 worker 停在一个任务上，返回放行函数
func blockWorker(t *testing.T, f *fixture) func() {
	t.Helper()
	gate := make(chan struct{})
	require.NoError(t, f.manager.eng.worker.Submit(func() { <-gate }))
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func TestForkChannel_RestartAfterStartTimeout(t *testing.T) {
	cat := catalog.New()
	toolkit.RegisterBuiltins(cat)
	f := newFixture(t, "udp", udpFactory(t, cat), func(c *config.LifecycleConfig) {
		c.StartTimeout = config.Duration(100 * time.Millisecond)
	})
	stopped := subscribe(t, f.bus, new(types.EvtChannelStopped))

	_, err := f.manager.InstallChannel(types.ChannelDefinition{
		Name:  "ee",
		Forks: []types.ForkDefinition{{Name: "web", Protocols: []types.ProtocolDefinition{{Type: "FRAG2"}}}},
	})
	require.NoError(t, err)
	_, ph, err := f.manager.Channel(context.Background(), "ee")
	require.NoError(t, err)
	defer ph.Release()

	release := blockWorker(t, f)
	_, _, err = f.manager.Fork(context.Background(), "ee", "web")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	st, err := f.container.State(types.ForkServiceName("ee", "web"))
	require.NoError(t, err)
	assert.Equal(t, service.StateFailed, st)

	// 放行后迟到的分叉通道被关闭，名称重新可用
	release()
	evt := next(t, stopped).(types.EvtChannelStopped)
	assert.Equal(t, "web", evt.Channel)

	fork, h, err := f.manager.Fork(context.Background(), "ee", "web")
	require.NoError(t, err)
	assert.True(t, fork.IsConnected())
	require.NoError(t, h.Release())
	assert.False(t, fork.IsOpen())
}

func TestConnectedChannel_RestartAfterStartTimeout(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}}
	f := newFixture(t, "udp", factory, func(c *config.LifecycleConfig) {
		c.StartTimeout = config.Duration(100 * time.Millisecond)
	})
	stopped := subscribe(t, f.bus, new(types.EvtChannelStopped))

	_, err := f.manager.InstallConnectedChannel("ee", "", "other")
	require.NoError(t, err)

	// 先打开底层通道，只让连接步骤超时
	h0, err := f.container.Acquire(context.Background(), types.ChannelServiceName("ee"))
	require.NoError(t, err)
	defer h0.Release()

	release := blockWorker(t, f)
	_, _, err = f.manager.Channel(context.Background(), "ee")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	evt := next(t, stopped).(types.EvtChannelStopped)
	assert.Equal(t, "other", evt.Cluster)
	assert.False(t, factory.last().IsConnected())

	ch, h, err := f.manager.Channel(context.Background(), "ee")
	require.NoError(t, err)
	assert.Equal(t, "other", ch.ClusterName())
	assert.True(t, ch.IsConnected())
	require.NoError(t, h.Release())
}

func TestManager_PeekDoesNotWaitForStart(t *testing.T) {
	factory := &fakeFactory{cfg: &types.StackConfiguration{Name: "udp"}, block: make(chan struct{})}
	f := newFixture(t, "udp", factory, func(c *config.LifecycleConfig) {
		c.StartTimeout = config.Duration(5 * time.Second)
	})
	_, err := f.manager.InstallChannel(types.ChannelDefinition{Name: "ee"})
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		_, h, err := f.manager.Channel(context.Background(), "ee")
		if err == nil {
			err = h.Release()
		}
		acquired <- err
	}()
	require.Eventually(t, func() bool {
		st, _ := f.container.State(types.ChannelServiceName("ee"))
		return st == service.StateStarting
	}, 2*time.Second, time.Millisecond)

	begin := time.Now()
	_, ok := f.manager.Peek("ee")
	assert.False(t, ok)
	assert.Less(t, time.Since(begin), time.Second)

	close(factory.block)
	require.NoError(t, <-acquired)
}
