package toolkit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
	"github.com/dep2p/go-groupstack/pkg/types"
)

var logger = log.Logger("core/toolkit")

// inboxSize 每个通道的接收队列长度
const inboxSize = 256

// Channel 工具包通道
type Channel struct {
	name    string
	addr    types.Address
	factory *Factory
	stack   atomic.Pointer[Stack]

	mu        sync.Mutex
	closed    bool
	connected bool
	cluster   string
	cancels   []func()

	view     atomic.Pointer[types.View]
	receiver atomic.Pointer[interfaces.Receiver]

	inbox chan packet
	done  chan struct{}
}

var _ interfaces.Channel = (*Channel)(nil)

func newChannel(name string, f *Factory, stack *Stack) *Channel {
	c := &Channel{
		name:    name,
		addr:    types.Address{Name: name, ID: uuid.NewString()},
		factory: f,
		inbox:   make(chan packet, inboxSize),
		done:    make(chan struct{}),
	}
	c.stack.Store(stack)
	if t := stack.transport(); t != nil {
		t.local.Store(&c.addr)
	}
	if g := stack.gms(); g != nil {
		g.local.Store(&c.addr)
	}

	if tf := f.res.ThreadFactory; tf != nil {
		tf.NewThread(c.loop)
	} else {
		go c.loop()
	}
	return c
}

// Name 通道名
func (c *Channel) Name() string { return c.name }

// Address 本地成员地址
func (c *Channel) Address() types.Address { return c.addr }

// ClusterName 当前集群名
func (c *Channel) ClusterName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cluster
}

// View 当前组视图
func (c *Channel) View() *types.View {
	return c.view.Load()
}

// IsOpen 通道是否未关闭
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// IsConnected 通道是否已连接
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ProtocolStack 返回协议链，关闭后返回 nil
func (c *Channel) ProtocolStack() interfaces.ProtocolStack {
	if s := c.stack.Load(); s != nil {
		return s
	}
	return nil
}

// SetReceiver 设置接收回调
func (c *Channel) SetReceiver(r interfaces.Receiver) {
	if r == nil {
		c.receiver.Store(nil)
		return
	}
	c.receiver.Store(&r)
}

// Connect 连接到集群
func (c *Channel) Connect(cluster string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(cluster)
}

func (c *Channel) connectLocked(cluster string) error {
	if c.closed {
		return ErrChannelClosed
	}
	if cluster == "" {
		return ErrInvalidCluster
	}
	if c.connected {
		if c.cluster == cluster {
			return nil
		}
		return ErrAlreadyConnected
	}

	stack := c.stack.Load()
	if t := stack.transport(); t != nil {
		t.cluster.Store(&cluster)
	}
	for _, l := range stack.list() {
		if isDiscovery(l.Name()) {
			l.base().add(cDiscoveryRuns, 1)
		}
	}

	c.cluster = cluster
	c.connected = true
	c.factory.network.join(cluster, c)
	c.startHeartbeats(stack)

	logger.Debug("通道已连接", "channel", c.name, "cluster", cluster, "address", c.addr.String())
	return nil
}

// ConnectWithState 连接到集群并向协调者请求初始状态
func (c *Channel) ConnectWithState(ctx context.Context, cluster string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	st := c.stateTransfer()
	if st == nil {
		return ErrStateTransferUnsupported
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 加入前的协调者即状态提供方；自己成为协调者时没有状态可取
	provider := c.factory.network.coordinator(cluster)
	if err := c.connectLocked(cluster); err != nil {
		return err
	}
	if provider != nil {
		st.add(cStateRequests, 1)
	}
	if err := ctx.Err(); err != nil {
		c.disconnectLocked()
		return err
	}
	return nil
}

// Disconnect 断开连接
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
	return nil
}

func (c *Channel) disconnectLocked() {
	if !c.connected {
		return
	}
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil

	c.factory.network.leave(c.cluster, c)
	if t := c.stack.Load().transport(); t != nil {
		t.cluster.Store(nil)
	}
	if g := c.stack.Load().gms(); g != nil {
		g.view.Store(nil)
	}
	c.view.Store(nil)

	logger.Debug("通道已断开", "channel", c.name, "cluster", c.cluster)
	c.cluster = ""
	c.connected = false
}

// Close 断开并关闭通道，释放跨站点桥接
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.disconnectLocked()
	c.closed = true
	stack := c.stack.Swap(nil)
	close(c.done)
	c.mu.Unlock()

	var err error
	for _, l := range stack.list() {
		switch v := l.(type) {
		case *Relay:
			err = multierr.Append(err, v.close())
		case *Fork:
			err = multierr.Append(err, v.close())
		}
	}
	return err
}

// Send 发送消息
//
// Site 非空且不是本地站点时经中继层转发。
func (c *Channel) Send(msg *types.Message) error {
	return c.send(packet{msg: msg}, nil)
}

func (c *Channel) send(p packet, above []layer) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	cluster := c.cluster
	stack := c.stack.Load()
	c.mu.Unlock()

	out := *p.msg
	out.Src = c.addr
	p.msg = &out

	layers := stack.list()
	if out.Site != "" {
		relay := findRelay(layers)
		if relay == nil {
			return ErrNoRelay
		}
		if out.Site != relay.site {
			return relay.forward(context.Background(), c.name, &out)
		}
	}

	// 分叉子栈位于主协议链之上，先经过
	for i := len(above) - 1; i >= 0; i-- {
		above[i].onSend(&out)
	}
	for i := len(layers) - 1; i >= 0; i-- {
		layers[i].onSend(&out)
	}
	c.factory.network.send(cluster, p)
	return nil
}

// ============================================================================
//                              接收
// ============================================================================

func (c *Channel) address() types.Address { return c.addr }

func (c *Channel) viewChanged(v *types.View) {
	c.view.Store(v)
	if s := c.stack.Load(); s != nil {
		if g := s.gms(); g != nil {
			g.installView(v)
		}
	}
}

func (c *Channel) deliver(p packet) {
	select {
	case c.inbox <- p:
	case <-c.done:
	default:
		if s := c.stack.Load(); s != nil {
			s.list()[0].base().add(cDroppedDelivered, 1)
		}
		logger.Warn("接收队列已满，丢弃消息", "channel", c.name)
	}
}

func (c *Channel) loop() {
	for {
		select {
		case <-c.done:
			return
		case p := <-c.inbox:
			c.dispatch(p)
		}
	}
}

func (c *Channel) dispatch(p packet) {
	stack := c.stack.Load()
	if stack == nil {
		return
	}
	layers := stack.list()
	for _, l := range layers {
		l.onReceive(p.msg)
	}

	if p.fork != "" {
		if f := findFork(layers); f != nil {
			f.dispatch(p)
		}
		return
	}
	if r := c.receiver.Load(); r != nil {
		c.invoke(*r, p.msg)
	}
}

// invoke 单播使用 OOB 执行器，组播使用默认执行器，未配置时同步调用
func (c *Channel) invoke(r interfaces.Receiver, msg *types.Message) {
	exec := c.factory.res.DefaultExecutor
	if !msg.Dest.IsZero() && c.factory.res.OOBExecutor != nil {
		exec = c.factory.res.OOBExecutor
	}
	if exec == nil {
		r(msg)
		return
	}
	if err := exec.Execute(context.Background(), func() { r(msg) }); err != nil {
		logger.Warn("提交接收任务失败", "channel", c.name, "err", err)
	}
}

// ============================================================================
//                              辅助
// ============================================================================

// startHeartbeats 为故障检测层启动周期心跳
func (c *Channel) startHeartbeats(stack *Stack) {
	timer := c.factory.res.Timer
	if timer == nil {
		return
	}
	for _, l := range stack.list() {
		b := l.base()
		var key string
		switch b.name {
		case "FD":
			key = "timeout"
		case "FD_ALL":
			key = "interval"
		default:
			continue
		}
		period := b.durationSetting(key, 0)
		if period <= 0 {
			continue
		}
		c.cancels = append(c.cancels, timer.ScheduleAtFixedRate(period, func() {
			b.add(cHeartbeatsSent, 1)
		}))
	}
}

func (c *Channel) stateTransfer() *StateTransfer {
	for _, l := range c.stack.Load().list() {
		if st, ok := l.(*StateTransfer); ok {
			return st
		}
	}
	return nil
}

func isDiscovery(name string) bool {
	switch name {
	case "PING", "MPING", "TCPPING":
		return true
	}
	return false
}
