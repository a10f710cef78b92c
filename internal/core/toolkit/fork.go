package toolkit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// ForkType 分叉多路复用层类型名
const ForkType = "FORK"

// Fork 分叉多路复用层
//
// 位于主协议链顶部，按分叉名把消息分发给分叉通道。
type Fork struct {
	*Layer

	mu    sync.RWMutex
	forks map[string]*ForkChannel
}

func newForkLayer(base *Layer) *Fork {
	return &Fork{Layer: base, forks: make(map[string]*ForkChannel)}
}

// Forks 已连接的分叉名（排序）
func (f *Fork) Forks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.forks))
	for name := range f.forks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Fork) register(fc *ForkChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.forks[fc.name]; ok {
		return fmt.Errorf("%w: %s", ErrForkExists, fc.name)
	}
	f.forks[fc.name] = fc
	return nil
}

func (f *Fork) unregister(fc *ForkChannel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forks[fc.name] == fc {
		delete(f.forks, fc.name)
	}
}

func (f *Fork) dispatch(p packet) {
	f.mu.RLock()
	fc := f.forks[p.fork]
	f.mu.RUnlock()
	if fc != nil {
		fc.dispatch(p)
	}
}

// close 父通道关闭时关闭所有分叉通道
func (f *Fork) close() error {
	f.mu.Lock()
	forks := f.forks
	f.forks = make(map[string]*ForkChannel)
	f.mu.Unlock()

	for _, fc := range forks {
		fc.closed.Store(true)
	}
	return nil
}

func findFork(layers []layer) *Fork {
	for i := len(layers) - 1; i >= 0; i-- {
		if f, ok := layers[i].(*Fork); ok {
			return f
		}
	}
	return nil
}

// ============================================================================
//                              分叉通道
// ============================================================================

// ForkChannel 分叉通道
//
// 与父通道共享地址、视图和集群，拥有自己的私有子栈。
// 只能在父通道已连接时创建，父通道关闭后随之失效。
type ForkChannel struct {
	name   string
	parent *Channel
	fork   *Fork
	layers []layer

	connected atomic.Bool
	closed    atomic.Bool
	receiver  atomic.Pointer[interfaces.Receiver]
}

var _ interfaces.Channel = (*ForkChannel)(nil)

// NewForkChannel 在父通道之上创建分叉通道
//
// 父通道协议链顶部没有 FORK 层时自动插入。
func NewForkChannel(parent interfaces.Channel, name string, protocols []types.ProtocolConfiguration) (*ForkChannel, error) {
	if parent == nil {
		return nil, ErrParentNotConnected
	}
	pc, ok := parent.(*Channel)
	if !ok {
		return nil, ErrForeignChannel
	}
	if !pc.IsConnected() {
		return nil, ErrParentNotConnected
	}
	stack := pc.stack.Load()
	if stack == nil {
		return nil, ErrParentNotConnected
	}

	fork, err := pc.ensureFork(stack)
	if err != nil {
		return nil, err
	}

	cat := pc.factory.catalog
	base := len(stack.list())
	layers := make([]layer, len(protocols))
	for i, p := range protocols {
		chain, err := cat.Chain(p.Type)
		if err != nil {
			return nil, fmt.Errorf("fork %s: %w", name, err)
		}
		layers[i] = newProtocolLayer(chain, base+i, p)
	}

	return &ForkChannel{
		name:   name,
		parent: pc,
		fork:   fork,
		layers: layers,
	}, nil
}

// ensureFork 返回父通道的 FORK 层，不存在时插入到顶部
func (c *Channel) ensureFork(stack *Stack) (*Fork, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f := findFork(stack.list()); f != nil {
		return f, nil
	}
	chain, err := c.factory.catalog.Chain(ForkType)
	if err != nil {
		return nil, err
	}
	f := newProtocolLayer(chain, len(stack.list()), types.ProtocolConfiguration{Type: ForkType}).(*Fork)
	stack.insertTop(f)
	logger.Debug("已插入 FORK 层", "channel", c.name)
	return f, nil
}

// Name 分叉名
func (fc *ForkChannel) Name() string { return fc.name }

// Parent 父通道
func (fc *ForkChannel) Parent() interfaces.Channel { return fc.parent }

// ClusterName 父通道的集群名
func (fc *ForkChannel) ClusterName() string { return fc.parent.ClusterName() }

// Address 父通道地址
func (fc *ForkChannel) Address() types.Address { return fc.parent.Address() }

// View 父通道视图
func (fc *ForkChannel) View() *types.View { return fc.parent.View() }

// Connect 注册到 FORK 层；集群名必须与父通道一致或为空
func (fc *ForkChannel) Connect(cluster string) error {
	if fc.closed.Load() {
		return ErrChannelClosed
	}
	if !fc.parent.IsConnected() {
		return ErrParentNotConnected
	}
	if cluster != "" && cluster != fc.parent.ClusterName() {
		return fmt.Errorf("%w: fork %s must join %s", ErrAlreadyConnected, fc.name, fc.parent.ClusterName())
	}
	if fc.connected.Load() {
		return nil
	}
	if err := fc.fork.register(fc); err != nil {
		return err
	}
	fc.connected.Store(true)
	return nil
}

// ConnectWithState 分叉通道不单独传输状态，等同 Connect
func (fc *ForkChannel) ConnectWithState(ctx context.Context, cluster string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fc.Connect(cluster)
}

// Disconnect 从 FORK 层注销
func (fc *ForkChannel) Disconnect() error {
	if fc.connected.CompareAndSwap(true, false) {
		fc.fork.unregister(fc)
	}
	return nil
}

// Close 关闭分叉通道，父通道不受影响
func (fc *ForkChannel) Close() error {
	if fc.closed.Swap(true) {
		return nil
	}
	return fc.Disconnect()
}

// IsOpen 是否未关闭
func (fc *ForkChannel) IsOpen() bool {
	return !fc.closed.Load() && fc.parent.IsOpen()
}

// IsConnected 是否已连接
func (fc *ForkChannel) IsConnected() bool {
	return fc.connected.Load() && !fc.closed.Load() && fc.parent.IsConnected()
}

// Send 经父通道发送，接收端投递给同名分叉通道
func (fc *ForkChannel) Send(msg *types.Message) error {
	if !fc.IsConnected() {
		return ErrNotConnected
	}
	if msg.Site != "" {
		return fmt.Errorf("%w: fork channels cannot relay", ErrNoRelay)
	}
	return fc.parent.send(packet{msg: msg, fork: fc.name}, fc.layers)
}

// SetReceiver 设置接收回调
func (fc *ForkChannel) SetReceiver(r interfaces.Receiver) {
	if r == nil {
		fc.receiver.Store(nil)
		return
	}
	fc.receiver.Store(&r)
}

// ProtocolStack 返回父协议链加私有子栈，关闭后返回 nil
func (fc *ForkChannel) ProtocolStack() interfaces.ProtocolStack {
	if fc.closed.Load() {
		return nil
	}
	parent := fc.parent.stack.Load()
	if parent == nil {
		return nil
	}
	layers := append(append([]layer(nil), parent.list()...), fc.layers...)
	return newStack(layers)
}

func (fc *ForkChannel) dispatch(p packet) {
	for _, l := range fc.layers {
		l.onReceive(p.msg)
	}
	if r := fc.receiver.Load(); r != nil {
		fc.parent.invoke(*r, p.msg)
	}
}
