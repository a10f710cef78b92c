package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-groupstack/internal/core/service"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// ============================================================================
//                              ChannelService
// ============================================================================

// ChannelService 通道服务单元
//
// 依赖协议栈单元产出的 ChannelFactory，启动时创建通道并连接到集群。
// connect 为 false 时只打开通道，由 ConnectedChannelService 负责连接。
type ChannelService struct {
	eng     *engine
	unit    types.ServiceName
	name    string
	cluster string
	connect bool

	factory service.Injected[pkgif.ChannelFactory]

	mu      sync.Mutex
	op      *openOp
	channel pkgif.Channel
}

// openOp 一次进行中的打开操作
type openOp struct {
	done      chan struct{}
	ch        pkgif.Channel
	err       error
	abandoned bool
}

func newChannelService(eng *engine, name, cluster string, connect bool) *ChannelService {
	return &ChannelService{
		eng:     eng,
		unit:    types.ChannelServiceName(name),
		name:    name,
		cluster: cluster,
		connect: connect,
	}
}

// Start 在 worker 上创建并连接通道，等待到完成或超时
//
// 超时或 ctx 取消后操作被标记为放弃，通道创建完成时立即关闭。
func (s *ChannelService) Start(ctx context.Context) error {
	f := s.factory.Get()
	if f == nil {
		return fmt.Errorf("%w: %s", ErrNoFactory, s.name)
	}

	op := &openOp{done: make(chan struct{})}
	s.mu.Lock()
	s.op = op
	s.mu.Unlock()

	if err := s.eng.worker.Submit(func() { s.open(op, f) }); err != nil {
		s.mu.Lock()
		s.op = nil
		s.mu.Unlock()
		return err
	}

	if s.eng.startTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.eng.startTimeout)
		defer cancel()
	}

	select {
	case <-op.done:
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.op == op {
		s.op = nil
	}
	select {
	case <-op.done:
	default:
		op.abandoned = true
		return fmt.Errorf("start channel %s: %w", s.name, ctx.Err())
	}
	if op.err != nil {
		return op.err
	}
	s.channel = op.ch
	return nil
}

func (s *ChannelService) open(op *openOp, f pkgif.ChannelFactory) {
	ch, err := f.CreateChannel(s.name)
	if err == nil && s.connect {
		if cerr := s.eng.connect(ch, s.cluster, f.Configuration().StateTransfer); cerr != nil {
			err = fmt.Errorf("%w: %s -> %s: %w", ErrConnectFailed, s.name, s.cluster, cerr)
			_ = ch.Close()
			ch = nil
		}
	}
	s.finish(op, ch, err)
}

func (s *ChannelService) finish(op *openOp, ch pkgif.Channel, err error) {
	s.mu.Lock()
	abandoned := op.abandoned
	op.ch, op.err = ch, err
	close(op.done)
	s.mu.Unlock()

	switch {
	case abandoned && ch != nil:
		logger.Info("启动已放弃，关闭刚创建的通道", "channel", s.name)
		_ = s.shutdown(ch)
	case err != nil:
		logger.Warn("通道启动失败", "channel", s.name, "cluster", s.cluster, "err", err)
		s.eng.emitFailed(s.unit, s.name, s.cluster, err)
	case abandoned:
	case s.connect:
		logger.Info("通道已连接", "channel", s.name, "cluster", s.cluster, "address", ch.Address().String())
		s.eng.emitStarted(s.unit, ch)
	default:
		logger.Debug("通道已打开", "channel", s.name)
	}
}

// Stop 断开并关闭通道
//
// 启动仍在进行时只记录停止请求。
func (s *ChannelService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if op := s.op; op != nil {
		select {
		case <-op.done:
		default:
			op.abandoned = true
			s.op = nil
			s.mu.Unlock()
			return nil
		}
	}
	ch := s.channel
	s.channel = nil
	s.op = nil
	s.mu.Unlock()

	if ch == nil {
		return nil
	}
	return s.eng.stop(ctx, func() error { return s.shutdown(ch) })
}

func (s *ChannelService) shutdown(ch pkgif.Channel) error {
	var err error
	if ch.IsConnected() {
		err = ch.Disconnect()
	}
	err = multierr.Append(err, ch.Close())
	if err != nil {
		logger.Warn("通道关闭出错", "channel", s.name, "err", err)
	} else {
		logger.Info("通道已关闭", "channel", s.name)
	}
	s.eng.emitStopped(s.unit, s.name, s.cluster, err)
	return err
}

// Value 返回 pkgif.Channel
func (s *ChannelService) Value() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return nil
	}
	return s.channel
}

// ============================================================================
//                              ConnectedChannelService
// ============================================================================

// ConnectedChannelService 以另一个集群名连接已打开的通道
type ConnectedChannelService struct {
	eng     *engine
	unit    types.ServiceName
	name    string
	cluster string

	channel service.Injected[pkgif.Channel]
	factory service.Injected[pkgif.ChannelFactory]
}

func newConnectedChannelService(eng *engine, name, cluster string) *ConnectedChannelService {
	return &ConnectedChannelService{
		eng:     eng,
		unit:    types.ConnectedChannelServiceName(name),
		name:    name,
		cluster: cluster,
	}
}

// Start 在 worker 上连接通道
func (s *ConnectedChannelService) Start(ctx context.Context) error {
	ch := s.channel.Get()
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrNoChannel, s.name)
	}
	withState := false
	if f := s.factory.Get(); f != nil {
		withState = f.Configuration().StateTransfer
	}

	err := s.eng.start(ctx, func() (func(), error) {
		if err := s.eng.connect(ch, s.cluster, withState); err != nil {
			return nil, fmt.Errorf("%w: %s -> %s: %w", ErrConnectFailed, s.name, s.cluster, err)
		}
		return func() {
			logger.Info("启动已放弃，断开刚建立的连接", "channel", s.name, "cluster", s.cluster)
			derr := ch.Disconnect()
			s.eng.emitStopped(s.unit, s.name, s.cluster, derr)
		}, nil
	})
	if err != nil {
		s.eng.emitFailed(s.unit, s.name, s.cluster, err)
		return err
	}
	logger.Info("通道已连接", "channel", s.name, "cluster", s.cluster)
	s.eng.emitStarted(s.unit, ch)
	return nil
}

// Stop 断开连接，通道本身由 ChannelService 关闭
func (s *ConnectedChannelService) Stop(ctx context.Context) error {
	ch := s.channel.Get()
	if ch == nil {
		return nil
	}
	err := s.eng.stop(ctx, ch.Disconnect)
	s.eng.emitStopped(s.unit, s.name, s.cluster, err)
	return err
}

// Value 返回 pkgif.Channel
func (s *ConnectedChannelService) Value() any {
	if !s.channel.Present() {
		return nil
	}
	return s.channel.Get()
}
