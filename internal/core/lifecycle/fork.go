package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// ForkChannelService 分叉通道服务单元
//
// 依赖已连接的父通道单元；父通道顶部没有 FORK 层时自动插入。
type ForkChannelService struct {
	eng       *engine
	compiler  *compiler.Compiler
	unit      types.ServiceName
	channel   string
	name      string
	protocols []types.ProtocolConfiguration

	parent service.Injected[pkgif.Channel]

	mu   sync.Mutex
	fork *toolkit.ForkChannel
}

func newForkChannelService(eng *engine, comp *compiler.Compiler, channel, name string, protocols []types.ProtocolConfiguration) *ForkChannelService {
	return &ForkChannelService{
		eng:       eng,
		compiler:  comp,
		unit:      types.ForkServiceName(channel, name),
		channel:   channel,
		name:      name,
		protocols: protocols,
	}
}

// Start 创建分叉通道并加入父通道的集群
func (s *ForkChannelService) Start(ctx context.Context) error {
	parent := s.parent.Get()
	if parent == nil || !parent.IsConnected() {
		return fmt.Errorf("fork %s/%s: %w", s.channel, s.name, toolkit.ErrParentNotConnected)
	}

	protocols := s.protocols
	if s.compiler != nil {
		resolved, err := s.compiler.Resolve(&types.StackConfiguration{Name: s.channel + "/" + s.name, Protocols: protocols})
		if err != nil {
			return err
		}
		protocols = resolved.Protocols
	}

	// fc 只由 worker 写入，start 返回 nil 时已对当前 goroutine 可见
	var fc *toolkit.ForkChannel
	err := s.eng.start(ctx, func() (func(), error) {
		created, err := toolkit.NewForkChannel(parent, s.name, protocols)
		if err != nil {
			return nil, err
		}
		if err = created.Connect(parent.ClusterName()); err != nil {
			_ = created.Close()
			return nil, fmt.Errorf("%w: fork %s/%s: %w", ErrConnectFailed, s.channel, s.name, err)
		}
		fc = created
		return func() {
			logger.Info("启动已放弃，关闭刚创建的分叉通道", "channel", s.channel, "fork", s.name)
			cerr := created.Close()
			s.eng.emitStopped(s.unit, s.name, parent.ClusterName(), cerr)
		}, nil
	})
	if err != nil {
		s.eng.emitFailed(s.unit, s.name, parent.ClusterName(), err)
		return err
	}

	s.mu.Lock()
	s.fork = fc
	s.mu.Unlock()
	logger.Info("分叉通道已连接", "channel", s.channel, "fork", s.name)
	s.eng.emitStarted(s.unit, fc)
	return nil
}

// Stop 关闭分叉通道
func (s *ForkChannelService) Stop(ctx context.Context) error {
	s.mu.Lock()
	fc := s.fork
	s.fork = nil
	s.mu.Unlock()
	if fc == nil {
		return nil
	}
	cluster := fc.ClusterName()
	err := s.eng.stop(ctx, fc.Close)
	s.eng.emitStopped(s.unit, s.name, cluster, err)
	return err
}

// Value 返回 pkgif.Channel
func (s *ForkChannelService) Value() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fork == nil {
		return nil
	}
	return s.fork
}
