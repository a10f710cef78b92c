package resource

import (
	"context"
	"fmt"
	"net"
	"strconv"

	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
)

// SocketBinding 命名的 host:port
type SocketBinding struct {
	name string
	host string
	port int
}

var _ pkgif.SocketBinding = (*SocketBinding)(nil)

// NewSocketBinding 创建套接字绑定，host 为空时使用 127.0.0.1
func NewSocketBinding(name, host string, port int) *SocketBinding {
	if host == "" {
		host = "127.0.0.1"
	}
	return &SocketBinding{name: name, host: host, port: port}
}

// Name 绑定名
func (b *SocketBinding) Name() string { return b.name }

// Host 主机
func (b *SocketBinding) Host() string { return b.host }

// Port 端口
func (b *SocketBinding) Port() int { return b.port }

// Address 返回 host:port
func (b *SocketBinding) Address() string {
	return net.JoinHostPort(b.host, strconv.Itoa(b.port))
}

// bindingService 套接字绑定服务单元
type bindingService struct {
	binding *SocketBinding
}

func (s *bindingService) Start(context.Context) error {
	if s.binding.port < 0 || s.binding.port > 65535 {
		return fmt.Errorf("%w: %s port %d", ErrInvalidBinding, s.binding.name, s.binding.port)
	}
	if _, err := net.ResolveTCPAddr("tcp", s.binding.Address()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBinding, s.binding.name, err)
	}
	return nil
}

func (s *bindingService) Stop(context.Context) error { return nil }

func (s *bindingService) Value() any { return pkgif.SocketBinding(s.binding) }
