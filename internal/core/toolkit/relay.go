package toolkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// Relay 跨站点中继层
//
// 到远端站点的桥接通道在第一次发往该站点时才创建。
type Relay struct {
	*Layer

	site      string
	remotes   map[string]types.RemoteSiteConfiguration
	connector SiteConnector

	mu      sync.Mutex
	bridges map[string]*bridge
	open    atomic.Int32
}

type bridge struct {
	ch      interfaces.Channel
	release func()
}

func (r *Relay) configure(cfg *types.RelayConfiguration, connector SiteConnector) {
	r.remotes = make(map[string]types.RemoteSiteConfiguration)
	r.bridges = make(map[string]*bridge)
	r.connector = connector
	if cfg == nil {
		return
	}
	r.site = cfg.Site
	for _, rs := range cfg.RemoteSites {
		r.remotes[rs.Name] = rs
	}
}

// Site 本地站点名
func (r *Relay) Site() string { return r.site }

// RemoteSites 已配置的远端站点名（排序）
func (r *Relay) RemoteSites() []string {
	names := make([]string, 0, len(r.remotes))
	for name := range r.remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bridges 已建立的桥接通道数
func (r *Relay) Bridges() int32 {
	return r.open.Load()
}

// forward 经桥接通道把消息发往远端站点的集群
func (r *Relay) forward(ctx context.Context, local string, msg *types.Message) error {
	b, err := r.bridge(ctx, local, msg.Site)
	if err != nil {
		return err
	}
	out := *msg
	out.Site = ""
	out.Dest = types.Address{}
	if err := b.ch.Send(&out); err != nil {
		return fmt.Errorf("forward to site %s: %w", msg.Site, err)
	}
	r.add(cForwarded, 1)
	return nil
}

func (r *Relay) bridge(ctx context.Context, local, site string) (*bridge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bridges[site]; ok {
		return b, nil
	}
	remote, ok := r.remotes[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, site)
	}
	if r.connector == nil {
		return nil, fmt.Errorf("%w: no connector for site %s", ErrUnknownSite, site)
	}

	factory, release, err := r.connector(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("connect site %s: %w", site, err)
	}
	ch, err := factory.CreateChannel(strings.Join([]string{local, r.site, site}, "/"))
	if err != nil {
		release()
		return nil, err
	}
	if err := ch.Connect(remote.Channel); err != nil {
		_ = ch.Close()
		release()
		return nil, fmt.Errorf("connect bridge %s: %w", remote.Channel, err)
	}

	b := &bridge{ch: ch, release: release}
	r.bridges[site] = b
	r.open.Add(1)
	logger.Info("跨站点桥接已建立", "site", r.site, "remote", site, "cluster", remote.Channel)
	return b, nil
}

// close 关闭所有桥接通道并释放对端协议栈
func (r *Relay) close() error {
	r.mu.Lock()
	bridges := r.bridges
	r.bridges = make(map[string]*bridge)
	r.mu.Unlock()

	var err error
	for _, b := range bridges {
		err = multierr.Append(err, b.ch.Close())
		b.release()
		r.open.Add(-1)
	}
	return err
}

func findRelay(layers []layer) *Relay {
	if len(layers) == 0 {
		return nil
	}
	r, _ := layers[len(layers)-1].(*Relay)
	return r
}
