package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
)

// ChannelSource 按名称查找运行中的通道，不触发启动
type ChannelSource interface {
	Peek(name string) (pkgif.Channel, bool)
}

// Target 轮询目标
type Target struct {
	Channel   string
	Layer     string
	Attribute string
}

// String 返回 channel/layer/attribute
func (t Target) String() string {
	return t.Channel + "/" + t.Layer + "/" + t.Attribute
}

// Sample 一个目标最后一次有效的读数
type Sample struct {
	Target Target
	Value  Value
	At     time.Time
}

// targetState 目标的最后有效读数与最后一次错误
type targetState struct {
	sample  Sample
	valid   bool
	lastErr error
}

// Poller 指标轮询器
type Poller struct {
	bridge   *Bridge
	source   ChannelSource
	clock    clock.Clock
	interval time.Duration
	limiter  *rate.Limiter
	targets  []Target

	mu    sync.RWMutex
	state map[Target]*targetState

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption 轮询器选项
type PollerOption func(*Poller)

// WithClock 设置时钟
func WithClock(clk clock.Clock) PollerOption {
	return func(p *Poller) {
		if clk != nil {
			p.clock = clk
		}
	}
}

// WithRateLimit 限制每秒读取的指标数
func WithRateLimit(perSecond float64) PollerOption {
	return func(p *Poller) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewPoller 创建轮询器
func NewPoller(bridge *Bridge, source ChannelSource, targets []Target, interval time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		bridge:   bridge,
		source:   source,
		clock:    clock.New(),
		interval: interval,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		targets:  append([]Target(nil), targets...),
		state:    make(map[Target]*targetState, len(targets)),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, t := range p.targets {
		p.state[t] = &targetState{}
	}
	return p
}

// Targets 轮询目标
func (p *Poller) Targets() []Target {
	return append([]Target(nil), p.targets...)
}

// Start 启动后台轮询，interval <= 0 或已启动时不做任何事
func (p *Poller) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.interval <= 0 || p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	logger.Info("指标轮询已启动", "targets", len(p.targets), "interval", p.interval)
}

// Stop 停止后台轮询并等待退出
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce 依次读取所有目标
//
// 读取失败或值未定义时保留上一次的有效读数。
func (p *Poller) PollOnce(ctx context.Context) {
	for _, t := range p.targets {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		v, err := p.read(t)

		p.mu.Lock()
		st := p.state[t]
		st.lastErr = err
		if err == nil && !v.IsUndefined() {
			st.sample = Sample{Target: t, Value: v, At: p.clock.Now()}
			st.valid = true
		}
		p.mu.Unlock()

		if err != nil {
			logger.Debug("指标读取失败", "target", t.String(), "err", err)
		}
	}
}

func (p *Poller) read(t Target) (Value, error) {
	ch, ok := p.source.Peek(t.Channel)
	if !ok {
		return Undefined, fmt.Errorf("%w: %s", ErrChannelNotRunning, t.Channel)
	}
	return p.bridge.ReadAttribute(ch, t.Layer, t.Attribute)
}

// Last 返回目标最后一次有效读数
func (p *Poller) Last(t Target) (Sample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.state[t]
	if !ok || !st.valid {
		return Sample{}, false
	}
	return st.sample, true
}

// LastError 返回目标最近一次读取的错误
func (p *Poller) LastError(t Target) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if st, ok := p.state[t]; ok {
		return st.lastErr
	}
	return nil
}

// Samples 所有有效读数，按目标配置顺序
func (p *Poller) Samples() []Sample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Sample, 0, len(p.targets))
	for _, t := range p.targets {
		if st := p.state[t]; st.valid {
			out = append(out, st.sample)
		}
	}
	return out
}
