package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-groupstack/internal/core/registry"
	"github.com/dep2p/go-groupstack/internal/core/service"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
)

var logger = log.Logger("debug/introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// ============================================================================
//                              配置
// ============================================================================

// Config 服务配置
//
// 各数据源都是可选的，缺失时对应端点返回 503。
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Registry 协议栈注册表
	Registry *registry.Registry

	// Container 服务容器
	Container *service.Container

	// Channels 通道来源
	Channels ChannelSource

	// Gatherer Prometheus 指标来源
	Gatherer prometheus.Gatherer

	// Clock 时钟，默认真实时钟
	Clock clock.Clock
}

// ChannelSource 通道查询接口
type ChannelSource interface {
	Channels() []string
	Peek(name string) (pkgif.Channel, bool)
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地诊断 HTTP 服务
type Server struct {
	config Config
	clock  clock.Clock

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建诊断服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Server{config: cfg, clock: clk}
}

// Handler 返回路由，Start 与测试共用
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/introspect/stacks", s.handleStacks)
	mux.HandleFunc("/debug/introspect/services", s.handleServices)
	mux.HandleFunc("/debug/introspect/channels", s.handleChannels)
	mux.HandleFunc("/debug/introspect/runtime", s.handleRuntime)

	if s.config.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("诊断服务异常退出", "error", err)
		}
	}()

	s.running = true
	s.startTime = s.clock.Now()
	logger.Info("诊断服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("关闭诊断服务失败", "error", err)
		return err
	}

	s.running = false
	logger.Info("诊断服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// StackInfo 协议栈信息
type StackInfo struct {
	Name      string   `json:"name"`
	Version   uint64   `json:"version"`
	Transport string   `json:"transport,omitempty"`
	Protocols []string `json:"protocols"`
	Relay     string   `json:"relay_site,omitempty"`
}

// ChannelInfo 通道信息
type ChannelInfo struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	Cluster   string `json:"cluster,omitempty"`
	Address   string `json:"address,omitempty"`
	View      string `json:"view,omitempty"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

func (s *Server) handleStacks(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	reg := s.config.Registry
	if reg == nil {
		http.Error(w, "Registry not available", http.StatusServiceUnavailable)
		return
	}

	out := make([]StackInfo, 0)
	for _, name := range reg.Stacks() {
		st, err := reg.Stack(name)
		if err != nil {
			// 列举与读取之间被删除
			continue
		}
		info := StackInfo{Name: name, Version: st.Version(), Protocols: st.Order()}
		if t := st.Transport(); t != nil {
			info.Transport = t.Type
		}
		if rl := st.Relay(); rl != nil {
			info.Relay = rl.Site
		}
		out = append(out, info)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.config.Container == nil {
		http.Error(w, "Container not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.config.Container.Snapshot())
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	src := s.config.Channels
	if src == nil {
		http.Error(w, "Channels not available", http.StatusServiceUnavailable)
		return
	}

	names := src.Channels()
	out := make([]ChannelInfo, 0, len(names))
	for _, name := range names {
		info := ChannelInfo{Name: name}
		if ch, ok := src.Peek(name); ok && ch != nil {
			info.Running = ch.IsOpen()
			info.Connected = ch.IsConnected()
			info.Cluster = ch.ClusterName()
			info.Address = ch.Address().String()
			if v := ch.View(); v != nil {
				info.View = v.String()
			}
		}
		out = append(out, info)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.writeJSON(w, RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     m.Alloc,
		NumGC:        m.NumGC,
	})
}

// handleHealth 任一服务单元处于失败状态时返回 degraded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	now := s.clock.Now()
	health := HealthResponse{
		Status:    "ok",
		Timestamp: now,
		Uptime:    now.Sub(s.startTime).String(),
	}
	if c := s.config.Container; c != nil {
		for _, u := range c.Snapshot() {
			if u.State == service.StateFailed.String() {
				health.Failed = append(health.Failed, u.Name)
			}
		}
	}
	if len(health.Failed) > 0 {
		health.Status = "degraded"
	}
	s.writeJSON(w, health)
}

// ============================================================================
//                              辅助方法
// ============================================================================

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logger.Error("编码 JSON 响应失败", "error", err)
	}
}
