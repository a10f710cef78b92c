package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/registry"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	pkgif "github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

type failingService struct{}

func (failingService) Start(context.Context) error { return errors.New("boom") }
func (failingService) Stop(context.Context) error  { return nil }
func (failingService) Value() any                  { return nil }

type staticChannels map[string]pkgif.Channel

func (s staticChannels) Channels() []string {
	return []string{"a", "b"}
}

func (s staticChannels) Peek(name string) (pkgif.Channel, bool) {
	ch, ok := s[name]
	return ch, ok
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew(t *testing.T) {
	server := New(Config{})
	assert.Equal(t, DefaultAddr, server.config.Addr)

	server = New(Config{Addr: "127.0.0.1:8080"})
	assert.Equal(t, "127.0.0.1:8080", server.config.Addr)
}

func TestServer_StartStop(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})

	ctx := context.Background()
	require.NoError(t, server.Start(ctx))
	assert.True(t, server.running)
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())

	// 重复启动无效
	require.NoError(t, server.Start(ctx))

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, server.Stop())
	assert.False(t, server.running)
	require.NoError(t, server.Stop())
}

func TestServer_Stacks(t *testing.T) {
	reg := registry.New()
	_, err := reg.AddStack(&types.StackDefinition{
		Name:      "udp",
		Transport: &types.TransportDefinition{Type: "UDP"},
		Protocols: []types.ProtocolDefinition{{Type: "PING"}, {Type: "MERGE3"}, {Type: "pbcast.GMS"}},
		Relay:     &types.RelayDefinition{Site: "lon"},
	})
	require.NoError(t, err)

	h := New(Config{Registry: reg}).Handler()
	rec := get(t, h, "/debug/introspect/stacks")
	require.Equal(t, http.StatusOK, rec.Code)

	var stacks []StackInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stacks))
	require.Len(t, stacks, 1)
	assert.Equal(t, "udp", stacks[0].Name)
	assert.Equal(t, "UDP", stacks[0].Transport)
	assert.Equal(t, "lon", stacks[0].Relay)
	assert.Equal(t, []string{"PING", "MERGE3", "pbcast.GMS"}, stacks[0].Protocols)
}

func TestServer_Unavailable(t *testing.T) {
	h := New(Config{}).Handler()
	for _, path := range []string{
		"/debug/introspect/stacks",
		"/debug/introspect/services",
		"/debug/introspect/channels",
	} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, h, path).Code, path)
	}
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ServicesAndHealth(t *testing.T) {
	c := service.New()
	defer c.Close()
	name := types.ServiceName("test.fail")
	require.NoError(t, c.AddService(name, failingService{}).Install())

	_, err := c.Acquire(context.Background(), name)
	require.Error(t, err)

	mock := clock.NewMock()
	h := New(Config{Container: c, Clock: mock}).Handler()

	rec := get(t, h, "/debug/introspect/services")
	require.Equal(t, http.StatusOK, rec.Code)
	var units []service.UnitInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &units))
	require.Len(t, units, 1)
	assert.Equal(t, "test.fail", units[0].Name)
	assert.Equal(t, service.StateFailed.String(), units[0].State)

	rec = get(t, h, "/health")
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, []string{"test.fail"}, health.Failed)
}

func TestServer_Channels(t *testing.T) {
	cat := catalog.New()
	toolkit.RegisterBuiltins(cat)
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
	f, err := toolkit.NewFactory(cat, toolkit.NewNetwork(), cfg, toolkit.Resources{})
	require.NoError(t, err)
	ch, err := f.CreateChannel("a")
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.Connect("cluster"))

	h := New(Config{Channels: staticChannels{"a": ch}}).Handler()
	rec := get(t, h, "/debug/introspect/channels")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []ChannelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.True(t, infos[0].Running)
	assert.True(t, infos[0].Connected)
	assert.Equal(t, "cluster", infos[0].Cluster)
	assert.NotEmpty(t, infos[0].View)

	// 已安装但未启动
	assert.Equal(t, "b", infos[1].Name)
	assert.False(t, infos[1].Running)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "groupstack_test_value"})
	g.Set(7)
	reg.MustRegister(g)

	h := New(Config{Gatherer: reg}).Handler()
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "groupstack_test_value 7")
}
