package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	"github.com/dep2p/go-groupstack/pkg/types"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	toolkit.RegisterBuiltins(cat)
	return cat
}

func mapLookup(m map[string]string) compiler.Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func clusterDef() *types.StackDefinition {
	return &types.StackDefinition{
		Name:      "cluster",
		Transport: &types.TransportDefinition{Type: "UDP", SocketBinding: "jgroups-udp"},
		Protocols: []types.ProtocolDefinition{
			{Type: "PING"},
			{Type: "FD", Properties: map[string]string{"timeout": "3s"}},
			{Type: "GMS"},
		},
	}
}

func TestCompile_Cluster(t *testing.T) {
	c := compiler.New(testCatalog(t))

	cfg, err := c.Compile(clusterDef())
	require.NoError(t, err)

	assert.Equal(t, "cluster", cfg.Name)
	assert.Equal(t, "UDP", cfg.Transport.Type)
	assert.Equal(t, "jgroups-udp", cfg.Transport.SocketBinding)
	assert.Nil(t, cfg.Transport.Topology)
	assert.False(t, cfg.Transport.Shared)
	assert.Equal(t, []string{"PING", "FD", "pbcast.GMS"}, cfg.ProtocolNames())
	assert.Equal(t, "3000", cfg.Protocols[1].Properties["timeout"])
	assert.False(t, cfg.StateTransfer)
	assert.Nil(t, cfg.Relay)
}

func TestCompile_QualifiedNames(t *testing.T) {
	c := compiler.New(testCatalog(t))
	def := clusterDef()
	def.Transport.Type = catalog.QualifiedPrefix + "TCP"
	def.Protocols = append(def.Protocols, types.ProtocolDefinition{Type: catalog.QualifiedPrefix + "pbcast.STATE_TRANSFER"})

	cfg, err := c.Compile(def)
	require.NoError(t, err)
	assert.Equal(t, "TCP", cfg.Transport.Type)
	assert.Equal(t, "pbcast.STATE_TRANSFER", cfg.Protocols[3].Type)
	assert.True(t, cfg.StateTransfer)
}

func TestCompile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *types.StackDefinition)
		field  string
	}{
		{"missing transport", func(d *types.StackDefinition) { d.Transport = nil }, "transport"},
		{"unknown transport", func(d *types.StackDefinition) { d.Transport.Type = "CARRIER_PIGEON" }, "transport.type"},
		{"protocol as transport", func(d *types.StackDefinition) { d.Transport.Type = "PING" }, "transport.type"},
		{"no protocols", func(d *types.StackDefinition) { d.Protocols = nil }, "protocols"},
		{"transport as protocol", func(d *types.StackDefinition) {
			d.Protocols = append(d.Protocols, types.ProtocolDefinition{Type: "TCP"})
		}, "protocols[3].type"},
		{"duplicate protocol", func(d *types.StackDefinition) {
			d.Protocols = append(d.Protocols, types.ProtocolDefinition{Type: "pbcast.GMS"})
		}, "protocols[3].type"},
		{"unknown property", func(d *types.StackDefinition) {
			d.Protocols[0].Properties = map[string]string{"no_such": "1"}
		}, "protocols[0].properties.no_such"},
		{"bad property value", func(d *types.StackDefinition) {
			d.Protocols[1].Properties["timeout"] = "soon"
		}, "protocols[1].properties.timeout"},
		{"int overflow", func(d *types.StackDefinition) {
			d.Transport.Properties = map[string]string{"tos": "300"}
		}, "transport.properties.tos"},
		{"shared not boolean", func(d *types.StackDefinition) { d.Transport.Shared = "maybe" }, "transport.shared"},
		{"malformed rack", func(d *types.StackDefinition) { d.Transport.Rack = "rack 1" }, "transport.rack"},
		{"relay without site", func(d *types.StackDefinition) { d.Relay = &types.RelayDefinition{} }, "relay.site"},
		{"remote site equals local", func(d *types.StackDefinition) {
			d.Relay = &types.RelayDefinition{Site: "lon", RemoteSites: []types.RemoteSiteDefinition{
				{Name: "lon", Channel: "bridge", Stack: "tcp"},
			}}
		}, "relay.remote_sites[0].name"},
		{"remote site without stack", func(d *types.StackDefinition) {
			d.Relay = &types.RelayDefinition{Site: "lon", RemoteSites: []types.RemoteSiteDefinition{
				{Name: "nyc", Channel: "bridge"},
			}}
		}, "relay.remote_sites[0].stack"},
		{"duplicate remote site", func(d *types.StackDefinition) {
			d.Relay = &types.RelayDefinition{Site: "lon", RemoteSites: []types.RemoteSiteDefinition{
				{Name: "nyc", Channel: "bridge", Stack: "tcp"},
				{Name: "nyc", Channel: "bridge2", Stack: "tcp"},
			}}
		}, "relay.remote_sites[1].name"},
		{"unresolved expression", func(d *types.StackDefinition) {
			d.Transport.SocketBinding = "${no.such.key}"
		}, "transport.socket_binding"},
	}

	c := compiler.New(testCatalog(t), compiler.WithLookup(mapLookup(nil)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := clusterDef()
			tt.mutate(def)

			_, err := c.Compile(def)
			require.Error(t, err)
			assert.ErrorIs(t, err, compiler.ErrValidation)
			assert.ErrorIs(t, err, types.ErrValidation)

			var verr *compiler.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "cluster", verr.Stack)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCompile_NilAndUnnamed(t *testing.T) {
	c := compiler.New(testCatalog(t))

	_, err := c.Compile(nil)
	assert.ErrorIs(t, err, compiler.ErrValidation)

	_, err = c.Compile(&types.StackDefinition{})
	assert.ErrorIs(t, err, compiler.ErrValidation)
}

func TestCompile_ConverterUnsupported(t *testing.T) {
	cat := testCatalog(t)
	require.NoError(t, cat.Register(&catalog.LayerType{
		Name:   "SEQUENCER",
		Kind:   catalog.KindProtocol,
		Parent: "Protocol",
		Properties: map[string]catalog.PropertySpec{
			"delivery_table": {Converter: "table"},
		},
	}))

	def := clusterDef()
	def.Protocols = append(def.Protocols, types.ProtocolDefinition{
		Type:       "SEQUENCER",
		Properties: map[string]string{"delivery_table": "x"},
	})

	_, err := compiler.New(cat).Compile(def)
	assert.ErrorIs(t, err, compiler.ErrValidation)
	assert.ErrorIs(t, err, catalog.ErrConverterUnsupported)
}

func TestCompile_UnknownTypeMatchesNotFound(t *testing.T) {
	def := clusterDef()
	def.Protocols[0].Type = "NOPE"

	_, err := compiler.New(testCatalog(t)).Compile(def)
	assert.ErrorIs(t, err, compiler.ErrValidation)
	assert.ErrorIs(t, err, catalog.ErrTypeNotFound)
}

func TestCompile_TopologyAndTransportRefs(t *testing.T) {
	def := clusterDef()
	def.Transport.Shared = "true"
	def.Transport.Site = "${site:lon}"
	def.Transport.Rack = "r1"
	def.Transport.DefaultExecutor = "jgroups"
	def.Transport.OOBExecutor = "jgroups-oob"
	def.Transport.TimerExecutor = "jgroups-timer"
	def.Transport.ThreadFactory = "jgroups-threads"
	def.Transport.DiagnosticsSocketBinding = "jgroups-diagnostics"

	cfg, err := compiler.New(testCatalog(t), compiler.WithLookup(mapLookup(nil))).Compile(def)
	require.NoError(t, err)

	assert.True(t, cfg.Transport.Shared)
	require.NotNil(t, cfg.Transport.Topology)
	assert.Equal(t, types.Topology{Site: "lon", Rack: "r1"}, *cfg.Transport.Topology)
	assert.Equal(t, "jgroups", cfg.Transport.DefaultExecutor)
	assert.Equal(t, "jgroups-oob", cfg.Transport.OOBExecutor)
	assert.Equal(t, "jgroups-timer", cfg.Transport.TimerExecutor)
	assert.Equal(t, "jgroups-threads", cfg.Transport.ThreadFactory)
	assert.Equal(t, "jgroups-diagnostics", cfg.Transport.DiagnosticsSocketBinding)
}

func TestCompile_Relay(t *testing.T) {
	def := clusterDef()
	def.Relay = &types.RelayDefinition{
		Site: "lon",
		RemoteSites: []types.RemoteSiteDefinition{
			{Name: "nyc", Channel: "bridge", Stack: "tcp"},
			{Name: "sfo", Channel: "bridge", Stack: "tcp"},
		},
		Properties: map[string]string{"max_site_masters": "2"},
	}

	cfg, err := compiler.New(testCatalog(t)).Compile(def)
	require.NoError(t, err)
	require.NotNil(t, cfg.Relay)
	assert.Equal(t, compiler.RelayType, cfg.Relay.Type)
	assert.Equal(t, "lon", cfg.Relay.Site)
	assert.Len(t, cfg.Relay.RemoteSites, 2)
	assert.Equal(t, "2", cfg.Relay.Properties["max_site_masters"])
}

func TestCompile_DeferredExpressions(t *testing.T) {
	env := map[string]string{}
	c := compiler.New(testCatalog(t),
		compiler.WithLookup(mapLookup(env)),
		compiler.WithDeferredExpressions(),
	)

	def := clusterDef()
	def.Protocols[1].Properties["timeout"] = "${fd.timeout:5000}"

	cfg, err := c.Compile(def)
	require.NoError(t, err)
	assert.True(t, c.Deferred())
	assert.True(t, cfg.HasDeferred())
	assert.Equal(t, "${fd.timeout:5000}", cfg.Protocols[1].Properties["timeout"])

	resolved, err := c.Resolve(cfg)
	require.NoError(t, err)
	assert.False(t, resolved.HasDeferred())
	assert.Equal(t, "5000", resolved.Protocols[1].Properties["timeout"])
	// 原配置不变
	assert.True(t, cfg.HasDeferred())

	env["fd.timeout"] = "2s"
	resolved, err = c.Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "2000", resolved.Protocols[1].Properties["timeout"])

	env["fd.timeout"] = "later"
	_, err = c.Resolve(cfg)
	assert.ErrorIs(t, err, compiler.ErrValidation)
	assert.ErrorIs(t, err, catalog.ErrInvalidValue)
}

func TestCompileProtocols(t *testing.T) {
	c := compiler.New(testCatalog(t))

	out, err := c.CompileProtocols("web/fork", []types.ProtocolDefinition{
		{Type: "FRAG2", Properties: map[string]string{"frag_size": "1000"}},
		{Type: "UNICAST3"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1000", out[0].Properties["frag_size"])

	_, err = c.CompileProtocols("web/fork", []types.ProtocolDefinition{{Type: "FRAG2"}, {Type: "FRAG2"}})
	assert.ErrorIs(t, err, compiler.ErrValidation)
}

func TestExpand(t *testing.T) {
	lookup := mapLookup(map[string]string{"a": "1", "b": "2"})

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${a}", "1"},
		{"x-${b}-y", "x-2-y"},
		{"${missing:dflt}", "dflt"},
		{"${missing,b:dflt}", "2"},
		{"${missing:}", ""},
		{"${a}${b}", "12"},
		{"${unterminated", "${unterminated"},
	}
	for _, tt := range tests {
		got, err := compiler.Expand(tt.in, lookup)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := compiler.Expand("${missing}", lookup)
	assert.ErrorIs(t, err, compiler.ErrUnresolvedExpression)
}

func TestEnvLookup(t *testing.T) {
	t.Setenv("GROUPSTACK_TEST_KEY", "env")
	lookup := compiler.EnvLookup(map[string]string{"override": "cfg"})

	v, ok := lookup("override")
	assert.True(t, ok)
	assert.Equal(t, "cfg", v)

	v, ok = lookup("GROUPSTACK_TEST_KEY")
	assert.True(t, ok)
	assert.Equal(t, "env", v)
}
