package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/registry"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
	"github.com/dep2p/go-groupstack/pkg/types"
)

func clusterStack() *types.StackDefinition {
	return &types.StackDefinition{
		Name: "cluster",
		Transport: &types.TransportDefinition{
			Type:          "UDP",
			SocketBinding: "jgroups-udp",
			Site:          "lon",
			Properties:    map[string]string{"max_bundle_size": "1000", "bind_port": "7600"},
		},
		Protocols: []types.ProtocolDefinition{
			{Type: "PING"},
			{Type: "FD", Properties: map[string]string{"timeout": "3000"}},
			{Type: "pbcast.GMS", Properties: map[string]string{"join_timeout": "5000", "view_bundling": "false"}},
		},
		Relay: &types.RelayDefinition{
			Site:        "lon",
			RemoteSites: []types.RemoteSiteDefinition{{Name: "nyc", Channel: "bridge", Stack: "tcp"}},
			Properties:  map[string]string{"max_site_masters": "1"},
		},
	}
}

func protocolOrder(cmds []Command) []string {
	var order []string
	for _, c := range cmds {
		if c.Op == OpAddProtocol {
			order = append(order, c.Params["type"])
		}
	}
	return order
}

func TestExport_Order(t *testing.T) {
	cmds := Export(clusterStack())

	var rendered []string
	for _, c := range cmds {
		rendered = append(rendered, c.String())
	}
	assert.Equal(t, []string{
		"/stack=cluster:add()",
		"/stack=cluster/transport=UDP:add(site=lon,socket_binding=jgroups-udp,type=UDP)",
		"/stack=cluster/transport=UDP/property=bind_port:add(value=7600)",
		"/stack=cluster/transport=UDP/property=max_bundle_size:add(value=1000)",
		"/stack=cluster:add-protocol(type=PING)",
		"/stack=cluster:add-protocol(type=FD)",
		"/stack=cluster/protocol=FD/property=timeout:add(value=3000)",
		"/stack=cluster:add-protocol(type=pbcast.GMS)",
		"/stack=cluster/protocol=pbcast.GMS/property=join_timeout:add(value=5000)",
		"/stack=cluster/protocol=pbcast.GMS/property=view_bundling:add(value=false)",
		"/stack=cluster/relay=relay.RELAY2:add(site=lon)",
		"/stack=cluster/relay=relay.RELAY2/remote-site=nyc:add(channel=bridge,stack=tcp)",
		"/stack=cluster/relay=relay.RELAY2/property=max_site_masters:add(value=1)",
	}, rendered)
	assert.Equal(t, "13 commands, 3 protocols", Summary(cmds))
	assert.Nil(t, Export(nil))
}

func TestExport_AfterLayerRemoval(t *testing.T) {
	reg := registry.New()
	_, err := reg.AddStack(clusterStack())
	require.NoError(t, err)
	s, err := reg.RemoveLayer("cluster", "FD")
	require.NoError(t, err)

	cmds := Export(s.Definition())
	assert.Equal(t, []string{"PING", "pbcast.GMS"}, protocolOrder(cmds))
}

func TestExport_ProtobufRoundTrip(t *testing.T) {
	def := clusterStack()
	data, err := Marshal(Export(def))
	require.NoError(t, err)

	cmds, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, Export(def), cmds)

	rebuilt, err := Apply(cmds)
	require.NoError(t, err)
	assert.Equal(t, def, rebuilt)

	// 导出再导入后编译结果不变
	cat := catalog.New()
	toolkit.RegisterBuiltins(cat)
	comp := compiler.New(cat)
	want, err := comp.Compile(def)
	require.NoError(t, err)
	got, err := comp.Compile(rebuilt)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name string
		cmds []Command
	}{
		{"empty", nil},
		{"no stack first", []Command{{Op: OpAddProtocol, Address: address(KeyStack, "s"), Params: map[string]string{"type": "PING"}}}},
		{"other stack", []Command{
			{Op: OpAdd, Address: address(KeyStack, "s")},
			{Op: OpAddProtocol, Address: address(KeyStack, "t"), Params: map[string]string{"type": "PING"}},
		}},
		{"duplicate protocol", []Command{
			{Op: OpAdd, Address: address(KeyStack, "s")},
			{Op: OpAddProtocol, Address: address(KeyStack, "s"), Params: map[string]string{"type": "PING"}},
			{Op: OpAddProtocol, Address: address(KeyStack, "s"), Params: map[string]string{"type": "PING"}},
		}},
		{"property before protocol", []Command{
			{Op: OpAdd, Address: address(KeyStack, "s")},
			{Op: OpAdd, Address: address(KeyStack, "s", KeyProtocol, "FD", KeyProperty, "timeout"), Params: map[string]string{"value": "1"}},
		}},
		{"remote site without relay", []Command{
			{Op: OpAdd, Address: address(KeyStack, "s")},
			{Op: OpAdd, Address: address(KeyStack, "s", KeyRelay, RelayType, KeyRemoteSite, "nyc")},
		}},
		{"unknown op", []Command{
			{Op: OpAdd, Address: address(KeyStack, "s")},
			{Op: "remove", Address: address(KeyStack, "s")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.cmds)
			assert.ErrorIs(t, err, ErrInvalidCommand)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}
