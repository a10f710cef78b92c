package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-groupstack/pkg/interfaces"
	"github.com/dep2p/go-groupstack/pkg/types"
)

type fakeLayer struct {
	name string
	sent int64
}

func (f *fakeLayer) Name() string { return f.name }

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New()
	c.MustRegister(
		&LayerType{
			Name: "Protocol",
			Kind: KindAbstract,
			Properties: map[string]PropertySpec{
				"stats": {Converter: "bool", Default: "true"},
			},
			Attributes: map[string]AttributeSpec{
				"name": {Class: ClassText, Get: func(p interfaces.Protocol) (any, bool) { return p.Name(), true }},
			},
		},
		&LayerType{
			Name:   "TP",
			Kind:   KindAbstract,
			Parent: "Protocol",
			Properties: map[string]PropertySpec{
				"ip_ttl":     {Converter: "int16"},
				"bind_addr":  {Converter: "ipaddr"},
				"bundler_ms": {Converter: "duration"},
			},
			Attributes: map[string]AttributeSpec{
				"num_msgs_sent": {Class: ClassInt64, Get: func(p interfaces.Protocol) (any, bool) {
					f, ok := p.(*fakeLayer)
					if !ok {
						return nil, false
					}
					return f.sent, true
				}},
			},
		},
		&LayerType{Name: "UDP", Kind: KindTransport, Parent: "TP"},
		&LayerType{Name: "pbcast.GMS", Kind: KindProtocol, Parent: "Protocol"},
		&LayerType{Name: "org.jgroups.protocols.relay.RELAY2", Kind: KindRelay, Parent: "Protocol"},
	)
	return c
}

func TestCatalog_LookupQualified(t *testing.T) {
	c := testCatalog(t)

	for _, name := range []string{"pbcast.GMS", "GMS", "org.jgroups.protocols.pbcast.GMS"} {
		lt, err := c.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, "pbcast.GMS", lt.Name)
	}

	lt, err := c.Lookup("RELAY2")
	require.NoError(t, err)
	assert.Equal(t, "relay.RELAY2", lt.Name)
	assert.Equal(t, KindRelay, lt.Kind)

	_, err = c.Lookup("SEQUENCER")
	assert.ErrorIs(t, err, ErrTypeNotFound)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCatalog_RegisterErrors(t *testing.T) {
	c := testCatalog(t)

	assert.ErrorIs(t, c.Register(&LayerType{Name: "UDP"}), ErrDuplicateType)
	assert.ErrorIs(t, c.Register(&LayerType{Name: "X", Parent: "Missing"}), ErrTypeNotFound)
	assert.Error(t, c.Register(&LayerType{}))
}

func TestCatalog_ChainAndAttribute(t *testing.T) {
	c := testCatalog(t)

	chain, err := c.Chain("UDP")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "TP", chain[1].Name)
	assert.Equal(t, "Protocol", chain[2].Name)

	// 指标从父类型继承
	spec, err := c.Attribute("UDP", "num_msgs_sent")
	require.NoError(t, err)
	v, ok := spec.Get(&fakeLayer{name: "UDP", sent: 7})
	require.True(t, ok)
	assert.Equal(t, int64(7), v)

	spec, err = c.Attribute("UDP", "name")
	require.NoError(t, err)
	assert.Equal(t, ClassText, spec.Class)

	_, err = c.Attribute("GMS", "num_msgs_sent")
	assert.ErrorIs(t, err, ErrUnknownAttribute)

	names, err := c.Attributes("UDP")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "num_msgs_sent"}, names)
}

func TestCatalog_Convert(t *testing.T) {
	c := testCatalog(t)

	v, err := c.Convert("UDP", "ip_ttl", " 8 ")
	require.NoError(t, err)
	assert.Equal(t, "8", v)

	v, err = c.Convert("UDP", "stats", "TRUE")
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	v, err = c.Convert("UDP", "bundler_ms", "2s")
	require.NoError(t, err)
	assert.Equal(t, "2000", v)

	_, err = c.Convert("UDP", "ip_ttl", "70000")
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = c.Convert("UDP", "bind_addr", "127.0.0.1")
	assert.True(t, errors.Is(err, ErrConverterUnsupported))
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = c.Convert("UDP", "nope", "1")
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestCatalog_Text(t *testing.T) {
	c := testCatalog(t)
	c.RegisterTextConverter("upper", func(v any) (string, bool) {
		s, ok := v.(string)
		return s + "!", ok
	})

	s, ok := c.Text("upper", "x")
	assert.True(t, ok)
	assert.Equal(t, "x!", s)

	_, ok = c.Text("upper", nil)
	assert.False(t, ok)
	_, ok = c.Text("missing", "x")
	assert.False(t, ok)
	_, ok = c.Text("", "x")
	assert.False(t, ok)
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "GMS", ShortName("org.jgroups.protocols.pbcast.GMS"))
	assert.Equal(t, "UDP", ShortName("UDP"))
}
