package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/eventbus"
	"github.com/dep2p/go-groupstack/internal/core/storage"
	"github.com/dep2p/go-groupstack/pkg/types"
)

func clusterDef() *types.StackDefinition {
	return &types.StackDefinition{
		Name:      "cluster",
		Transport: &types.TransportDefinition{Type: "UDP", SocketBinding: "jgroups-udp"},
		Protocols: []types.ProtocolDefinition{
			{Type: "PING"},
			{Type: "FD", Properties: map[string]string{"timeout": "3000"}},
			{Type: "GMS"},
		},
	}
}

func testStore(t *testing.T) *storage.KV {
	t.Helper()
	eng, err := storage.Open(storage.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return storage.NewKV(eng, []byte(StorePrefix))
}

func TestRegistry_AddRemoveLayer(t *testing.T) {
	r := New()

	s, err := r.AddStack(clusterDef())
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "FD", "GMS"}, s.Order())
	assert.Equal(t, uint64(1), s.Version())

	s2, err := r.RemoveLayer("cluster", "FD")
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "GMS"}, s2.Order())
	assert.Equal(t, 2, s2.Len())
	assert.Equal(t, uint64(2), s2.Version())

	// 旧版本不受影响
	assert.Equal(t, []string{"PING", "FD", "GMS"}, s.Order())

	_, err = r.RemoveLayer("cluster", "FD")
	assert.ErrorIs(t, err, ErrLayerNotFound)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRegistry_AddLayerPositions(t *testing.T) {
	r := New()
	_, err := r.AddStack(clusterDef())
	require.NoError(t, err)

	s, err := r.AddLayer("cluster", types.ProtocolDefinition{Type: "MERGE3"}, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "FD", "GMS", "MERGE3"}, s.Order())

	s, err = r.AddLayer("cluster", types.ProtocolDefinition{Type: "FD_SOCK"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "FD_SOCK", "FD", "GMS", "MERGE3"}, s.Order())

	s, err = r.AddLayer("cluster", types.ProtocolDefinition{Type: "UFC"}, 99)
	require.NoError(t, err)
	assert.Equal(t, "UFC", s.Order()[s.Len()-1])

	_, err = r.AddLayer("cluster", types.ProtocolDefinition{Type: "FD"}, 0)
	assert.ErrorIs(t, err, ErrDuplicateLayer)

	_, err = r.AddLayer("missing", types.ProtocolDefinition{Type: "FD"}, 0)
	assert.ErrorIs(t, err, ErrStackNotFound)
}

func TestRegistry_RemoveReAddRestoresOnlyAtSamePosition(t *testing.T) {
	r := New()
	_, err := r.AddStack(clusterDef())
	require.NoError(t, err)

	_, err = r.RemoveLayer("cluster", "FD")
	require.NoError(t, err)
	s, err := r.AddLayer("cluster", types.ProtocolDefinition{Type: "FD"}, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "GMS", "FD"}, s.Order())

	_, err = r.RemoveLayer("cluster", "FD")
	require.NoError(t, err)
	s, err = r.AddLayer("cluster", types.ProtocolDefinition{Type: "FD"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "FD", "GMS"}, s.Order())
}

func TestRegistry_Describe(t *testing.T) {
	r := New()
	_, err := r.AddStack(clusterDef())
	require.NoError(t, err)

	layers, err := r.Describe("cluster")
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.Equal(t, "FD", layers[1].Name)
	assert.Equal(t, "3000", layers[1].Definition.Properties["timeout"])

	// 返回的是副本
	layers[1].Definition.Properties["timeout"] = "1"
	s, _ := r.Stack("cluster")
	fd, _ := s.Layer("FD")
	assert.Equal(t, "3000", fd.Properties["timeout"])
}

func TestRegistry_StackErrors(t *testing.T) {
	r := New()

	_, err := r.AddStack(&types.StackDefinition{})
	assert.ErrorIs(t, err, ErrInvalidStack)

	def := clusterDef()
	def.Protocols = append(def.Protocols, types.ProtocolDefinition{Type: "PING"})
	_, err = r.AddStack(def)
	assert.ErrorIs(t, err, ErrDuplicateLayer)

	_, err = r.AddStack(clusterDef())
	require.NoError(t, err)
	_, err = r.AddStack(clusterDef())
	assert.ErrorIs(t, err, ErrDuplicateStack)

	require.NoError(t, r.RemoveStack("cluster"))
	assert.ErrorIs(t, r.RemoveStack("cluster"), ErrStackNotFound)
	assert.Empty(t, r.Stacks())
}

func TestRegistry_TransportAndRelay(t *testing.T) {
	r := New()
	old, err := r.AddStack(clusterDef())
	require.NoError(t, err)

	s, err := r.SetTransport("cluster", &types.TransportDefinition{Type: "TCP"})
	require.NoError(t, err)
	assert.Equal(t, "TCP", s.Transport().Type)

	s, err = r.SetRelay("cluster", &types.RelayDefinition{Site: "lon"})
	require.NoError(t, err)
	cs := Diff(old, s)
	assert.True(t, cs.TransportChanged)
	assert.True(t, cs.RelayChanged)
	assert.False(t, cs.Reordered)
	assert.Empty(t, cs.AddedLayers)

	s, err = r.SetRelay("cluster", nil)
	require.NoError(t, err)
	assert.Nil(t, s.Relay())
}

func TestDiff(t *testing.T) {
	a, err := newStack(clusterDef(), 1)
	require.NoError(t, err)

	def := clusterDef()
	def.Protocols = []types.ProtocolDefinition{
		{Type: "GMS"},
		{Type: "PING"},
		{Type: "FD", Properties: map[string]string{"timeout": "5000"}},
		{Type: "MERGE3"},
	}
	b, err := newStack(def, 2)
	require.NoError(t, err)

	cs := Diff(a, b)
	assert.Equal(t, []string{"MERGE3"}, cs.AddedLayers)
	assert.Empty(t, cs.RemovedLayers)
	assert.Equal(t, []string{"FD"}, cs.ChangedLayers)
	assert.True(t, cs.Reordered)
	assert.False(t, cs.TransportChanged)
	assert.False(t, cs.Empty())

	assert.True(t, Diff(a, a).Empty())
	assert.Equal(t, []string{"PING", "FD", "GMS"}, Diff(nil, a).AddedLayers)
}

func TestRegistry_PersistAndLoad(t *testing.T) {
	store := testStore(t)

	r := New(WithStore(store))
	_, err := r.AddStack(clusterDef())
	require.NoError(t, err)
	_, err = r.AddLayer("cluster", types.ProtocolDefinition{Type: "MERGE3"}, 0)
	require.NoError(t, err)

	var rec Record
	require.NoError(t, store.GetJSON([]byte("cluster"), &rec))
	assert.Equal(t, []string{"MERGE3", "PING", "FD", "GMS"}, rec.Order)
	assert.Equal(t, uint64(2), rec.Version)

	loaded := New(WithStore(store))
	require.NoError(t, loaded.Load())
	s, err := loaded.Stack("cluster")
	require.NoError(t, err)
	assert.Equal(t, []string{"MERGE3", "PING", "FD", "GMS"}, s.Order())
	assert.Equal(t, uint64(2), s.Version())
	assert.Equal(t, "jgroups-udp", s.Transport().SocketBinding)

	require.NoError(t, loaded.RemoveStack("cluster"))
	_, err = store.Get([]byte("cluster"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReconcile_Legacy(t *testing.T) {
	t.Run("ordered layers without order list", func(t *testing.T) {
		s, err := Reconcile(Record{
			Name:   "legacy",
			Layers: []types.ProtocolDefinition{{Type: "PING"}, {Type: "FD"}, {Type: "GMS"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"PING", "FD", "GMS"}, s.Order())
	})

	t.Run("unordered map with several layers", func(t *testing.T) {
		_, err := Reconcile(Record{
			Name: "legacy",
			LayerMap: map[string]types.ProtocolDefinition{
				"PING": {},
				"FD":   {},
			},
		})
		assert.ErrorIs(t, err, ErrAmbiguousOrder)
	})

	t.Run("unordered map with one layer", func(t *testing.T) {
		s, err := Reconcile(Record{
			Name:     "legacy",
			LayerMap: map[string]types.ProtocolDefinition{"PING": {}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"PING"}, s.Order())
	})

	t.Run("explicit order wins over unordered map", func(t *testing.T) {
		s, err := Reconcile(Record{
			Name:  "legacy",
			Order: []string{"GMS", "PING"},
			LayerMap: map[string]types.ProtocolDefinition{
				"PING": {},
				"GMS":  {},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"GMS", "PING"}, s.Order())
	})

	t.Run("order disagrees with layers", func(t *testing.T) {
		_, err := Reconcile(Record{
			Name:   "legacy",
			Order:  []string{"PING"},
			Layers: []types.ProtocolDefinition{{Type: "PING"}, {Type: "FD"}},
		})
		assert.ErrorIs(t, err, ErrCorruptRecord)

		_, err = Reconcile(Record{
			Name:   "legacy",
			Order:  []string{"PING", "GMS"},
			Layers: []types.ProtocolDefinition{{Type: "PING"}, {Type: "FD"}},
		})
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})
}

func TestRegistry_LoadSkipsAmbiguous(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.PutJSON([]byte("good"), Record{
		Name: "good", Version: 3, Order: []string{"PING"}, Layers: []types.ProtocolDefinition{{Type: "PING"}},
	}))
	require.NoError(t, store.PutJSON([]byte("bad"), Record{
		Name: "bad", LayerMap: map[string]types.ProtocolDefinition{"PING": {}, "FD": {}},
	}))

	r := New(WithStore(store))
	err := r.Load()
	assert.ErrorIs(t, err, ErrAmbiguousOrder)
	assert.Equal(t, []string{"good"}, r.Stacks())
}

func TestRegistry_EmitsStackChanged(t *testing.T) {
	bus := eventbus.NewBus()
	sub, err := bus.Subscribe(new(types.EvtStackChanged))
	require.NoError(t, err)
	defer sub.Close()
	em, err := bus.Emitter(new(types.EvtStackChanged))
	require.NoError(t, err)

	r := New(WithEmitter(em))
	_, err = r.AddStack(clusterDef())
	require.NoError(t, err)
	require.NoError(t, r.RemoveStack("cluster"))

	for _, want := range []types.EvtStackChanged{
		{Stack: "cluster", Version: 1},
		{Stack: "cluster", Version: 1, Removed: true},
	} {
		select {
		case evt := <-sub.Out():
			assert.Equal(t, want, evt)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestRegistry_LayerNamesAreCanonical(t *testing.T) {
	cat := catalog.New()
	cat.MustRegister(
		&catalog.LayerType{Name: "PING", Kind: catalog.KindProtocol},
		&catalog.LayerType{Name: "FD", Kind: catalog.KindProtocol},
		&catalog.LayerType{Name: "pbcast.GMS", Kind: catalog.KindProtocol},
	)
	r := New(WithLayerNames(cat.Canonical))

	def := clusterDef()
	def.Protocols[2].Type = "pbcast.GMS"
	s, err := r.AddStack(def)
	require.NoError(t, err)
	assert.Equal(t, 2, r.IndexOf(s, "GMS"))
	assert.Equal(t, 2, r.IndexOf(s, "org.jgroups.protocols.pbcast.GMS"))

	_, err = r.AddLayer("cluster", types.ProtocolDefinition{Type: "GMS"}, -1)
	assert.ErrorIs(t, err, ErrDuplicateLayer)

	// 替换时保留已有写法
	s, err = r.SetLayer("cluster", types.ProtocolDefinition{Type: "GMS", Properties: map[string]string{"join_timeout": "5000"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "FD", "pbcast.GMS"}, s.Order())
	gms, ok := s.Layer("pbcast.GMS")
	require.True(t, ok)
	assert.Equal(t, "5000", gms.Properties["join_timeout"])

	s, err = r.RemoveLayer("cluster", "GMS")
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "FD"}, s.Order())
	_, ok = s.Layer("pbcast.GMS")
	assert.False(t, ok)

	both := clusterDef()
	both.Name = "both"
	both.Protocols = append(both.Protocols, types.ProtocolDefinition{Type: "pbcast.GMS"})
	_, err = r.AddStack(both)
	assert.ErrorIs(t, err, ErrDuplicateLayer)
	assert.Equal(t, []string{"cluster"}, r.Stacks())
}
