package schema

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/viewdb/core"
)

func TestFromStreamScenario(t *testing.T) {
	doc := Document{
		"query":                 "SELECT FROM Foo",
		"updatable":             true,
		"indexes":               []map[string]string{{"name": "STRING"}},
		"updateIntervalSeconds": 60,
	}

	view, err := DecodeView(NewSchema("app", nil), "FooView", doc)
	require.NoError(t, err)

	assert.Equal(t, "SELECT FROM Foo", view.Query())
	assert.True(t, view.IsUpdatable())
	assert.Equal(t, 60, view.UpdateIntervalSeconds())
	assert.Equal(t, []string{}, view.Nodes())
	assert.Equal(t, []string{}, view.WatchClasses())
	assert.Equal(t, "", view.OriginRidField())
	assert.Equal(t, core.UpdateStrategyBatch, view.UpdateStrategy())

	required := view.RequiredIndexesInfo()
	require.Len(t, required, 1)
	assert.Equal(t, []core.IndexProperty{{Name: "name", Type: core.StringType}}, required[0].Properties())

	assert.Empty(t, view.ActiveIndexNames())
	assert.Empty(t, view.InactiveIndexNames())
}

func TestFromStreamIgnoresMismatchedKinds(t *testing.T) {
	doc := Document{
		"query":                 "SELECT FROM Foo",
		"updatable":             "yes",
		"updateIntervalSeconds": "60",
		"updateStrategy":        42,
		"watchClasses":          "Foo",
		"originRidField":        []string{"origin"},
		"nodes":                 NewStringSet("node1"),
		"activeIndexNames":      []string{"idx1"},
		"inactiveIndexNames":    NewStringSet("idx2"),
	}

	view, err := DecodeView(NewSchema("app", nil), "FooView", doc)
	require.NoError(t, err)

	assert.False(t, view.IsUpdatable())
	assert.Equal(t, 0, view.UpdateIntervalSeconds())
	assert.Equal(t, core.UpdateStrategyBatch, view.UpdateStrategy())
	assert.Equal(t, []string{}, view.WatchClasses())
	assert.Equal(t, "", view.OriginRidField())
	assert.Equal(t, []string{}, view.Nodes())
	assert.Empty(t, view.ActiveIndexNames())
	assert.Empty(t, view.InactiveIndexNames())
}

func TestFromStreamMissingQuery(t *testing.T) {
	_, err := DecodeView(NewSchema("app", nil), "FooView", Document{"updatable": true})
	assert.ErrorIs(t, err, ErrMissingQuery)

	_, err = DecodeView(NewSchema("app", nil), "FooView", Document{"query": 7})
	assert.ErrorIs(t, err, ErrMissingQuery)
}

func TestFromStreamMalformedIndexType(t *testing.T) {
	doc := Document{
		"query":   "SELECT FROM Foo",
		"indexes": []map[string]string{{"name": "STRING"}, {"location": "GEOPOINT"}},
	}

	_, err := DecodeView(NewSchema("app", nil), "FooView", doc)
	assert.ErrorIs(t, err, ErrMalformedIndexType)
	assert.ErrorIs(t, err, core.ErrUnknownColumnType)
}

func TestFromStreamOrdersIndexPropertiesByName(t *testing.T) {
	doc := Document{
		"query":   "SELECT FROM Foo",
		"indexes": []map[string]string{{"zip": "STRING", "age": "INTEGER", "name": "STRING"}},
	}

	view, err := DecodeView(NewSchema("app", nil), "FooView", doc)
	require.NoError(t, err)

	props := view.RequiredIndexesInfo()[0].Properties()
	require.Len(t, props, 3)
	assert.Equal(t, "age", props[0].Name)
	assert.Equal(t, "name", props[1].Name)
	assert.Equal(t, "zip", props[2].Name)
}

func TestToStreamWritesEveryField(t *testing.T) {
	s := NewSchema("app", nil)
	view, err := s.CreateView(core.NewViewConfig("Bare", "SELECT FROM Foo"), []int{3})
	require.NoError(t, err)

	doc := view.ToStream()

	for _, field := range []string{
		"query", "updatable", "indexes", "updateIntervalSeconds", "updateStrategy",
		"watchClasses", "originRidField", "nodes", "activeIndexNames", "inactiveIndexNames",
	} {
		assert.True(t, doc.Has(field), "missing field %s", field)
	}

	kind, _ := doc.Kind("originRidField")
	assert.Equal(t, KindNull, kind)
	indexes, ok := doc.MapListField("indexes")
	assert.True(t, ok)
	assert.Empty(t, indexes)
	set, ok := doc.SetField("activeIndexNames")
	assert.True(t, ok)
	assert.Empty(t, set)
}

func TestStorageRoundTrip(t *testing.T) {
	s := NewSchema("app", nil)
	view, err := s.CreateView(sampleConfig(), []int{5, 6})
	require.NoError(t, err)
	view.AddActiveIndexes([]string{"ActiveUsers_name"})
	view.InactivateIndex("ActiveUsers_old")
	view.InactivateIndex("ActiveUsers_old")

	stored := view.ToStream()
	reloaded, err := DecodeView(s, view.Name(), stored)
	require.NoError(t, err)

	assert.Equal(t, stored, reloaded.ToStream())
	assert.Equal(t, []string{"ActiveUsers_old", "ActiveUsers_old"}, reloaded.InactiveIndexNames())
	assert.Equal(t, []int{5, 6}, reloaded.ClusterIDs())
}

func TestStorageRoundTripThroughBytes(t *testing.T) {
	s := NewSchema("app", nil)
	view, err := s.CreateView(sampleConfig(), []int{5})
	require.NoError(t, err)
	view.AddActiveIndexes([]string{"a", "b"})

	data, err := MarshalDocument(view.ToStream())
	require.NoError(t, err)
	doc, err := UnmarshalDocument(data)
	require.NoError(t, err)

	reloaded, err := DecodeView(s, view.Name(), doc)
	require.NoError(t, err)
	assert.Equal(t, view.ToStream(), reloaded.ToStream())
}

func TestNetworkAndStorageParity(t *testing.T) {
	s := NewSchema("app", nil)
	view, err := s.CreateView(sampleConfig(), []int{5})
	require.NoError(t, err)
	view.AddActiveIndexes([]string{"ActiveUsers_name"})
	view.InactivateIndex("ActiveUsers_legacy")

	storage := view.ToStream()
	network := view.ToNetworkStream()

	for name, value := range network {
		assert.Equal(t, storage[name], value, "field %s differs", name)
	}
	assert.True(t, storage.Has("clusterSelection"))
	assert.False(t, network.Has("clusterSelection"))
}

func TestNewViewCopiesConfig(t *testing.T) {
	cfg := sampleConfig()
	view := NewView(NewSchema("app", nil), cfg, nil)

	cfg.SetNodes([]string{"other"})
	cfg.AddIndex().AddProperty("x", core.StringType)

	assert.Equal(t, []string{"node1", "node2"}, view.Nodes())
	assert.Len(t, view.RequiredIndexesInfo(), 1)
}

func TestProperty_StorageRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	typeTags := []interface{}{"STRING", "INTEGER", "LONG", "BOOLEAN", "DATETIME", "LINK"}

	properties.Property("decode then encode reproduces the stored document", prop.ForAll(
		func(query string, updatable bool, interval int, watch, nodes, active, inactive []string, propNames []string, propType string) bool {
			doc := Document{
				"query":                 "SELECT FROM " + query,
				"updatable":             updatable,
				"updateIntervalSeconds": interval,
				"updateStrategy":        "batch",
				"watchClasses":          watch,
				"originRidField":        nil,
				"nodes":                 nodes,
				"activeIndexNames":      NewStringSet(active...),
				"inactiveIndexNames":    inactive,
			}
			props := map[string]string{}
			for _, name := range propNames {
				props[name] = propType
			}
			doc["indexes"] = []map[string]string{props}

			view, err := DecodeView(NewSchema("app", nil), "Generated", doc)
			if err != nil {
				return false
			}
			first := view.ToStream()

			again, err := DecodeView(NewSchema("app", nil), "Generated", first)
			if err != nil {
				return false
			}
			second := again.ToStream()

			data1, err1 := MarshalDocument(first)
			data2, err2 := MarshalDocument(second)
			return err1 == nil && err2 == nil && string(data1) == string(data2)
		},
		gen.Identifier(),
		gen.Bool(),
		gen.IntRange(0, 86400),
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.OneConstOf(typeTags...),
	))

	properties.TestingRun(t)
}
