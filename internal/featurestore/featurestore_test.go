package featurestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_LoadsFeatureOrderAndCategoricalMaps(t *testing.T) {
	dir := t.TempDir()

	order := []string{"sport", "dsport", "proto_index", "state_index"}
	writeJSON(t, filepath.Join(dir, "feature_order.json"), order)
	writeJSON(t, filepath.Join(dir, "string_indexer_proto_map.json"), CategoricalMap{"tcp": 0, "udp": 1})
	writeJSON(t, filepath.Join(dir, "string_indexer_state_map.json"), CategoricalMap{"CON": 0, "FIN": 1})

	store, err := Open(filepath.Join(dir, "feature_order.json"), dir)
	require.NoError(t, err)

	assert.Equal(t, order, store.FeatureOrder)
	assert.ElementsMatch(t, []string{"proto", "state"}, store.CategoricalColumns)

	m, ok := store.Map("proto")
	require.True(t, ok)
	assert.Equal(t, 0, m["tcp"])

	_, ok = store.Map("saddr")
	assert.False(t, ok)
}

func TestOpen_MissingCategoricalMapFileErrors(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "feature_order.json"), []string{"proto_index"})

	_, err := Open(filepath.Join(dir, "feature_order.json"), dir)
	assert.Error(t, err)
}

func TestCategoricalMap_IndexUnseenValueFallsBackToMapLength(t *testing.T) {
	m := CategoricalMap{"a": 0, "b": 1}
	assert.Equal(t, 0.0, m.Index("a"))
	assert.Equal(t, 1.0, m.Index("b"))
	assert.Equal(t, 2.0, m.Index("unseen"))
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}
