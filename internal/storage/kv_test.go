package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) *KVStorage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), DBFile))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewKVStorage(db)
}

func TestKVStorage_GetMissing(t *testing.T) {
	kv := newTestKV(t)

	data, ok, err := kv.Get(KeyRules)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestKVStorage_PutOverwrites(t *testing.T) {
	kv := newTestKV(t)

	require.NoError(t, kv.Put(KeyRules, []byte(`[1]`)))
	require.NoError(t, kv.Put(KeyRules, []byte(`[2]`)))

	data, ok, err := kv.Get(KeyRules)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[2]`, string(data))
}

func TestKVStorage_DeleteAndKeys(t *testing.T) {
	kv := newTestKV(t)

	require.NoError(t, kv.Put(KeyTopologyNodes, []byte(`[]`)))
	require.NoError(t, kv.Put(KeyTopologyEdges, []byte(`[]`)))
	require.NoError(t, kv.Put(KeyRules, []byte(`[]`)))

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyRules, KeyTopologyEdges, KeyTopologyNodes}, keys)

	require.NoError(t, kv.Delete(KeyRules))
	require.NoError(t, kv.Delete("never-written"))

	keys, err = kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyTopologyEdges, KeyTopologyNodes}, keys)
}

func TestKVStorage_JSONRoundTrip(t *testing.T) {
	kv := newTestKV(t)

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, kv.SaveJSON("doc", doc{Name: "edge", Count: 3}))

	var got doc
	ok, err := kv.LoadJSON("doc", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc{Name: "edge", Count: 3}, got)

	ok, err = kv.LoadJSON("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStorage_LoadJSONCorrupt(t *testing.T) {
	kv := newTestKV(t)
	require.NoError(t, kv.Put(KeyRules, []byte(`{not json`)))

	var dst []int
	ok, err := kv.LoadJSON(KeyRules, &dst)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestInitialize_CreatesFileInDataDir(t *testing.T) {
	dir := t.TempDir()
	db, err := Initialize(dir)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, filepath.Join(dir, DBFile))
}
