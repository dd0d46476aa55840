package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_SetKeepsInsertionOrder(t *testing.T) {
	idx := New()
	idx.Set("hash2", "b")
	idx.Set("hash1", "a")
	idx.Set("hash3", "c")

	assert.Equal(t, []Entry{
		{Hash: "hash2", Name: "b"},
		{Hash: "hash1", Name: "a"},
		{Hash: "hash3", Name: "c"},
	}, idx.Entries())
	assert.Equal(t, 3, idx.Len())
}

func TestIndex_SetReplacesNameInPlace(t *testing.T) {
	idx := FromEntries(
		Entry{Hash: "hash1", Name: "first"},
		Entry{Hash: "hash2", Name: "other"},
	)

	prev, replaced := idx.Set("hash1", "second")
	require.True(t, replaced)
	assert.Equal(t, "first", prev)

	name, ok := idx.Get("hash1")
	require.True(t, ok)
	assert.Equal(t, "second", name)
	assert.Equal(t, []Entry{
		{Hash: "hash1", Name: "second"},
		{Hash: "hash2", Name: "other"},
	}, idx.Entries())
	assert.Equal(t, []Entry{{Hash: "hash1", Name: "first"}}, idx.Shadowed())
}

func TestIndex_ShadowedFiles(t *testing.T) {
	idx := New()
	idx.Set("hash1", "a")
	idx.Set("hash1", "a")
	assert.Empty(t, idx.Shadowed(), "re-setting the same name shadows nothing")

	idx.Set("hash1", "b")
	idx.Set("hash2", "c")
	idx.Set("hash1", "d")

	assert.Equal(t, []Entry{
		{Hash: "hash1", Name: "a"},
		{Hash: "hash1", Name: "b"},
	}, idx.Shadowed())
	assert.Equal(t, []Entry{
		{Hash: "hash1", Name: "d"},
		{Hash: "hash2", Name: "c"},
		{Hash: "hash1", Name: "a"},
		{Hash: "hash1", Name: "b"},
	}, idx.Files())
}

func TestIndex_Lookups(t *testing.T) {
	idx := FromEntries(Entry{Hash: "hash1", Name: "dir/fn1"})

	assert.True(t, idx.Has("hash1"))
	assert.False(t, idx.Has("hash2"))

	_, ok := idx.Get("hash2")
	assert.False(t, ok)

	assert.Equal(t, map[string]ContentHash{"dir/fn1": "hash1"}, idx.ByName())
}

func TestIndex_Empty(t *testing.T) {
	idx := New()
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Entries())
	assert.Empty(t, idx.ByName())
	assert.Empty(t, idx.Shadowed())
	assert.Empty(t, idx.Files())
}
