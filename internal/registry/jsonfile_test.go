package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *JSONRegistry {
	t.Helper()

	reg, err := NewJSONRegistry(JSONConfig{
		Path: filepath.Join(t.TempDir(), "registry.json"),
	}, nil)
	require.NoError(t, err)
	return reg
}

func testDocument(id, partition string) Document {
	return Document{
		ID:        id,
		Filename:  id + ".txt",
		SizeBytes: 1024,
		Partition: partition,
		NumChunks: 3,
		Indexed:   true,
	}
}

func TestJSONRegistryConfigValidation(t *testing.T) {
	_, err := NewJSONRegistry(JSONConfig{}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestJSONRegistryUpsertAndGet(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, testDocument("doc1", "ws")))

	doc, err := reg.Get(ctx, "doc1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc1.txt", doc.Filename)
	assert.Equal(t, 3, doc.NumChunks)
	assert.True(t, doc.Indexed)
	assert.NotZero(t, doc.CreatedAt)
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)
}

func TestJSONRegistryGetAbsent(t *testing.T) {
	reg := newTestRegistry(t)

	doc, err := reg.Get(context.Background(), "no-such-doc")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestJSONRegistryUpsertPreservesCreatedAt(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	timeNow = func() time.Time { return base }
	defer func() { timeNow = time.Now }()

	require.NoError(t, reg.Upsert(ctx, testDocument("doc1", "ws")))

	timeNow = func() time.Time { return base.Add(time.Hour) }

	updated := testDocument("doc1", "ws")
	updated.NumChunks = 7
	require.NoError(t, reg.Upsert(ctx, updated))

	doc, err := reg.Get(ctx, "doc1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, base.Unix(), doc.CreatedAt)
	assert.Equal(t, base.Add(time.Hour).Unix(), doc.UpdatedAt)
	assert.Equal(t, 7, doc.NumChunks)
}

func TestJSONRegistryDelete(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, testDocument("doc1", "ws")))

	removed, err := reg.Delete(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Delete(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, removed)

	doc, err := reg.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestJSONRegistryListScopedToPartition(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, testDocument("doc1", "A")))
	require.NoError(t, reg.Upsert(ctx, testDocument("doc2", "B")))
	require.NoError(t, reg.Upsert(ctx, testDocument("doc3", "A")))

	docs, err := reg.List(ctx, "A")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc1", docs[0].ID)
	assert.Equal(t, "doc3", docs[1].ID)

	docs, err = reg.List(ctx, "C")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestJSONRegistryCorruptFileDiscarded(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(reg.path, []byte("]["), 0o644))

	doc, err := reg.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	require.NoError(t, reg.Upsert(ctx, testDocument("doc1", "ws")))
	doc, err = reg.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.NotNil(t, doc)
}
