package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

func TestNewStoreJSONFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Provider = config.ProviderJSONFile
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embedding.Dimension = 3

	store, err := vectorstore.NewStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &vectorstore.JSONStore{}, store)
}

func TestNewStoreUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Provider = "cassandra"
	cfg.Embedding.Dimension = 3

	_, err := vectorstore.NewStore(context.Background(), cfg, nil)
	require.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
