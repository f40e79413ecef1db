package initializer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/wallet"
)

func TestNewMarketWithoutChain(t *testing.T) {
	ctx := context.Background()
	cfg := conf.DefaultConfig()
	cfg.DB.Path = filepath.Join(t.TempDir(), "ledger")

	m, err := NewMarket(ctx, cfg)
	require.NoError(t, err)
	defer m.Close()

	assert.Nil(t, m.Celery)
	assert.False(t, m.Sync.Enabled())

	res, err := m.Sync.Sync(ctx, computing.SyncRequest{})
	require.NoError(t, err)
	assert.Zero(t, res.Synced)
	assert.Zero(t, res.Created)

	_, err = m.Publisher(&wallet.KeySigner{})
	assert.Error(t, err)

	// Start without a chain or redis is a no-op
	m.Start(ctx)
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	cfg := conf.DefaultConfig()
	cfg.DB.Backend = "sqlite"
	_, err := OpenStore(cfg)
	assert.Error(t, err)
}

func TestProjectInit(t *testing.T) {
	repo := t.TempDir()
	config := "[API]\nPort = 9085\n\n[DB]\nBackend = \"leveldb\"\nPath = \"ledger\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, "config.toml"), []byte(config), 0644))

	m, err := ProjectInit(repo)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 9085, m.Config.API.Port)
	assert.Equal(t, filepath.Join(repo, "ledger"), m.Config.DB.Path)
	_, err = os.Stat(filepath.Join(repo, "ledger"))
	assert.NoError(t, err)
}
