package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dctwin/internal/config"
	"dctwin/internal/domain"
	"dctwin/internal/notify"
)

func TestNew_SQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "twin.db")

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	sites, err := a.Inventory.ListSites(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestNew_BadDialect(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Dialect = "oracle"

	_, err := New(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "open store")
}

func TestNewNotifier(t *testing.T) {
	n, err := newNotifier(config.NotifierConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = newNotifier(config.NotifierConfig{URL: "http://hooks", MinSeverity: "MEDIUM"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &notify.Webhook{}, n)

	_, err = newNotifier(config.NotifierConfig{URL: "http://hooks", MinSeverity: "URGENT"}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrValidation)
}
