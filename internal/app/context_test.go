package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapline/internal/config"
	"gapline/internal/db"
)

func TestOpenMigratesAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	ws, err := Open(context.Background(), dir, nil)
	require.NoError(t, err)
	defer ws.Close()

	_, err = os.Stat(db.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, config.Default().Allocation.MaxPerPhase, ws.Config.Allocation.MaxPerPhase)

	items, err := ws.Engine.Assessments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	again, err := Open(context.Background(), dir, nil)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("allocation:\n  max_per_phase: 2\n"), 0o644))
	ws, err := Open(context.Background(), dir, nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, 2, ws.Config.Allocation.MaxPerPhase)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("allocation:\n  max_per_phase: 9\n"), 0o644))
	_, err := Open(context.Background(), dir, nil)
	assert.Error(t, err)
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	path, err := InitConfig(dir, false)
	require.NoError(t, err)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Scoring, cfg.Scoring)

	_, err = InitConfig(dir, false)
	assert.Error(t, err)
	_, err = InitConfig(dir, true)
	assert.NoError(t, err)
	assert.Equal(t, config.Path(dir), path)
}
