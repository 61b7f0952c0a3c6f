package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/lishe/internal/config"
)

func TestRun_StartupFailureReturnsExitCode(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lishe.db")
	catalogPath := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte("code,Chakula,FIB\n1,Mtama,1\n"), 0o600))

	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv("LISHE_LOGGING_LEVEL", "error")
	t.Setenv("LISHE_DATABASE_DRIVER", "sqlite")
	t.Setenv("LISHE_DATABASE_DSN", dbPath)
	t.Setenv("LISHE_CATALOG_PATH", catalogPath)
	t.Setenv("LISHE_TABLES_PATH", filepath.Join(dir, "missing.yaml"))

	assert.Equal(t, 1, run())

	// the store was opened before the failure, so the deferred close ran
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
