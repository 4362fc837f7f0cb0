package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCmd_SeedsMissingLayout(t *testing.T) {
	substrateDir := filepath.Join(t.TempDir(), "substrate")
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"substratePath":"`+substrateDir+`"}`), 0o644))

	require.NoError(t, migrateCmd(configPath))

	_, err := os.Stat(filepath.Join(substrateDir, "PLAN.md"))
	assert.NoError(t, err)
}

func TestMigrateCmd_PreservesExistingContent(t *testing.T) {
	substrateDir := filepath.Join(t.TempDir(), "substrate")
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"substratePath":"`+substrateDir+`"}`), 0o644))

	require.NoError(t, migrateCmd(configPath))

	planPath := filepath.Join(substrateDir, "PLAN.md")
	require.NoError(t, os.WriteFile(planPath, []byte("# Plan\n\n## Tasks\n\n- [ ] keep me\n"), 0o644))

	require.NoError(t, migrateCmd(configPath))

	content, err := os.ReadFile(planPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "keep me")
}

func TestNewMigrateCommand(t *testing.T) {
	cmd := NewMigrateCommand()
	assert.Equal(t, "migrate", cmd.Use)
}
