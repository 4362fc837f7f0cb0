package cronjobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronCmd_ListsEveryScheduler(t *testing.T) {
	substrateDir := filepath.Join(t.TempDir(), "substrate")
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"substratePath":"`+substrateDir+`"}`), 0o644))

	require.NoError(t, cronCmd(configPath))
}

func TestNewCronCommand(t *testing.T) {
	cmd := NewCronCommand()
	assert.Equal(t, "cron", cmd.Use)
}
