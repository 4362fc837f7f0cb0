package main

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/cortexd/cmd/cortexd/internal"
)

func TestNewCortexdCommand(t *testing.T) {
	cmd := NewCortexdCommand()

	require.NotNil(t, cmd)

	short := fmt.Sprintf("%s cortexd - Autonomous Agent Orchestrator v%s\n\n", internal.Logo, internal.GetVersion())

	assert.Equal(t, "cortexd", cmd.Use)
	assert.Equal(t, short, cmd.Short)

	assert.True(t, cmd.HasSubCommands())
	assert.True(t, cmd.HasAvailableSubCommands())

	assert.Nil(t, cmd.Run)
	assert.Nil(t, cmd.RunE)

	assert.Nil(t, cmd.PersistentPreRun)
	assert.Nil(t, cmd.PersistentPostRun)

	allowedCommands := []string{
		"run",
		"status",
		"substrate",
		"audit",
		"cron",
		"migrate",
		"version",
	}

	subcommands := cmd.Commands()
	assert.Len(t, subcommands, len(allowedCommands))

	for _, subcmd := range subcommands {
		found := slices.Contains(allowedCommands, subcmd.Name())
		assert.True(t, found, "unexpected subcommand %q", subcmd.Name())

		assert.False(t, subcmd.Hidden)
	}
}
