// cortexd - autonomous agent orchestrator runtime
// Inspired by and based on picoclaw's cobra command-group layout.
// License: MIT
//
// Copyright (c) 2026 cortexd contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/cortexd/cmd/cortexd/internal"
	"github.com/sipeed/cortexd/cmd/cortexd/internal/audit"
	"github.com/sipeed/cortexd/cmd/cortexd/internal/cronjobs"
	"github.com/sipeed/cortexd/cmd/cortexd/internal/migrate"
	"github.com/sipeed/cortexd/cmd/cortexd/internal/run"
	"github.com/sipeed/cortexd/cmd/cortexd/internal/status"
	"github.com/sipeed/cortexd/cmd/cortexd/internal/substratecmd"
	"github.com/sipeed/cortexd/cmd/cortexd/internal/version"
)

func NewCortexdCommand() *cobra.Command {
	short := fmt.Sprintf("%s cortexd - Autonomous Agent Orchestrator v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "cortexd",
		Short:   short,
		Example: "cortexd run",
	}

	cmd.AddCommand(
		run.NewRunCommand(),
		status.NewStatusCommand(),
		substratecmd.NewSubstrateCommand(),
		audit.NewAuditCommand(),
		cronjobs.NewCronCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewCortexdCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
