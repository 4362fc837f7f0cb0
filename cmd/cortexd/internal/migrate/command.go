// Package migrate implements `cortexd migrate`: brings an existing
// substrate directory (created by an older layout, or only partially
// seeded) up to the current identifier layout, without touching any file
// that already exists.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipeed/cortexd/cmd/cortexd/internal"
	"github.com/sipeed/cortexd/pkg/app"
	"github.com/sipeed/cortexd/pkg/substrate"
)

func NewMigrateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring an existing substrate directory up to the current layout",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return migrateCmd(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.json")

	return cmd
}

func migrateCmd(configPath string) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	root := cfg.SubstratePath
	if root == "" {
		root = "substrate"
	}

	fs := substrate.NewOSFilesystem()
	layout := substrate.DefaultLayout()

	if err := app.EnsureSubstrate(fs, root, layout); err != nil {
		return fmt.Errorf("migrating %s: %w", root, err)
	}

	fmt.Printf("%s substrate at %s is up to date with the current layout\n", internal.Logo, root)
	return nil
}
