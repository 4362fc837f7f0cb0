// Package cronjobs implements `cortexd cron`: lists the configured
// Backup/Email/Health scheduler cron expressions (spec §4.12) and their
// next firing time, without starting the orchestrator.
package cronjobs

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/cortexd/cmd/cortexd/internal"
	"github.com/sipeed/cortexd/pkg/schedulers"
	"github.com/sipeed/cortexd/pkg/substrate"
)

func NewCronCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cron",
		Short: "List configured maintenance schedules and their next run time",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cronCmd(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.json")

	return cmd
}

func cronCmd(configPath string) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	root := cfg.SubstratePath
	if root == "" {
		root = "substrate"
	}

	fs := substrate.NewOSFilesystem()
	now := time.Now()

	jobs := []schedulers.Scheduler{
		schedulers.NewBackup(fs, root, cfg.BackupPath, root+"/config", cfg.BackupRetentionCount, cfg.BackupCron),
		schedulers.NewEmail(fs, substrate.NewReader(fs, root, substrate.DefaultLayout(), false), root+"/config", cfg.Email.Recipients, cfg.Email.Enabled, cfg.Email.Cron),
		schedulers.NewHealth(nil, nil, nil, cfg.HealthCron),
	}

	for _, j := range jobs {
		next, ok := j.NextRun(now)
		if !ok {
			fmt.Printf("%-8s disabled\n", j.Name())
			continue
		}
		fmt.Printf("%-8s next run: %s (in %s)\n", j.Name(), next.Format(time.RFC3339), next.Sub(now).Round(time.Second))
	}
	return nil
}
