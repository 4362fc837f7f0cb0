// Package status implements `cortexd status`: a thin HTTP client against a
// running instance's /api/loop/status, mirroring spec §4.10's read-only
// status surface.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/cortexd/cmd/cortexd/internal"
)

func NewStatusCommand() *cobra.Command {
	var addr, token string

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show the loop state and metrics of a running cortexd instance",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return statusCmd(addr, token)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:3000", "Base URL of a running cortexd instance")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token, if the instance requires one")

	return cmd
}

func statusCmd(addr, token string) error {
	req, err := http.NewRequest(http.MethodGet, addr+"/api/loop/status", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}

	var out struct {
		State   string         `json:"state"`
		Metrics map[string]any `json:"metrics"`
		Uptime  string         `json:"uptime"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("%s state: %s (running %s)\n", internal.Logo, out.State, out.Uptime)
	for k, v := range out.Metrics {
		fmt.Printf("  %s: %v\n", k, v)
	}
	return nil
}
