// Package audit implements `cortexd audit`: requests a one-off governance
// audit from a running instance, per spec §4.10's POST /api/loop/audit.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func NewAuditCommand() *cobra.Command {
	var addr, token string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Request an out-of-cycle governance audit from a running instance",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return auditCmd(addr, token)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:3000", "Base URL of a running cortexd instance")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token, if the instance requires one")

	return cmd
}

func auditCmd(addr, token string) error {
	req, err := http.NewRequest(http.MethodPost, addr+"/api/loop/audit", nil)
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

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Println("audit requested: the superego will run it at the next opportunity")
	return nil
}
