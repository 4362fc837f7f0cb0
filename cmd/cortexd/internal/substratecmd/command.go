// Package substratecmd implements `cortexd substrate read/write`: direct,
// offline inspection and mutation of substrate files, using the same
// reader/writer/appender stack as the orchestrator (spec §4.3/§4.4),
// without requiring a running instance.
package substratecmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sipeed/cortexd/cmd/cortexd/internal"
	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/substrate"
)

func NewSubstrateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "substrate",
		Short: "Inspect or mutate substrate files directly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json")

	cmd.AddCommand(newReadCommand(&configPath), newWriteCommand(&configPath))
	return cmd
}

func openSubstrate(configPath string) (*substrate.Reader, *substrate.Writer, *substrate.Appender, error) {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	root := cfg.SubstratePath
	if root == "" {
		root = "substrate"
	}

	fs := substrate.NewOSFilesystem()
	layout := substrate.DefaultLayout()
	lock := substrate.NewFileLock()
	reader := substrate.NewReader(fs, root, layout, false)
	writer := substrate.NewOverwriteWriter(fs, reader, lock, layout)
	appender := substrate.NewAppendWriter(fs, reader, lock, layout, root, clock.New(), substrate.DefaultRotationThreshold)
	return reader, writer, appender, nil
}

func newReadCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "read <identifier>",
		Short: "Print one substrate file's raw content",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			reader, _, _, err := openSubstrate(*configPath)
			if err != nil {
				return err
			}
			id := substrate.Identifier(strings.ToUpper(args[0]))
			res, err := reader.Read(id)
			if err != nil {
				return err
			}
			fmt.Print(res.Raw)
			return nil
		},
	}
}

func newWriteCommand(configPath *string) *cobra.Command {
	var appendOnly bool
	var role string

	cmd := &cobra.Command{
		Use:   "write <identifier> [file]",
		Short: "Write or append content to one substrate file",
		Long: "Writes content to the named identifier, read from [file] or stdin " +
			"if omitted. Overwrite-mode identifiers use the overwrite writer; " +
			"append-only identifiers require --append.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			reader, writer, appender, err := openSubstrate(*configPath)
			if err != nil {
				return err
			}
			id := substrate.Identifier(strings.ToUpper(args[0]))

			var content []byte
			if len(args) == 2 {
				content, err = os.ReadFile(args[1])
			} else {
				content, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("reading content: %w", err)
			}

			if appendOnly {
				if err := appender.Append(id, role, string(content)); err != nil {
					return err
				}
			} else {
				if err := writer.Write(id, string(content)); err != nil {
					return err
				}
			}

			res, err := reader.Read(id)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", id, len(res.Raw))
			return nil
		},
	}

	cmd.Flags().BoolVar(&appendOnly, "append", false, "Use the append-only writer instead of overwrite")
	cmd.Flags().StringVar(&role, "role", "CLI", "Role tag recorded on an append-only write")

	return cmd
}
