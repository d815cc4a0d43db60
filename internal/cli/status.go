package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		files, err := rt.service.Store().CountFiles()
		if err != nil {
			return err
		}
		chunks, err := rt.service.Store().CountChunks()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "workspace: %s\n", rt.cfg.WorkspacePath)
		fmt.Fprintf(out, "database:  %s\n", rt.cfg.Memory.DBPath)
		fmt.Fprintf(out, "files:     %d\n", files)
		fmt.Fprintf(out, "chunks:    %d\n", chunks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
