package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run one note-corpus indexing pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.service.Sync(context.Background()); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		files, err := rt.service.Store().CountFiles()
		if err != nil {
			return err
		}
		chunks, err := rt.service.Store().CountChunks()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d chunks\n", files, chunks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
