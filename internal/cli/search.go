package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/naralabs/nara/pkg/memory"
	"github.com/spf13/cobra"
)

var (
	searchSession      string
	searchCrossSession bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the memory index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		opts := memory.SearchOptions{SessionKey: searchSession}
		if cmd.Flags().Changed("cross-session") {
			opts.CrossSession = &searchCrossSession
		}

		hits, err := rt.service.Search(context.Background(), strings.Join(args, " "), opts)
		if err != nil {
			return err
		}

		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no results")
			return nil
		}

		for _, hit := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s#%d (%s)\n",
				formatScore(hit.Score), hit.Chunk.Path, hit.Chunk.Index, hit.Chunk.Source)
			snippet := hit.Chunk.Content
			if len(snippet) > 200 {
				snippet = snippet[:200] + "..."
			}
			fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", strings.ReplaceAll(snippet, "\n", " "))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSession, "session", "", "attribute the query to a session key")
	searchCmd.Flags().BoolVar(&searchCrossSession, "cross-session", false, "allow results from other sessions' transcripts")
	rootCmd.AddCommand(searchCmd)
}
