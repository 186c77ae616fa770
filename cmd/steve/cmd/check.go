package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevekb/steve/internal/config"
	"github.com/stevekb/steve/internal/index"
	"github.com/stevekb/steve/internal/logging"
	"github.com/stevekb/steve/internal/store"
)

// newCheckCmd creates the check command, which verifies that the vector
// and keyword indexes agree on every document's chunk set.
func newCheckCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify index consistency, optionally repairing drift",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cleanup, err := logging.Setup(logging.Config{Level: cfg.Log.Level, FilePath: cfg.Log.File})
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := store.Open(cfg.Paths.Database)
			if err != nil {
				return err
			}
			defer s.Close()

			checker := index.NewConsistencyChecker(s)
			result, err := checker.Check(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "documents: %d\nchunks: %d\ninconsistencies: %d\n",
				result.Documents, result.Chunks, len(result.Inconsistencies))
			for _, issue := range result.Inconsistencies {
				fmt.Fprintf(out, "  %s document=%d chunk=%d\n",
					issue.Type, issue.DocumentID, issue.ChunkIndex)
			}

			if len(result.Inconsistencies) == 0 || !repair {
				return nil
			}

			// Repair re-embeds, so it needs a working embedder. The static
			// embedder keeps the command usable offline.
			embedder := buildEmbedder(cfg, false)
			defer embedder.Close()

			manager, err := index.NewManager(s, embedder, index.ChunkParams{
				MaxTokens: cfg.Retrieval.ChunkSize,
				Overlap:   cfg.Retrieval.ChunkOverlap,
			})
			if err != nil {
				return err
			}
			repaired, err := checker.Repair(cmd.Context(), manager, result)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "repaired: %d\n", repaired)
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Reindex documents with inconsistent indexes")
	return cmd
}
