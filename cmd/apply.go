package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepgen/deepgen/internal/research"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Commit approved proposals to the tree",
	Long:  "Links or creates the proposed parents for every approved proposal in the session. Skipped proposals and their reasons land in the audit log.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sessionID, _ := cmd.Flags().GetString("session")
		jobID, _ := cmd.Flags().GetString("job")

		a := &research.Applier{
			Store:               st,
			SimilarityThreshold: cfg.Apply.SimilarityThreshold,
		}
		result, err := a.Apply(ctx, sessionID, jobID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	applyCmd.Flags().String("session", "", "session id")
	_ = applyCmd.MarkFlagRequired("session")
	applyCmd.Flags().String("job", "", "restrict to one job's proposals")

	rootCmd.AddCommand(applyCmd)
}
