package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepgen/deepgen/internal/connector"
	"github.com/deepgen/deepgen/internal/research"
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Create and run research jobs",
}

var researchCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Queue a research job over a session's eligible people",
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

		var overrides map[string]bool
		if path, _ := cmd.Flags().GetString("connectors"); path != "" {
			overrides, err = connector.LoadOverrides(path)
			if err != nil {
				return err
			}
		}

		o := research.NewOrchestrator(st, *cfg)
		job, err := o.CreateJob(ctx, sessionID, overrides)
		if err != nil {
			return err
		}

		fmt.Printf("Created job %s over %d people\n", job.ID, job.TargetCount)
		return nil
	},
}

var researchRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a queued research job to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		o := research.NewOrchestrator(st, *cfg)
		job, err := o.Run(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Job %s finished: status=%s progress=%.0f%% errors=%d\n",
			job.ID, job.Status, job.Progress, job.ErrorCount)
		return nil
	},
}

var researchStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's progress and stage telemetry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		o := research.NewOrchestrator(st, *cfg)
		status, err := o.Status(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

var researchFindingsCmd = &cobra.Command{
	Use:   "findings <job-id>",
	Short: "Show a job's proposals and questions for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		o := research.NewOrchestrator(st, *cfg)
		findings, err := o.Findings(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	},
}

func init() {
	researchCreateCmd.Flags().String("session", "", "session id")
	_ = researchCreateCmd.MarkFlagRequired("session")
	researchCreateCmd.Flags().String("connectors", "", "YAML connector overrides file")

	researchCmd.AddCommand(researchCreateCmd)
	researchCmd.AddCommand(researchRunCmd)
	researchCmd.AddCommand(researchStatusCmd)
	researchCmd.AddCommand(researchFindingsCmd)
	rootCmd.AddCommand(researchCmd)
}
