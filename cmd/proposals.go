package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/research"
	"github.com/deepgen/deepgen/internal/store"
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Review parent proposals",
}

var proposalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposals for a session or job",
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
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		proposals, err := st.ListProposals(ctx, store.ProposalFilter{
			SessionID: sessionID,
			JobID:     jobID,
			Status:    model.ProposalStatus(status),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return eris.Wrap(err, "proposals list")
		}
		if len(proposals) == 0 {
			fmt.Fprintln(os.Stderr, "No proposals found.")
			return nil
		}

		formatProposalsList(os.Stdout, proposals)
		return nil
	},
}

func formatProposalsList(out io.Writer, proposals []model.ParentProposal) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tXREF\tREL\tCANDIDATE\tCONF\tSTATUS\tFLAGS")

	for _, p := range proposals {
		candidate := p.CandidateName
		if candidate == "" {
			candidate = "-"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.3f\t%s\t%s\n",
			p.ID, p.PersonXref, p.Relationship, candidate, p.Confidence,
			p.Status, strings.Join(p.ContradictionFlags, ","))
	}
	_ = w.Flush()
}

func decideProposal(cmd *cobra.Command, proposalID string, req research.DecisionRequest) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	id, err := strconv.ParseInt(proposalID, 10, 64)
	if err != nil {
		return eris.Errorf("invalid proposal id: %s", proposalID)
	}
	req.ProposalID = id

	r := &research.Reviewer{Store: st}
	proposal, err := r.DecideProposal(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Proposal %d is now %s\n", proposal.ID, proposal.Status)
	return nil
}

var proposalsApproveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Approve a proposal for apply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		return decideProposal(cmd, args[0], research.DecisionRequest{
			Action: research.ActionApprove,
			Notes:  notes,
		})
	},
}

var proposalsRejectCmd = &cobra.Command{
	Use:   "reject <proposal-id>",
	Short: "Reject a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		return decideProposal(cmd, args[0], research.DecisionRequest{
			Action: research.ActionReject,
			Notes:  notes,
		})
	},
}

var proposalsEditCmd = &cobra.Command{
	Use:   "edit <proposal-id>",
	Short: "Edit a proposal and return it to pending review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := research.DecisionRequest{Action: research.ActionEdit}
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			req.CandidateName = &name
		}
		if cmd.Flags().Changed("confidence") {
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			req.Confidence = &confidence
		}
		req.Notes, _ = cmd.Flags().GetString("notes")
		return decideProposal(cmd, args[0], req)
	},
}

func init() {
	proposalsListCmd.Flags().String("session", "", "filter by session id")
	proposalsListCmd.Flags().String("job", "", "filter by job id")
	proposalsListCmd.Flags().String("status", "", "filter by status (pending_review, approved, rejected, applied)")
	proposalsListCmd.Flags().Int("limit", 100, "max number of proposals to display")
	proposalsListCmd.Flags().Int("offset", 0, "pagination offset")

	proposalsApproveCmd.Flags().String("notes", "", "reviewer notes")
	proposalsRejectCmd.Flags().String("notes", "", "reviewer notes")

	proposalsEditCmd.Flags().String("name", "", "replacement candidate name (empty clears it)")
	proposalsEditCmd.Flags().Float64("confidence", 0, "replacement confidence in [0, 1]")
	proposalsEditCmd.Flags().String("notes", "", "reviewer notes")

	proposalsCmd.AddCommand(proposalsListCmd)
	proposalsCmd.AddCommand(proposalsApproveCmd)
	proposalsCmd.AddCommand(proposalsRejectCmd)
	proposalsCmd.AddCommand(proposalsEditCmd)
	rootCmd.AddCommand(proposalsCmd)
}
