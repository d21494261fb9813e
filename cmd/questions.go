package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/research"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Answer the questions research raised",
}

var questionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a job's questions",
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

		jobID, _ := cmd.Flags().GetString("job")
		questions, err := st.ListJobQuestions(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "questions list")
		}

		if pendingOnly, _ := cmd.Flags().GetBool("pending"); pendingOnly {
			filtered := questions[:0]
			for _, q := range questions {
				if q.Status == model.QuestionStatusPending {
					filtered = append(filtered, q)
				}
			}
			questions = filtered
		}
		if len(questions) == 0 {
			fmt.Fprintln(os.Stderr, "No questions found.")
			return nil
		}

		formatQuestionsList(os.Stdout, questions)
		return nil
	},
}

func formatQuestionsList(out io.Writer, questions []model.ResearchQuestion) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tXREF\tREL\tSTATUS\tQUESTION")

	for _, q := range questions {
		text := q.Question
		if len(text) > 80 {
			text = text[:77] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			q.ID, q.PersonXref, q.Relationship, q.Status, text)
	}
	_ = w.Flush()
}

func updateQuestion(cmd *cobra.Command, questionID string, status model.QuestionStatus, answer string) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	id, err := strconv.ParseInt(questionID, 10, 64)
	if err != nil {
		return eris.Errorf("invalid question id: %s", questionID)
	}

	r := &research.Reviewer{Store: st}
	question, err := r.AnswerQuestion(ctx, id, status, answer)
	if err != nil {
		return err
	}

	fmt.Printf("Question %d is now %s\n", question.ID, question.Status)
	return nil
}

var questionsAnswerCmd = &cobra.Command{
	Use:   "answer <question-id>",
	Short: "Record an answer; later runs use it as evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer, _ := cmd.Flags().GetString("answer")
		return updateQuestion(cmd, args[0], model.QuestionStatusAnswered, answer)
	},
}

var questionsSkipCmd = &cobra.Command{
	Use:   "skip <question-id>",
	Short: "Skip a question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateQuestion(cmd, args[0], model.QuestionStatusSkipped, "")
	},
}

func init() {
	questionsListCmd.Flags().String("job", "", "job id")
	_ = questionsListCmd.MarkFlagRequired("job")
	questionsListCmd.Flags().Bool("pending", false, "only show unanswered questions")

	questionsAnswerCmd.Flags().String("answer", "", "answer text")
	_ = questionsAnswerCmd.MarkFlagRequired("answer")

	questionsCmd.AddCommand(questionsListCmd)
	questionsCmd.AddCommand(questionsAnswerCmd)
	questionsCmd.AddCommand(questionsSkipCmd)
	rootCmd.AddCommand(questionsCmd)
}
