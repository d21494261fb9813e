package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepgen/deepgen/internal/model"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "Import and inspect tree sessions",
}

// treeUpload is the import file format: a flat person list keyed by
// xref, parent links referencing xrefs in the same file.
type treeUpload struct {
	People []treePerson `json:"people"`
}

type treePerson struct {
	Xref           string `json:"xref"`
	Name           string `json:"name"`
	Sex            string `json:"sex,omitempty"`
	BirthDate      string `json:"birth_date,omitempty"`
	DeathDate      string `json:"death_date,omitempty"`
	BirthYear      int    `json:"birth_year,omitempty"`
	IsLiving       bool   `json:"is_living"`
	CanUseData     bool   `json:"can_use_data"`
	CanLLMResearch bool   `json:"can_llm_research"`
	FatherXref     string `json:"father_xref,omitempty"`
	MotherXref     string `json:"mother_xref,omitempty"`
}

var peopleImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a tree upload into a new session",
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

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read upload %s", args[0])
		}
		var upload treeUpload
		if err := json.Unmarshal(data, &upload); err != nil {
			return eris.Wrapf(err, "parse upload %s", args[0])
		}
		if len(upload.People) == 0 {
			return eris.New("upload contains no people")
		}

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		session := &model.Session{ID: sessionID, Filename: args[0]}
		if err := st.CreateSession(ctx, session); err != nil {
			return err
		}

		people := make([]model.Person, 0, len(upload.People))
		for _, p := range upload.People {
			if p.Xref == "" {
				return eris.New("person without xref in upload")
			}
			people = append(people, model.Person{
				SessionID:      sessionID,
				Xref:           p.Xref,
				Name:           p.Name,
				Sex:            p.Sex,
				BirthDate:      p.BirthDate,
				DeathDate:      p.DeathDate,
				BirthYear:      resolveBirthYear(p.BirthYear, p.BirthDate),
				IsLiving:       p.IsLiving,
				CanUseData:     p.CanUseData,
				CanLLMResearch: p.CanLLMResearch,
				FatherXref:     p.FatherXref,
				MotherXref:     p.MotherXref,
			})
		}
		if err := st.InsertPeople(ctx, people); err != nil {
			return err
		}

		zap.L().Info("tree imported",
			zap.String("session_id", sessionID),
			zap.Int("people", len(people)),
		)
		fmt.Printf("Imported %d people into session %s\n", len(people), sessionID)
		return nil
	},
}

var yearInDate = regexp.MustCompile(`\d{4}`)

// resolveBirthYear falls back to the first 4-digit year in the birth
// date string when the upload carries no explicit year.
func resolveBirthYear(year int, birthDate string) int {
	if year > 0 {
		return year
	}
	m := yearInDate.FindString(birthDate)
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}

var peopleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the people in a session",
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
		people, err := st.ListPeople(ctx, sessionID)
		if err != nil {
			return eris.Wrap(err, "people list")
		}
		if len(people) == 0 {
			fmt.Fprintln(os.Stderr, "No people found.")
			return nil
		}

		formatPeopleList(os.Stdout, people)
		return nil
	},
}

func formatPeopleList(out io.Writer, people []model.Person) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "XREF\tNAME\tBIRTH\tLIVING\tFATHER\tMOTHER\tELIGIBLE")

	for _, p := range people {
		birth := ""
		if p.BirthYear > 0 {
			birth = strconv.Itoa(p.BirthYear)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%t\n",
			p.Xref, p.Name, birth, p.IsLiving, p.FatherXref, p.MotherXref, p.ResearchEligible())
	}
	_ = w.Flush()
}

func init() {
	peopleImportCmd.Flags().String("session", "", "session id to create (default: random)")

	peopleListCmd.Flags().String("session", "", "session id")
	_ = peopleListCmd.MarkFlagRequired("session")

	peopleCmd.AddCommand(peopleImportCmd)
	peopleCmd.AddCommand(peopleListCmd)
	rootCmd.AddCommand(peopleCmd)
}
