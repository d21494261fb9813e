package research

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/store"
)

// Applier commits approved proposals to the tree: it links existing
// people as parents when a name matches closely enough, and mints new
// people otherwise.
type Applier struct {
	Store store.Store

	// SimilarityThreshold is the minimum normalized Levenshtein
	// similarity for reusing an existing person as the parent.
	SimilarityThreshold float64
}

// SkippedProposal records one proposal the apply pass refused, with the
// machine-readable reason and the human detail written to the audit log.
type SkippedProposal struct {
	ProposalID int64  `json:"proposal_id"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail"`
}

// ApplyResult summarizes one apply pass.
type ApplyResult struct {
	AppliedUpdates int               `json:"applied_updates"`
	Skipped        []SkippedProposal `json:"skipped"`
}

// Apply walks the session's approved proposals in id order and links or
// creates the proposed parents. JobID narrows the pass to one job.
// Every outcome, applied or skipped, lands in the audit log.
func (a *Applier) Apply(ctx context.Context, sessionID, jobID string) (*ApplyResult, error) {
	if _, err := a.Store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	proposals, err := a.Store.ListProposals(ctx, store.ProposalFilter{
		SessionID: sessionID,
		JobID:     jobID,
		Status:    model.ProposalStatusApproved,
		Limit:     1000,
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ID < proposals[j].ID })

	result := &ApplyResult{}
	for i := range proposals {
		if err := a.applyOne(ctx, sessionID, &proposals[i], result); err != nil {
			return nil, err
		}
	}

	zap.L().Info("apply pass finished",
		zap.String("session_id", sessionID),
		zap.Int("applied", result.AppliedUpdates),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (a *Applier) applyOne(ctx context.Context, sessionID string, p *model.ParentProposal, result *ApplyResult) error {
	candidate := strings.TrimSpace(p.CandidateName)
	if candidate == "" {
		return a.skip(ctx, p, result, model.SkipCandidateMissing, "Candidate name is empty.")
	}
	if len(p.EvidenceIDs) == 0 {
		return a.skip(ctx, p, result, model.SkipMissingCitations, "Proposal has no citations.")
	}

	child, err := a.Store.GetPersonByXref(ctx, sessionID, p.PersonXref)
	if err != nil {
		return err
	}
	if child == nil {
		return a.skip(ctx, p, result, model.SkipChildNotFound, "Child not found in session.")
	}

	if p.Relationship == model.RelationshipFather && child.FatherXref != "" {
		return a.skip(ctx, p, result, model.SkipFatherAlreadySet, "Father is already linked.")
	}
	if p.Relationship == model.RelationshipMother && child.MotherXref != "" {
		return a.skip(ctx, p, result, model.SkipMotherAlreadySet, "Mother is already linked.")
	}

	people, err := a.Store.ListPeople(ctx, sessionID)
	if err != nil {
		return err
	}

	expectedSex := "M"
	if p.Relationship == model.RelationshipMother {
		expectedSex = "F"
	}

	parent := a.matchParent(people, child.Xref, candidate, expectedSex)
	var createdXref string
	if parent == nil {
		created := &model.Person{
			SessionID:      sessionID,
			Xref:           nextXref(people),
			Name:           candidate,
			Sex:            expectedSex,
			IsLiving:       false,
			CanUseData:     true,
			CanLLMResearch: true,
		}
		if err := a.Store.InsertPerson(ctx, created); err != nil {
			return err
		}
		parent = created
		createdXref = created.Xref
	}

	fatherXref, motherXref := child.FatherXref, child.MotherXref
	if p.Relationship == model.RelationshipFather {
		fatherXref = parent.Xref
	} else {
		motherXref = parent.Xref
	}
	if err := a.Store.UpdatePersonParents(ctx, sessionID, child.Xref, fatherXref, motherXref); err != nil {
		return err
	}

	p.Status = model.ProposalStatusApplied
	if err := a.Store.UpdateProposal(ctx, p); err != nil {
		return err
	}

	if err := a.Store.InsertAuditEvent(ctx, &model.ApplyAuditEvent{
		JobID:             p.JobID,
		SessionID:         sessionID,
		ProposalID:        p.ID,
		ChildXref:         child.Xref,
		Relationship:      p.Relationship,
		Action:            "applied",
		Detail:            "Applied approved proposal.",
		CreatedPersonXref: createdXref,
	}); err != nil {
		return err
	}

	result.AppliedUpdates++
	return nil
}

func (a *Applier) skip(ctx context.Context, p *model.ParentProposal, result *ApplyResult, reason, detail string) error {
	result.Skipped = append(result.Skipped, SkippedProposal{
		ProposalID: p.ID,
		Reason:     reason,
		Detail:     detail,
	})
	return a.Store.InsertAuditEvent(ctx, &model.ApplyAuditEvent{
		JobID:        p.JobID,
		SessionID:    p.SessionID,
		ProposalID:   p.ID,
		ChildXref:    p.PersonXref,
		Relationship: p.Relationship,
		Action:       "skipped",
		Detail:       detail,
	})
}

// matchParent finds an existing person whose name matches the
// candidate. People with a conflicting recorded sex, and the child
// itself, are never matched.
func (a *Applier) matchParent(people []model.Person, childXref, candidate, expectedSex string) *model.Person {
	want := normName(candidate)
	for i := range people {
		person := &people[i]
		if person.Xref == childXref {
			continue
		}
		if person.Sex != "" && person.Sex != expectedSex {
			continue
		}
		have := normName(person.Name)
		if have == "" {
			continue
		}
		if have == want || levenshtein.Similarity(have, want, nil) >= a.SimilarityThreshold {
			return person
		}
	}
	return nil
}

var xrefPattern = regexp.MustCompile(`^@I(\d+)@$`)

// nextXref mints the next individual xref after the session's highest
// @I<n>@ value.
func nextXref(people []model.Person) string {
	max := 0
	for i := range people {
		m := xrefPattern.FindStringSubmatch(people[i].Xref)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("@I%d@", max+1)
}
