package research

import (
	"sort"
	"strings"

	"github.com/deepgen/deepgen/internal/model"
)

// Scoring weights for candidate synthesis. Confidence agreement
// dominates; support, source diversity and evidence specificity refine.
const (
	weightConfidence  = 0.45
	weightSupport     = 0.25
	weightDiversity   = 0.20
	weightSpecificity = 0.10

	penaltyRelationshipFlags = 0.25
	penaltySameParentName    = 0.20
)

// Synthesizer reduces a person's claims to one draft proposal per
// parent slot.
type Synthesizer struct {
	MinimumScore float64
}

// Synthesize scores candidate groups and emits a father and a mother
// draft for the person. Candidates without citations, and candidates
// scoring under MinimumScore, come back with a nil name so the gap
// shows up in review instead of silently disappearing.
func (s *Synthesizer) Synthesize(person *model.Person, claims []model.CandidateClaim, evidence []model.EvidenceItem, v Verification) []model.ParentProposal {
	sourceByID := make(map[int64]string, len(evidence))
	for _, item := range evidence {
		sourceByID[item.ID] = item.SourceName
	}

	var proposals []model.ParentProposal
	for _, rel := range model.Relationships {
		proposals = append(proposals, s.synthesizeSlot(person, rel, claims, sourceByID, v))
	}
	return proposals
}

// candidateGroup collects the claims agreeing on one normalized name.
type candidateGroup struct {
	displayName string
	claims      []model.CandidateClaim
}

func (s *Synthesizer) synthesizeSlot(person *model.Person, rel model.Relationship, claims []model.CandidateClaim, sourceByID map[int64]string, v Verification) model.ParentProposal {
	draft := model.ParentProposal{
		PersonXref:   person.Xref,
		Relationship: rel,
		Status:       model.ProposalStatusPendingReview,
	}

	// Group claims by normalized candidate name, preserving first-seen
	// order so score ties resolve deterministically.
	groups := make(map[string]*candidateGroup)
	var order []string
	for _, c := range claims {
		if c.Relationship != rel {
			continue
		}
		nameNorm := normName(c.CandidateName)
		if nameNorm == "" {
			continue
		}
		g, ok := groups[nameNorm]
		if !ok {
			g = &candidateGroup{displayName: strings.TrimSpace(c.CandidateName)}
			groups[nameNorm] = g
			order = append(order, nameNorm)
		}
		g.claims = append(g.claims, c)
	}

	if len(order) == 0 {
		draft.Notes = "Insufficient evidence for a candidate parent."
		return draft
	}

	var best *candidateGroup
	var bestComponents model.ScoreComponents
	var bestEvidence []int64
	for _, key := range order {
		g := groups[key]
		components, evidenceIDs := s.score(g, rel, v, sourceByID)
		if best == nil || components.FinalScore > bestComponents.FinalScore {
			best = g
			bestComponents = components
			bestEvidence = evidenceIDs
		}
	}

	// A citation-free winner gets the same zeroed draft as a slot with
	// no candidates at all.
	if best.displayName == "" || len(bestEvidence) == 0 {
		draft.Notes = "Insufficient evidence: no valid citations for proposal."
		return draft
	}

	draft.ContradictionFlags = v.FlagsFor(rel)
	draft.EvidenceIDs = bestEvidence
	draft.ScoreComponents = bestComponents
	draft.Confidence = bestComponents.FinalScore

	if bestComponents.FinalScore < s.MinimumScore {
		draft.Notes = "Insufficient evidence quality threshold."
		return draft
	}
	draft.CandidateName = best.displayName
	draft.Notes = "Candidate synthesized from evidence and claim agreement."
	return draft
}

func (s *Synthesizer) score(g *candidateGroup, rel model.Relationship, v Verification, sourceByID map[int64]string) (model.ScoreComponents, []int64) {
	support := len(g.claims)

	var confSum float64
	sources := make(map[string]bool)
	evidenceSet := make(map[int64]bool)
	withEvidence := 0
	for _, c := range g.claims {
		confSum += c.Confidence
		if len(c.EvidenceIDs) > 0 {
			withEvidence++
		}
		for _, id := range c.EvidenceIDs {
			evidenceSet[id] = true
			if src := sourceByID[id]; src != "" {
				sources[src] = true
			}
		}
	}

	avgConfidence := confSum / float64(support)
	supportScore := float64(support) / 3
	if supportScore > 1 {
		supportScore = 1
	}
	diversity := float64(len(sources)) / 3
	if diversity > 1 {
		diversity = 1
	}
	specificity := float64(withEvidence) / float64(support)

	var penalty float64
	if len(v.ByRelationship[rel]) > 0 {
		penalty += penaltyRelationshipFlags
	}
	for _, flag := range v.Global {
		if flag == model.FlagSameParentNameForBoth {
			penalty += penaltySameParentName
		}
	}

	final := weightConfidence*avgConfidence +
		weightSupport*supportScore +
		weightDiversity*diversity +
		weightSpecificity*specificity -
		penalty
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}

	evidenceIDs := make([]int64, 0, len(evidenceSet))
	for id := range evidenceSet {
		evidenceIDs = append(evidenceIDs, id)
	}
	sort.Slice(evidenceIDs, func(i, j int) bool { return evidenceIDs[i] < evidenceIDs[j] })

	return model.ScoreComponents{
		AvgConfidence:        round3(avgConfidence),
		SupportCount:         support,
		SourceDiversity:      round3(diversity),
		EvidenceSpecificity:  round3(specificity),
		ContradictionPenalty: round3(penalty),
		FinalScore:           round3(final),
	}, evidenceIDs
}
