package research

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/deepgen/deepgen/internal/model"
)

// Verification holds the contradiction flags raised for one person:
// per parent slot, plus flags that apply to the whole claim set.
type Verification struct {
	ByRelationship map[model.Relationship][]string
	Global         []string
}

// FlagsFor returns the sorted, deduplicated union of the slot's flags
// and the global flags.
func (v Verification) FlagsFor(rel model.Relationship) []string {
	return sortedUnique(append(append([]string{}, v.ByRelationship[rel]...), v.Global...))
}

// Verify runs the rule-based contradiction checks over a person's
// extracted claims.
func Verify(person *model.Person, claims []model.CandidateClaim) Verification {
	v := Verification{ByRelationship: make(map[model.Relationship][]string)}
	personNorm := normName(person.Name)

	for _, c := range claims {
		nameNorm := normName(c.CandidateName)
		if nameNorm != "" && nameNorm == personNorm {
			v.ByRelationship[c.Relationship] = append(v.ByRelationship[c.Relationship], model.FlagSelfParentConflict)
		}
		if person.BirthYear > 0 {
			// A parent born fewer than 12 years before the child is
			// not a plausible parent.
			if year := rationaleYear(c.Rationale); year > 0 && year > person.BirthYear-12 {
				v.ByRelationship[c.Relationship] = append(v.ByRelationship[c.Relationship], model.FlagChronologyConflict)
			}
		}
	}

	topNames := make(map[model.Relationship]string)
	for _, rel := range model.Relationships {
		highConf := make(map[string]bool)
		bestConf := -1.0

		for _, c := range claims {
			if c.Relationship != rel {
				continue
			}
			nameNorm := normName(c.CandidateName)
			if nameNorm == "" {
				continue
			}
			if c.Confidence >= 0.65 {
				highConf[nameNorm] = true
			}
			if c.Confidence > bestConf {
				bestConf = c.Confidence
				topNames[rel] = nameNorm
			}
		}

		if len(highConf) > 1 {
			v.ByRelationship[rel] = append(v.ByRelationship[rel], model.FlagMultipleHighConfidence)
		}
	}

	father, mother := topNames[model.RelationshipFather], topNames[model.RelationshipMother]
	if father != "" && father == mother {
		v.Global = append(v.Global, model.FlagSameParentNameForBoth)
	}

	for rel, flags := range v.ByRelationship {
		v.ByRelationship[rel] = sortedUnique(flags)
	}
	v.Global = sortedUnique(v.Global)
	return v
}

func normName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// rationaleYear pulls the last 4-digit year out of free text. Years
// outside 1500..2100 are treated as noise.
func rationaleYear(text string) int {
	matches := yearPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0
	}
	year, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil || year < 1500 || year > 2100 {
		return 0
	}
	return year
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
