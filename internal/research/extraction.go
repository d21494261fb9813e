package research

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/deepgen/deepgen/internal/llm"
	"github.com/deepgen/deepgen/internal/model"
)

// ExtractionOutcome is the result of one person's claim extraction:
// the parsed claims plus the parse health used for job accounting.
type ExtractionOutcome struct {
	Claims      []model.CandidateClaim
	ParseValid  bool
	RawOutput   string
	Errors      []string
	RetriesUsed int
	RepairsUsed int
}

// Extractor turns evidence into structured parent claims via the LLM.
// A failed primary parse gets exactly one repair round-trip.
type Extractor struct {
	Client          llm.Client
	TemplateVersion string
}

// Run extracts candidate-parent claims for the person from the listed
// evidence. With no usable LLM client it degrades to zero claims
// without failing the pipeline.
func (e *Extractor) Run(ctx context.Context, person *model.Person, evidence []model.EvidenceItem) ExtractionOutcome {
	if e.Client == nil {
		return ExtractionOutcome{
			ParseValid: true,
			Errors:     []string{"LLM backend disabled or missing credentials"},
		}
	}

	validIDs := make(map[int64]bool, len(evidence))
	for _, item := range evidence {
		validIDs[item.ID] = true
	}

	raw, err := e.Client.Generate(ctx, e.buildPrompt(person, evidence))
	if err != nil {
		return ExtractionOutcome{
			ParseValid: false,
			Errors:     []string{fmt.Sprintf("LLM request failed: %v", err)},
		}
	}

	out := ExtractionOutcome{ParseValid: true, RawOutput: raw}

	claims, parseErr := parseClaims(raw, validIDs)
	if parseErr != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("Primary parse failed: %v", parseErr))
		out.RetriesUsed++
		out.RepairsUsed++

		repaired, repairErr := e.Client.Generate(ctx, repairPrompt(raw))
		if repairErr == nil {
			claims, parseErr = parseClaims(repaired, validIDs)
			if parseErr == nil {
				out.RawOutput = repaired
			}
		} else {
			parseErr = repairErr
		}
		if parseErr != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("Repair parse failed: %v", parseErr))
			out.ParseValid = false
			return out
		}
	}

	for i := range claims {
		claims[i].ParseValid = true
	}
	out.Claims = claims
	return out
}

func (e *Extractor) buildPrompt(person *model.Person, evidence []model.EvidenceItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template version: %s.\n", e.TemplateVersion)
	b.WriteString("You are a genealogy claims extractor.\n")
	b.WriteString("Return JSON only. Do not include markdown.\n")
	b.WriteString(`Output schema: {"claims": [{"relationship": "father|mother", "candidate_name": string|null, "confidence": number 0..1, "rationale": string, "evidence_ids": [int]}]}` + "\n")
	b.WriteString("Rules:\n")
	b.WriteString("1) candidate_name must be null when evidence is weak.\n")
	b.WriteString("2) evidence_ids must use only listed evidence ids.\n")
	b.WriteString("3) keep claims conservative; avoid fabrication.\n")
	fmt.Fprintf(&b, "Person name: %s\n", person.Name)
	fmt.Fprintf(&b, "Person xref: %s\n", person.Xref)
	fmt.Fprintf(&b, "Birth date: %s\n", orUnknown(person.BirthDate))
	birthYear := "unknown"
	if person.BirthYear > 0 {
		birthYear = fmt.Sprintf("%d", person.BirthYear)
	}
	fmt.Fprintf(&b, "Birth year: %s\n", birthYear)
	b.WriteString("Evidence:\n")
	for _, item := range evidence {
		fmt.Fprintf(&b, "- id=%d source=%s title=%s url=%s note=%s\n",
			item.ID, item.SourceName, item.Title, item.URL, item.Note)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func repairPrompt(raw string) string {
	return "Convert the following text into valid JSON matching this schema exactly:\n" +
		`{"claims":[{"relationship":"father|mother","candidate_name":null,"confidence":0.0,"rationale":"","evidence_ids":[]}]}` +
		"\nText:\n" + raw
}

// parseClaims tolerates the shapes older prompt versions produced: a
// bare claim list, and a father/mother section object.
func parseClaims(raw string, validIDs map[int64]bool) ([]model.CandidateClaim, error) {
	blob, err := extractJSONBlob(raw)
	if err != nil {
		return nil, err
	}

	switch v := blob.(type) {
	case []any:
		return claimsFromList(v, validIDs)
	case map[string]any:
		if list, ok := v["claims"].([]any); ok {
			return claimsFromList(list, validIDs)
		}
		return claimsFromSections(v, validIDs)
	default:
		return nil, fmt.Errorf("unsupported JSON shape %T", blob)
	}
}

// extractJSONBlob parses the whole payload, falling back to the widest
// {...} or [...] span for output wrapped in prose or markdown fences.
func extractJSONBlob(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}

	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	return v, nil
}

func claimsFromList(list []any, validIDs map[int64]bool) ([]model.CandidateClaim, error) {
	var claims []model.CandidateClaim
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("claim entry is not an object")
		}
		rel, _ := m["relationship"].(string)
		if rel != string(model.RelationshipFather) && rel != string(model.RelationshipMother) {
			return nil, fmt.Errorf("invalid relationship %q", rel)
		}
		c, err := buildClaim(model.Relationship(rel),
			m["candidate_name"], m["confidence"], m["rationale"], m["evidence_ids"], validIDs)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, nil
}

// claimsFromSections handles the v1 shape:
// {"father": {"name": ..., "confidence": ..., "reason": ..., "evidence_ids": [...]}, "mother": {...}}
func claimsFromSections(m map[string]any, validIDs map[int64]bool) ([]model.CandidateClaim, error) {
	var claims []model.CandidateClaim
	for _, rel := range model.Relationships {
		section, ok := m[string(rel)].(map[string]any)
		if !ok {
			continue
		}
		c, err := buildClaim(rel,
			section["name"], section["confidence"], section["reason"], section["evidence_ids"], validIDs)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, nil
}

func buildClaim(rel model.Relationship, name, confidence, rationale, evidenceIDs any, validIDs map[int64]bool) (model.CandidateClaim, error) {
	c := model.CandidateClaim{Relationship: rel}

	if s, ok := name.(string); ok {
		c.CandidateName = strings.TrimSpace(s)
	}
	switch f := confidence.(type) {
	case nil:
	case float64:
		if f < 0 || f > 1 {
			return c, fmt.Errorf("confidence %v outside [0, 1]", f)
		}
		c.Confidence = round3(f)
	default:
		return c, fmt.Errorf("confidence %v is not a number", confidence)
	}
	if s, ok := rationale.(string); ok {
		c.Rationale = strings.TrimSpace(s)
	}
	if list, ok := evidenceIDs.([]any); ok {
		for _, raw := range list {
			f, ok := raw.(float64)
			if !ok {
				continue
			}
			id := int64(f)
			if validIDs[id] {
				c.EvidenceIDs = append(c.EvidenceIDs, id)
			}
		}
	}
	return c, nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
