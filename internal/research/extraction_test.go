package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgen/deepgen/internal/model"
)

// fakeLLM replays canned responses (or errors) in call order.
type fakeLLM struct {
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no canned response")
}

func extractionEvidence() []model.EvidenceItem {
	return []model.EvidenceItem{
		{ID: 1, SourceName: "loc", Title: "Census 1910", URL: "https://example.org/1"},
		{ID: 2, SourceName: "nara", Title: "Draft card", URL: "https://example.org/2"},
	}
}

func TestExtractor_NilClient(t *testing.T) {
	e := &Extractor{TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.True(t, out.ParseValid)
	assert.Empty(t, out.Claims)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "LLM backend disabled or missing credentials", out.Errors[0])
}

func TestExtractor_TransportError(t *testing.T) {
	client := &fakeLLM{errs: []error{errors.New("timeout")}}
	e := &Extractor{Client: client, TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.False(t, out.ParseValid)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "LLM request failed: timeout")
}

func TestExtractor_ValidClaims(t *testing.T) {
	client := &fakeLLM{responses: []string{
		`{"claims": [
			{"relationship": "father", "candidate_name": " William Thornton ", "confidence": 0.87654, "rationale": "Census 1910 household", "evidence_ids": [1, 99]},
			{"relationship": "mother", "candidate_name": "Mary Thornton", "confidence": 0.7, "rationale": "Same household", "evidence_ids": [2]}
		]}`,
	}}
	e := &Extractor{Client: client, TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.True(t, out.ParseValid)
	assert.Empty(t, out.Errors)
	require.Len(t, out.Claims, 2)

	father := out.Claims[0]
	assert.Equal(t, model.RelationshipFather, father.Relationship)
	assert.Equal(t, "William Thornton", father.CandidateName)
	assert.Equal(t, 0.877, father.Confidence)
	assert.Equal(t, []int64{1}, father.EvidenceIDs, "unknown evidence ids are dropped")
	assert.True(t, father.ParseValid)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Template version: v2.")
	assert.Contains(t, client.prompts[0], "Person xref: @I1@")
	assert.Contains(t, client.prompts[0], "Birth year: 1902")
	assert.Contains(t, client.prompts[0], "- id=1 source=loc")
}

func TestExtractor_FencedOutput(t *testing.T) {
	client := &fakeLLM{responses: []string{
		"Here you go:\n```json\n{\"claims\": [{\"relationship\": \"father\", \"candidate_name\": \"W\", \"confidence\": 0.5, \"rationale\": \"r\", \"evidence_ids\": [1]}]}\n```",
	}}
	e := &Extractor{Client: client, TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.True(t, out.ParseValid)
	require.Len(t, out.Claims, 1)
	assert.Equal(t, "W", out.Claims[0].CandidateName)
}

func TestExtractor_RepairSucceeds(t *testing.T) {
	client := &fakeLLM{responses: []string{
		"I could not find structured data, sorry.",
		`{"claims": [{"relationship": "mother", "candidate_name": "Mary", "confidence": 0.6, "rationale": "r", "evidence_ids": [2]}]}`,
	}}
	e := &Extractor{Client: client, TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.True(t, out.ParseValid)
	require.Len(t, out.Claims, 1)
	assert.Equal(t, 1, out.RetriesUsed)
	assert.Equal(t, 1, out.RepairsUsed)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "Primary parse failed")
	assert.Contains(t, out.RawOutput, `"Mary"`)

	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], "Convert the following text into valid JSON")
}

func TestExtractor_RepairFails(t *testing.T) {
	client := &fakeLLM{responses: []string{"still not json", "nope"}}
	e := &Extractor{Client: client, TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.False(t, out.ParseValid)
	assert.Empty(t, out.Claims)
	require.Len(t, out.Errors, 2)
	assert.Contains(t, out.Errors[1], "Repair parse failed")
	assert.Equal(t, "still not json", out.RawOutput)
}

func TestExtractor_OutOfRangeConfidenceTriggersRepair(t *testing.T) {
	client := &fakeLLM{responses: []string{
		`{"claims": [{"relationship": "father", "candidate_name": "W", "confidence": 7.5, "rationale": "r", "evidence_ids": [1]}]}`,
		`{"claims": [{"relationship": "father", "candidate_name": "W", "confidence": 0.75, "rationale": "r", "evidence_ids": [1]}]}`,
	}}
	e := &Extractor{Client: client, TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.True(t, out.ParseValid)
	assert.Equal(t, 1, out.RepairsUsed)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "outside [0, 1]")
	require.Len(t, out.Claims, 1)
	assert.Equal(t, 0.75, out.Claims[0].Confidence)
	assert.Len(t, client.prompts, 2)
}

func TestExtractor_UnknownRelationshipTriggersRepair(t *testing.T) {
	client := &fakeLLM{responses: []string{
		`{"claims": [{"relationship": "uncle", "candidate_name": "x", "confidence": 0.9, "rationale": "", "evidence_ids": []}]}`,
		`{"claims": [{"relationship": "uncle", "candidate_name": "x", "confidence": 0.9, "rationale": "", "evidence_ids": []}]}`,
	}}
	e := &Extractor{Client: client, TemplateVersion: "v2"}
	out := e.Run(context.Background(), testPerson(), extractionEvidence())

	assert.False(t, out.ParseValid)
	assert.Empty(t, out.Claims)
	require.Len(t, out.Errors, 2)
	assert.Contains(t, out.Errors[0], `invalid relationship "uncle"`)
	assert.Len(t, client.prompts, 2)
}

func TestParseClaims_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name:    "negative confidence",
			raw:     `{"claims": [{"relationship": "father", "candidate_name": "W", "confidence": -0.1, "rationale": "", "evidence_ids": []}]}`,
			wantErr: "outside [0, 1]",
		},
		{
			name:    "non-numeric confidence",
			raw:     `{"claims": [{"relationship": "father", "candidate_name": "W", "confidence": "high", "rationale": "", "evidence_ids": []}]}`,
			wantErr: "not a number",
		},
		{
			name:    "unknown relationship",
			raw:     `{"claims": [{"relationship": "sibling", "candidate_name": "x", "confidence": 0.5, "rationale": "", "evidence_ids": []}]}`,
			wantErr: `invalid relationship "sibling"`,
		},
		{
			name:    "non-object entry",
			raw:     `{"claims": ["father"]}`,
			wantErr: "not an object",
		},
		{
			name:    "out-of-range confidence in legacy sections",
			raw:     `{"father": {"name": "W", "confidence": 1.2, "reason": "", "evidence_ids": []}}`,
			wantErr: "outside [0, 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseClaims(tt.raw, map[int64]bool{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseClaims_LegacySections(t *testing.T) {
	validIDs := map[int64]bool{1: true, 2: true}
	claims, err := parseClaims(
		`{"father": {"name": "William", "confidence": 0.8, "reason": "census", "evidence_ids": [1]},
		  "mother": {"name": "Mary", "confidence": 0.6, "reason": "census", "evidence_ids": [2]}}`,
		validIDs,
	)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, model.RelationshipFather, claims[0].Relationship)
	assert.Equal(t, "William", claims[0].CandidateName)
	assert.Equal(t, "census", claims[0].Rationale)
	assert.Equal(t, model.RelationshipMother, claims[1].Relationship)
}

func TestParseClaims_BareList(t *testing.T) {
	claims, err := parseClaims(
		`[{"relationship": "father", "candidate_name": "W", "confidence": 0.5, "rationale": "r", "evidence_ids": []}]`,
		map[int64]bool{},
	)
	require.NoError(t, err)
	require.Len(t, claims, 1)
}

func TestExtractJSONBlob_Errors(t *testing.T) {
	_, err := extractJSONBlob("   ")
	assert.EqualError(t, err, "empty response")

	_, err = extractJSONBlob("no structure here")
	assert.EqualError(t, err, "no JSON object found")

	_, err = extractJSONBlob("prefix {not json} suffix")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}
