package connector

import (
	"context"
	"fmt"
	"strings"
)

// FamilySearch builds search URLs against the FamilySearch record index.
// Full API retrieval needs an OAuth token flow; until then the connector
// yields one live search URL per person so reviewers can follow it.
type FamilySearch struct {
	clientID     string
	clientSecret string
}

func (f *FamilySearch) Name() string { return "familysearch" }

func (f *FamilySearch) Search(_ context.Context, name string, birthYear int) ([]Result, error) {
	if f.clientID == "" || f.clientSecret == "" {
		return nil, nil
	}
	query := strings.ReplaceAll(name, " ", "+")
	year := ""
	if birthYear > 0 {
		year = fmt.Sprintf("%d", birthYear)
	}
	return []Result{{
		Source: f.Name(),
		Title:  fmt.Sprintf("FamilySearch candidate for %s", name),
		URL: fmt.Sprintf(
			"https://www.familysearch.org/search/record/results?q.anyDate.from=%s&q.givenName=%s",
			year, query,
		),
		Note: "Live search URL generated. Add OAuth token flow for direct API retrieval.",
	}}, nil
}
