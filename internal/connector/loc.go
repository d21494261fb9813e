package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

// LOC queries the Library of Congress search endpoint. No key required;
// a key raises the rate limits when provided.
type LOC struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

func (l *LOC) Name() string { return "loc" }

type locPayload struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Date  string `json:"date"`
	} `json:"results"`
}

func (l *LOC) Search(ctx context.Context, name string, birthYear int) ([]Result, error) {
	query := name
	if birthYear > 0 {
		query = fmt.Sprintf("%s %d", name, birthYear)
	}
	params := url.Values{}
	params.Set("fo", "json")
	params.Set("q", query)
	if l.apiKey != "" {
		params.Set("api_key", l.apiKey)
	}

	base := l.baseURL
	if base == "" {
		base = "https://www.loc.gov/search/"
	}
	res, err := l.http.get(ctx, base+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "connector: loc search %s", name)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, eris.Errorf("connector: loc search %s: status %d", name, res.StatusCode)
	}

	var payload locPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, eris.Wrapf(err, "connector: loc decode %s", name)
	}

	items := payload.Results
	if len(items) > 5 {
		items = items[:5]
	}
	results := make([]Result, 0, len(items))
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = fmt.Sprintf("LOC record for %s", name)
		}
		itemURL := item.URL
		if itemURL == "" {
			itemURL = "https://www.loc.gov/"
		}
		note := "Live LOC API result."
		if item.Date != "" {
			note = fmt.Sprintf("Live LOC API result. Date: %s", item.Date)
		}
		results = append(results, Result{
			Source: l.Name(),
			Title:  title,
			URL:    itemURL,
			Note:   note,
		})
	}
	return results, nil
}
