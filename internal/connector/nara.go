package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

// NARA queries the National Archives catalog API.
type NARA struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

func (n *NARA) Name() string { return "nara" }

type naraPayload struct {
	Data []struct {
		Title       string `json:"title"`
		NaID        string `json:"naId"`
		Description struct {
			Title string `json:"title"`
			NaID  string `json:"naId"`
		} `json:"description"`
	} `json:"data"`
}

func (n *NARA) Search(ctx context.Context, name string, birthYear int) ([]Result, error) {
	if n.apiKey == "" {
		return nil, nil
	}
	q := name
	if birthYear > 0 {
		q = fmt.Sprintf("%s %q", name, fmt.Sprintf("%d", birthYear))
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("rows", "5")
	params.Set("resultTypes", "description")
	params.Set("api.key", n.apiKey)

	base := n.baseURL
	if base == "" {
		base = "https://catalog.archives.gov/api/v2"
	}
	res, err := n.http.get(ctx, base+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "connector: nara search %s", name)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, eris.Errorf("connector: nara search %s: status %d", name, res.StatusCode)
	}

	var payload naraPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, eris.Wrapf(err, "connector: nara decode %s", name)
	}

	items := payload.Data
	if len(items) > 5 {
		items = items[:5]
	}
	results := make([]Result, 0, len(items))
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = item.Description.Title
		}
		if title == "" {
			title = fmt.Sprintf("NARA record for %s", name)
		}
		naID := item.NaID
		if naID == "" {
			naID = item.Description.NaID
		}
		recordURL := "https://catalog.archives.gov/"
		if naID != "" {
			recordURL = "https://catalog.archives.gov/id/" + naID
		}
		results = append(results, Result{
			Source: n.Name(),
			Title:  title,
			URL:    recordURL,
			Note:   "Live NARA API result.",
		})
	}
	return results, nil
}
