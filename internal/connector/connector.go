// Package connector implements the evidence sources a research job
// queries: hosted archive APIs and a local records folder. Connectors
// are pure lookups; retry and error accounting happen in the caller.
package connector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepgen/deepgen/internal/config"
)

// Result is one record returned by a source for a person query.
type Result struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Note   string `json:"note"`
}

// Source is a single evidence connector. Search returns records for a
// person name and optional birth year (0 = unknown). An error return is
// treated as retryable by the retrieval stage.
type Source interface {
	Name() string
	Search(ctx context.Context, name string, birthYear int) ([]Result, error)
}

// defaultRateLimiters returns the per-host limiters for the hosted
// archive APIs. The archives are shared public infrastructure; keep the
// rates polite.
func defaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"catalog.archives.gov": rate.NewLimiter(2, 2),
		"www.loc.gov":          rate.NewLimiter(2, 2),
	}
}

// httpClient wraps net/http with per-host rate limiting and a fixed
// per-call timeout.
type httpClient struct {
	client   *http.Client
	limiters map[string]*rate.Limiter
}

func newHTTPClient(timeout time.Duration) *httpClient {
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	return &httpClient{
		client:   &http.Client{Timeout: timeout},
		limiters: defaultRateLimiters(),
	}
}

func (h *httpClient) get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if lim, ok := h.limiters[u.Host]; ok {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return h.client.Do(req)
}

// Build constructs the connector set from configuration. FamilySearch
// and NARA require credentials; LOC is always on; the local folder
// connector needs both the enabled flag and a path.
func Build(cfg config.ConnectorsConfig, timeout time.Duration) []Source {
	client := newHTTPClient(timeout)

	var sources []Source
	if cfg.FamilySearch.ClientID != "" && cfg.FamilySearch.ClientSecret != "" {
		sources = append(sources, &FamilySearch{
			clientID:     cfg.FamilySearch.ClientID,
			clientSecret: cfg.FamilySearch.ClientSecret,
		})
	}
	if cfg.NARA.APIKey != "" {
		sources = append(sources, &NARA{apiKey: cfg.NARA.APIKey, http: client})
	}
	sources = append(sources, &LOC{apiKey: cfg.LOC.APIKey, http: client})
	if cfg.Local.Enabled && cfg.Local.FolderPath != "" {
		sources = append(sources, &LocalFolder{folderPath: cfg.Local.FolderPath})
	}

	zap.L().Debug("connector: built sources", zap.Int("count", len(sources)))
	return sources
}

// Filter applies per-job overrides (name -> enabled) to a built set.
// Sources absent from the map keep their default state.
func Filter(sources []Source, overrides map[string]bool) []Source {
	if len(overrides) == 0 {
		return sources
	}
	filtered := make([]Source, 0, len(sources))
	for _, s := range sources {
		if enabled, ok := overrides[s.Name()]; ok && !enabled {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}
