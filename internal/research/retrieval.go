// Package research implements the genealogy pipeline: evidence
// retrieval, claim extraction, contradiction checks, proposal synthesis
// and the job orchestrator that drives them.
package research

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"github.com/deepgen/deepgen/internal/connector"
	"github.com/deepgen/deepgen/internal/model"
)

// Retriever fans a person's search out across connectors, retries
// transient connector failures, and merges the results into a single
// deduplicated evidence list.
type Retriever struct {
	Sources         []connector.Source
	MaxRetries      int
	MaxPerConnector int
	MaxTotal        int
	MaxParallel     int
}

// Run queries every connector for the person and returns the merged
// evidence. Connector failures never fail the whole retrieval; they are
// recorded in the result's error log.
func (r *Retriever) Run(ctx context.Context, person *model.Person) model.RetrievalResult {
	if len(r.Sources) == 0 {
		return model.RetrievalResult{}
	}

	maxParallel := r.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	// Indexed so the merge preserves configured connector order no
	// matter which goroutine finishes first.
	results := make([]model.SourceResult, len(r.Sources))
	sem := semaphore.NewWeighted(int64(maxParallel))

	g, gctx := errgroup.WithContext(ctx)
	limit := len(r.Sources)
	if maxParallel < limit {
		limit = maxParallel
	}
	g.SetLimit(limit)

	for i, src := range r.Sources {
		g.Go(func() error {
			results[i] = r.searchOne(gctx, sem, src, person)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	return r.merge(results)
}

// searchOne runs a single connector with retry. The semaphore bounds
// in-flight requests per attempt, not per connector.
func (r *Retriever) searchOne(ctx context.Context, sem *semaphore.Weighted, src connector.Source, person *model.Person) model.SourceResult {
	out := model.SourceResult{SourceName: src.Name()}

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s attempt %d: %v", src.Name(), attempt+1, err))
			return out
		}
		found, err := src.Search(ctx, person.Name, person.BirthYear)
		sem.Release(1)

		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s attempt %d: %v", src.Name(), attempt+1, err))
			if attempt < r.MaxRetries {
				out.RetriesUsed++
				continue
			}
			return out
		}

		if r.MaxPerConnector > 0 && len(found) > r.MaxPerConnector {
			found = found[:r.MaxPerConnector]
		}
		for _, f := range found {
			out.Items = append(out.Items, model.EvidenceItem{
				SourceName: f.Source,
				Title:      f.Title,
				URL:        f.URL,
				Note:       f.Note,
			})
		}
		return out
	}
	return out
}

// merge deduplicates by normalized URL and title hash, in connector
// order, capped at MaxTotal.
func (r *Retriever) merge(results []model.SourceResult) model.RetrievalResult {
	var merged model.RetrievalResult
	seen := make(map[[2]string]bool)

	for _, res := range results {
		merged.Errors = append(merged.Errors, res.Errors...)
		merged.RetriesUsed += res.RetriesUsed

		for _, item := range res.Items {
			item.NormalizedURL = NormalizeURL(item.URL)
			item.NormalizedTitleHash = TitleHash(item.Title)

			key := [2]string{item.NormalizedURL, item.NormalizedTitleHash}
			if seen[key] {
				continue
			}
			seen[key] = true

			merged.Items = append(merged.Items, item)
			if r.MaxTotal > 0 && len(merged.Items) >= r.MaxTotal {
				return merged
			}
		}
	}
	return merged
}

// NormalizeURL lowercases the scheme and host, strips the trailing
// slash from the path, and drops the query and fragment. Unparseable or
// empty URLs normalize to "".
func NormalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// TitleHash returns the sha1 of the NFC-normalized, lowercased,
// whitespace-collapsed title.
func TitleHash(title string) string {
	s := strings.ToLower(norm.NFC.String(title))
	s = strings.Join(strings.Fields(s), " ")

	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
