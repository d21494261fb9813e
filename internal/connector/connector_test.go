package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgen/deepgen/internal/config"
)

func TestBuildRequiresCredentials(t *testing.T) {
	sources := Build(config.ConnectorsConfig{}, time.Second)

	// Only LOC is credential-free
	require.Len(t, sources, 1)
	assert.Equal(t, "loc", sources[0].Name())
}

func TestBuildAllConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := config.ConnectorsConfig{
		FamilySearch: config.FamilySearchConfig{ClientID: "id", ClientSecret: "secret"},
		NARA:         config.NARAConfig{APIKey: "key"},
		Local:        config.LocalConfig{Enabled: true, FolderPath: dir},
	}

	sources := Build(cfg, time.Second)
	require.Len(t, sources, 4)

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"familysearch", "nara", "loc", "local_folder"}, names)
}

func TestBuildLocalDisabledWithoutFlag(t *testing.T) {
	cfg := config.ConnectorsConfig{
		Local: config.LocalConfig{Enabled: false, FolderPath: t.TempDir()},
	}
	sources := Build(cfg, time.Second)
	require.Len(t, sources, 1)
	assert.Equal(t, "loc", sources[0].Name())
}

func TestFilter(t *testing.T) {
	sources := []Source{
		&FamilySearch{clientID: "id", clientSecret: "secret"},
		&LOC{},
	}

	filtered := Filter(sources, map[string]bool{"loc": false})
	require.Len(t, filtered, 1)
	assert.Equal(t, "familysearch", filtered[0].Name())

	// Names absent from the overrides keep their default state
	filtered = Filter(sources, map[string]bool{"familysearch": true})
	assert.Len(t, filtered, 2)

	assert.Len(t, Filter(sources, nil), 2)
}

func TestFamilySearchBuildsSearchURL(t *testing.T) {
	fs := &FamilySearch{clientID: "id", clientSecret: "secret"}

	results, err := fs.Search(context.Background(), "Mary Ann Sellers", 1872)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "familysearch", results[0].Source)
	assert.Contains(t, results[0].URL, "q.anyDate.from=1872")
	assert.Contains(t, results[0].URL, "q.givenName=Mary+Ann+Sellers")
}

func TestNARASearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api.key"))
		assert.Contains(t, r.URL.Query().Get("q"), "John Sellers")
		w.Write([]byte(`{"data": [
			{"title": "1900 Census, Knox County", "naId": "12345"},
			{"description": {"title": "Muster roll", "naId": "67890"}}
		]}`))
	}))
	defer srv.Close()

	n := &NARA{apiKey: "key", baseURL: srv.URL, http: newHTTPClient(time.Second)}
	results, err := n.Search(context.Background(), "John Sellers", 1850)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "1900 Census, Knox County", results[0].Title)
	assert.Equal(t, "https://catalog.archives.gov/id/12345", results[0].URL)
	// Nested description shape
	assert.Equal(t, "Muster roll", results[1].Title)
	assert.Equal(t, "https://catalog.archives.gov/id/67890", results[1].URL)
}

func TestNARASearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &NARA{apiKey: "key", baseURL: srv.URL, http: newHTTPClient(time.Second)}
	_, err := n.Search(context.Background(), "John Sellers", 0)
	assert.Error(t, err)
}

func TestNARASearchNoKey(t *testing.T) {
	n := &NARA{}
	results, err := n.Search(context.Background(), "John Sellers", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLOCSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("fo"))
		assert.Equal(t, "Jane Doe 1881", r.URL.Query().Get("q"))
		w.Write([]byte(`{"results": [
			{"title": "Doe family papers", "url": "https://www.loc.gov/item/1", "date": "1881"},
			{"title": "", "url": ""}
		]}`))
	}))
	defer srv.Close()

	l := &LOC{baseURL: srv.URL, http: newHTTPClient(time.Second)}
	results, err := l.Search(context.Background(), "Jane Doe", 1881)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Doe family papers", results[0].Title)
	assert.Equal(t, "Live LOC API result. Date: 1881", results[0].Note)
	// Blank fields fall back
	assert.Equal(t, "LOC record for Jane Doe", results[1].Title)
	assert.Equal(t, "https://www.loc.gov/", results[1].URL)
}

func TestLOCSearchCapsAtFive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [
			{"title": "a"}, {"title": "b"}, {"title": "c"},
			{"title": "d"}, {"title": "e"}, {"title": "f"}, {"title": "g"}
		]}`))
	}))
	defer srv.Close()

	l := &LOC{baseURL: srv.URL, http: newHTTPClient(time.Second)}
	results, err := l.Search(context.Background(), "Jane Doe", 0)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestLocalFolderSearch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "john_sellers_will.txt"), []byte("Last will and testament of John Sellers, 1850."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "census_1850.csv"), []byte("name,age"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("nothing here"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo_john_sellers.jpg"), []byte{0xff, 0xd8}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.exe"), []byte("binary"), 0644))

	l := &LocalFolder{folderPath: dir}
	results, err := l.Search(context.Background(), "John Sellers", 1850)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byTitle := map[string]Result{}
	for _, r := range results {
		byTitle[r.Title] = r
	}
	// Name tokens in file name
	will := byTitle["john_sellers_will.txt"]
	assert.Contains(t, will.Note, "Birth year hint: 1850")
	assert.Contains(t, will.Note, "Snippet: Last will and testament")
	// Year-only match
	assert.Contains(t, byTitle, "census_1850.csv")
	// Image files match on name but skip text extraction
	photo := byTitle["photo_john_sellers.jpg"]
	assert.Contains(t, photo.Note, "text extraction skipped")
}

func TestLocalFolderSearchMissingFolder(t *testing.T) {
	l := &LocalFolder{folderPath: filepath.Join(t.TempDir(), "absent")}
	_, err := l.Search(context.Background(), "John Sellers", 0)
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connectors.yaml")
	yaml := `
connectors:
  loc: false
  familysearch: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	overrides, err := LoadOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"loc": false, "familysearch": true}, overrides)
}

func TestLoadOverridesMissingFile(t *testing.T) {
	_, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
