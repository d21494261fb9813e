package connector

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".ged": true, ".gedcom": true,
	".csv": true, ".json": true,
}

var supportedExtensions = map[string]bool{
	".txt": true, ".md": true, ".ged": true, ".gedcom": true,
	".csv": true, ".json": true,
	".jpg": true, ".jpeg": true, ".png": true, ".tiff": true,
	".bmp": true, ".webp": true, ".heic": true,
	".pdf": true,
}

const (
	localMaxResults = 6
	snippetMaxChars = 400
)

// LocalFolder scans a user-provided records folder for files whose name
// or directory path mentions the person. Matching is on the first two
// name tokens or the birth year; text files contribute a content snippet
// to the note.
type LocalFolder struct {
	folderPath string
}

func (l *LocalFolder) Name() string { return "local_folder" }

func (l *LocalFolder) Search(ctx context.Context, name string, birthYear int) ([]Result, error) {
	if l.folderPath == "" {
		return nil, nil
	}
	folder, err := filepath.Abs(l.folderPath)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: local folder %s", l.folderPath)
	}
	info, err := os.Stat(folder)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: local folder %s", folder)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("connector: local folder: path is not a folder: %s", folder)
	}

	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		tokens = append(tokens, tok)
	}
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	yearToken := ""
	if birthYear > 0 {
		yearToken = fmt.Sprintf("%d", birthYear)
	}

	var hits []Result
	walkErr := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not a match
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(hits) >= localMaxResults {
			return fs.SkipAll
		}
		if d.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		haystack := strings.ToLower(filepath.Base(path)) + " " + strings.ToLower(filepath.Dir(path))
		nameMatch := len(tokens) > 0
		for _, tok := range tokens {
			if !strings.Contains(haystack, tok) {
				nameMatch = false
				break
			}
		}
		yearMatch := yearToken != "" && strings.Contains(haystack, yearToken)
		if !nameMatch && !yearMatch {
			return nil
		}

		note := fmt.Sprintf("Local file match. Birth year hint: %s.", yearHint(birthYear))
		hits = append(hits, Result{
			Source: l.Name(),
			Title:  filepath.Base(path),
			URL:    fileURI(path),
			Note:   note + " Snippet: " + readSnippet(path),
		})
		return nil
	})
	if walkErr != nil {
		return nil, eris.Wrapf(walkErr, "connector: local folder scan %s", folder)
	}
	return hits, nil
}

func yearHint(birthYear int) string {
	if birthYear > 0 {
		return fmt.Sprintf("%d", birthYear)
	}
	return "unknown"
}

func readSnippet(path string) string {
	if !textExtensions[strings.ToLower(filepath.Ext(path))] {
		return "Binary or image file; text extraction skipped."
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "Unable to read file content."
	}
	compact := strings.Join(strings.Fields(string(data)), " ")
	if compact == "" {
		return "No readable text."
	}
	if len(compact) > snippetMaxChars {
		compact = compact[:snippetMaxChars]
	}
	return compact
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
