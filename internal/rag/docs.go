package rag

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source describes one document of the knowledge corpus.
type Source struct {
	ID    string
	Title string
	Path  string
}

// corpusExtensions are the file types loaded from the docs directory.
var corpusExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// DiscoverSources lists the corpus documents under dir, sorted by id so
// chunk numbering is stable across runs. The document id is the file name
// without extension; the title is the id with separators spaced out.
func DiscoverSources(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading docs directory: %w", err)
	}

	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !corpusExtensions[ext] {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		sources = append(sources, Source{
			ID:    id,
			Title: titleFromID(id),
			Path:  filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources, nil
}

func titleFromID(id string) string {
	return strings.NewReplacer("-", " ", "_", " ").Replace(id)
}

// LoadChunks reads every source and splits it. Unreadable files are
// logged and skipped so a single bad document never blocks indexing.
func LoadChunks(sources []Source, splitter *Splitter, logger *slog.Logger) []Chunk {
	var chunks []Chunk
	for _, src := range sources {
		content, err := os.ReadFile(src.Path)
		if err != nil {
			logger.Warn("loading knowledge document", "doc_id", src.ID, "error", err)
			continue
		}
		chunks = append(chunks, splitter.SplitDoc(src.ID, src.Title, string(content))...)
	}
	return chunks
}
