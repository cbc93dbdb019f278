// Package rag implements the knowledge pipeline: recursive text
// splitting, idempotent vector indexing, and similarity retrieval.
package rag

import (
	"errors"
	"fmt"
	"strings"
)

// Chunk is a bounded fragment of a source document used as a retrieval
// unit. ChunkIndex is the fragment's 0-based position within its document
// and is stable across re-indexing runs of unchanged input.
type Chunk struct {
	ID         string
	DocID      string
	Title      string
	ChunkIndex int
	Text       string
}

// DefaultSeparators is the separator priority list: paragraph break,
// line break, sentence-ending punctuation, clause punctuation, space, and
// the empty string as the forced-split last resort.
var DefaultSeparators = []string{"\n\n", "\n", "。", "、", " ", ""}

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the number of runes carried over between
	// adjacent chunks.
	DefaultChunkOverlap = 50
)

// Splitter splits raw text into overlapping fragments using a
// prioritized-separator recursive algorithm. Lengths are measured in
// runes so multi-byte separators behave.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter validates the size/overlap pair and builds a Splitter with
// the default separator list.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, errors.New("chunk overlap must satisfy 0 <= overlap < size")
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Split returns the ordered chunk texts for the given input. Whitespace-
// only input yields nil.
func (s *Splitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	pieces := s.split(trimmed, s.separators)
	return s.merge(pieces)
}

// SplitDoc runs Split and numbers the fragments into Chunks for the given
// document. Chunk ids are derived as "<docID>-<index>".
func (s *Splitter) SplitDoc(docID, title, text string) []Chunk {
	texts := s.Split(text)
	chunks := make([]Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocID:      docID,
			Title:      title,
			ChunkIndex: i,
			Text:       t,
		})
	}
	return chunks
}

// split recursively decomposes text into pieces no longer than chunkSize,
// using the first separator present and recursing into lower-priority
// separators for oversized parts. Separators stay attached to the piece
// they terminate, so concatenating the pieces reproduces the input.
func (s *Splitter) split(text string, separators []string) []string {
	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		return s.forceSplit(text)
	}

	parts := splitKeepSeparator(text, sep)
	var pieces []string
	for _, part := range parts {
		if runeLen(part) < s.chunkSize {
			pieces = append(pieces, part)
			continue
		}
		pieces = append(pieces, s.split(part, rest)...)
	}
	return pieces
}

// pickSeparator returns the first separator present in the text and the
// remaining lower-priority list. The empty-string entry always matches.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// splitKeepSeparator splits on sep, re-appending sep to every piece except
// the last so reconstruction is lossless.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// forceSplit cuts text on raw rune offsets, advancing by
// chunkSize - chunkOverlap. Used when no separators remain.
func (s *Splitter) forceSplit(text string) []string {
	runes := []rune(text)
	stride := s.chunkSize - s.chunkOverlap
	var pieces []string
	for start := 0; start < len(runes); start += stride {
		end := start + stride
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// merge greedily packs pieces left-to-right into chunks up to chunkSize.
// When the next piece would overflow, the current chunk is closed and the
// new one is seeded with a piece-aligned suffix of at most chunkOverlap
// runes of the closed chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, piece := range pieces {
		pieceLen := runeLen(piece)
		if total+pieceLen > s.chunkSize && total > 0 {
			chunks = append(chunks, strings.Join(window, ""))
			// Drop leading pieces until the retained suffix fits the
			// overlap budget and leaves room for the incoming piece.
			for total > s.chunkOverlap || (total+pieceLen > s.chunkSize && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += pieceLen
	}
	if total > 0 {
		chunks = append(chunks, strings.Join(window, ""))
	}
	return chunks
}

func runeLen(s string) int { return len([]rune(s)) }
