// Package ingest sentence-splits long documents into bulk-ingestible
// chunks before handing them to internal/voidmem.Manager.RegisterChunks.
// This is a supplemented feature: original_source never received anything
// but pre-chunked text, so there is no Python source to port here — the
// chunking strategy is grounded on the teacher's prose/v3 usage in
// memory-service/pkg/extract/prose.go, adapted from entity extraction to
// sentence boundary detection.
package ingest

import (
	"fmt"
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/vthunder/voidmem/internal/voidmem"
)

// DefaultSentencesPerChunk is the number of sentences grouped into one
// registered chunk when the caller does not override it.
const DefaultSentencesPerChunk = 4

// Chunker splits documents into sentence-aligned chunks using prose/v3's
// sentence tokenizer.
type Chunker struct {
	SentencesPerChunk int
}

// NewChunker builds a Chunker with the given sentence group size; values
// less than 1 fall back to DefaultSentencesPerChunk.
func NewChunker(sentencesPerChunk int) *Chunker {
	if sentencesPerChunk < 1 {
		sentencesPerChunk = DefaultSentencesPerChunk
	}
	return &Chunker{SentencesPerChunk: sentencesPerChunk}
}

// Split breaks text into sentence-grouped chunks. Blank text yields no
// chunks. Documents that fail to parse, or in which no sentence is found,
// yield a single chunk containing the trimmed text, never an error —
// ingestion should degrade gracefully rather than block registration.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	doc, err := prose.NewDocument(trimmed, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		return []string{trimmed}
	}

	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return []string{trimmed}
	}

	var chunks []string
	var group []string
	for _, s := range sentences {
		group = append(group, strings.TrimSpace(s.Text))
		if len(group) >= c.SentencesPerChunk {
			chunks = append(chunks, strings.Join(group, " "))
			group = nil
		}
	}
	if len(group) > 0 {
		chunks = append(chunks, strings.Join(group, " "))
	}
	return chunks
}

// ChunkAndRegister splits text into chunks and registers each one under a
// derived id of the form "<sourceID>#<index>". It returns the generated
// ids in registration order.
func ChunkAndRegister(m *voidmem.Manager, sourceID, text string, chunker *Chunker) ([]string, error) {
	if chunker == nil {
		chunker = NewChunker(DefaultSentencesPerChunk)
	}

	chunks := chunker.Split(text)
	if len(chunks) == 0 {
		return nil, nil
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("%s#%d", sourceID, i)
	}

	if err := m.RegisterChunks(ids, chunks, nil, nil); err != nil {
		return nil, fmt.Errorf("ingest: register chunks for %q: %w", sourceID, err)
	}
	return ids, nil
}
