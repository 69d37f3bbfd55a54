// Package corpus owns the in-memory corpus of ingested documents: the
// document records, their ordered chunks, and the per-document section and
// topic metadata used by the relatedness and synthesis features.
//
// The corpus is process state only — it is rebuilt from re-ingested files
// after a restart and is deliberately never persisted. The durable artifacts
// are the uploaded files and the saved vector index, not this derived state.
package corpus

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document ID is not present in the store.
var ErrNotFound = errors.New("corpus: document not found")

// ChunkMeta identifies where a chunk came from within the corpus.
type ChunkMeta struct {
	// DocumentID is the ID of the owning document.
	DocumentID string `json:"document_id"`

	// SectionName is the document section this chunk was cut from, when the
	// parser could determine one. Empty otherwise.
	SectionName string `json:"section_name,omitempty"`

	// ChunkIndex is the position of this chunk within its document.
	// Indexes are unique and strictly increasing per document.
	ChunkIndex int `json:"chunk_index"`
}

// Chunk is the atomic unit of retrievable text.
//
// Content is immutable once the chunk is created: re-ingesting a document
// replaces its chunks wholesale, it never edits them in place. Because
// embeddings are deterministic for fixed content, the embedding computed for
// a chunk is cached on the chunk for its lifetime and never recomputed.
type Chunk struct {
	// Content is the raw chunk text.
	Content string `json:"content"`

	// Embedding is the cached embedding vector, nil until first computed.
	Embedding []float32 `json:"-"`

	// Meta locates the chunk within the corpus.
	Meta ChunkMeta `json:"metadata"`
}

// HasEmbedding reports whether the chunk's embedding has been computed.
func (c *Chunk) HasEmbedding() bool { return len(c.Embedding) > 0 }

// DocumentRecord is one ingested document: its ordered chunks plus the
// section map, topic set, and opaque metadata produced by the parser.
type DocumentRecord struct {
	// ID uniquely identifies the document. It is derived from the original
	// filename and the ingestion timestamp, so re-uploading the same file
	// produces a new ID.
	ID string `json:"id"`

	// Chunks are the document's chunks in reading order.
	Chunks []*Chunk `json:"-"`

	// Sections maps section name to section text (e.g. "Methods" → text).
	Sections map[string]string `json:"-"`

	// Topics is the set of key topics extracted by the LLM after ingestion.
	// It is the only field mutated after creation.
	Topics []string `json:"topics"`

	// Metadata is opaque parser output (title, creation_date, …).
	Metadata map[string]string `json:"metadata"`

	// ChunkingMethod records which chunking strategy produced the chunks.
	ChunkingMethod string `json:"chunking_method"`
}

// Title returns the document's title metadata, falling back to the ID.
func (d *DocumentRecord) Title() string {
	if t := d.Metadata["title"]; t != "" {
		return t
	}
	return d.ID
}

// Summary is a lightweight listing view of a document.
type Summary struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	ChunkCount     int      `json:"chunk_count"`
	Sections       []string `json:"sections"`
	Topics         []string `json:"topics"`
	ChunkingMethod string   `json:"chunking_method"`
}

// Validate checks the per-document chunk invariants: indexes must be unique
// and strictly increasing, and every chunk must carry the record's ID.
// Ingestion calls this before a record is admitted to the store.
func (d *DocumentRecord) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("corpus: document record has empty ID")
	}
	last := -1
	for i, c := range d.Chunks {
		if c.Meta.DocumentID != d.ID {
			return fmt.Errorf("corpus: chunk %d of %q claims document %q", i, d.ID, c.Meta.DocumentID)
		}
		if c.Meta.ChunkIndex <= last {
			return fmt.Errorf("corpus: chunk indexes of %q not strictly increasing at position %d", d.ID, i)
		}
		last = c.Meta.ChunkIndex
	}
	return nil
}
