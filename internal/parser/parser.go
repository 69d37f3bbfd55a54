// Package parser turns uploaded files into the raw material of ingestion:
// an ordered list of text chunks plus document-level info (sections,
// metadata, chunking method). PDF extraction happens upstream; this package
// handles the extracted plain text and markdown.
package parser

import "context"

// Document is the parse product handed to ingestion.
type Document struct {
	// Chunks is the ordered raw chunk text. Order here becomes chunk_index
	// order in the corpus.
	Chunks []string
	// Sections maps section name to section text.
	Sections map[string]string
	// Metadata carries opaque document properties (title, creation_date, …).
	Metadata map[string]string
	// ChunkingMethod names how Chunks were produced.
	ChunkingMethod string
}

// Parser extracts a Document from a file on disk.
type Parser interface {
	Parse(ctx context.Context, path string) (*Document, error)
}
