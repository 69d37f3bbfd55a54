package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// targetChunkSize is the size paragraphs are merged up to before a new
	// chunk starts. Roughly 250 tokens, a comfortable retrieval granule.
	targetChunkSize = 1000

	// chunkingMethod is recorded on every document this parser produces.
	chunkingMethod = "paragraph-merge"
)

// TextParser parses plain text and markdown files. Markdown headings become
// section boundaries; heading-less files get a single "body" section.
type TextParser struct{}

// NewTextParser constructs a TextParser.
func NewTextParser() *TextParser { return &TextParser{} }

// Parse reads path and produces chunks and document info. The document
// title comes from the first markdown heading, falling back to the file
// name; creation_date comes from the file's modification time.
func (p *TextParser) Parse(_ context.Context, path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("parser: stat %s: %w", path, err)
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	sections, order := splitSections(text)

	doc := &Document{
		Sections:       sections,
		ChunkingMethod: chunkingMethod,
		Metadata: map[string]string{
			"title":         documentTitle(text, filepath.Base(path)),
			"creation_date": info.ModTime().Format(time.DateOnly),
		},
	}
	for _, name := range order {
		doc.Chunks = append(doc.Chunks, chunkText(sections[name])...)
	}
	if len(doc.Chunks) == 0 {
		return nil, fmt.Errorf("parser: %s contains no text", path)
	}
	return doc, nil
}

// splitSections cuts text at markdown headings, returning the section map
// and the order the sections appeared in.
func splitSections(text string) (map[string]string, []string) {
	sections := make(map[string]string)
	var order []string

	current := "body"
	var buf strings.Builder
	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		if _, seen := sections[current]; !seen {
			order = append(order, current)
		}
		sections[current] += content + "\n"
	}

	for _, line := range strings.Split(text, "\n") {
		if name, ok := headingName(line); ok {
			flush()
			current = name
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()

	for name, content := range sections {
		sections[name] = strings.TrimSpace(content)
	}
	return sections, order
}

// headingName extracts a section name from a markdown heading line.
func headingName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
	if name == "" {
		return "", false
	}
	return name, true
}

// chunkText merges paragraphs up to targetChunkSize. A single oversized
// paragraph becomes its own chunk rather than being split mid-sentence.
func chunkText(text string) []string {
	var chunks []string
	var buf strings.Builder

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(para) > targetChunkSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// documentTitle picks the first heading in the text as the title, falling
// back to the file name for heading-less documents.
func documentTitle(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		if name, ok := headingName(line); ok {
			return name
		}
	}
	return fallback
}
