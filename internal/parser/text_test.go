package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse_SectionsFromHeadings(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "paper.md", `# Attention Is Enough

## Introduction

We study attention.

## Results

It works well.
`)

	doc, err := NewTextParser().Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if doc.Metadata["title"] != "Attention Is Enough" {
		t.Errorf("title = %q", doc.Metadata["title"])
	}
	if got := doc.Sections["Results"]; got != "It works well." {
		t.Errorf("Results section = %q", got)
	}
	if doc.ChunkingMethod != "paragraph-merge" {
		t.Errorf("chunking method = %q", doc.ChunkingMethod)
	}
	if len(doc.Chunks) == 0 {
		t.Fatal("no chunks produced")
	}
}

func TestParse_HeadinglessFileGetsBodySection(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "notes.txt", "Just a paragraph of plain text.")

	doc, err := NewTextParser().Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := doc.Sections["body"]; !ok {
		t.Errorf("expected a body section, got %v", doc.Sections)
	}
	if doc.Metadata["title"] != "notes.txt" {
		t.Errorf("title should fall back to file name, got %q", doc.Metadata["title"])
	}
}

func TestParse_ChunkMergingRespectsTargetSize(t *testing.T) {
	t.Parallel()

	para := strings.Repeat("word ", 60) // ~300 chars
	content := strings.TrimSpace(strings.Repeat(para+"\n\n", 8))
	path := writeFile(t, "long.txt", content)

	doc, err := NewTextParser().Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Chunks) < 2 {
		t.Fatalf("expected the text to split into multiple chunks, got %d", len(doc.Chunks))
	}
	for i, c := range doc.Chunks {
		if len(c) > targetChunkSize+400 {
			t.Errorf("chunk %d is %d chars, far over target", i, len(c))
		}
	}
}

func TestParse_EmptyFileRejected(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty.txt", "   \n\n  ")
	if _, err := NewTextParser().Parse(context.Background(), path); err == nil {
		t.Fatal("expected an error for an empty file")
	}
}

func TestParse_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewTextParser().Parse(context.Background(), filepath.Join(t.TempDir(), "ghost.txt"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
