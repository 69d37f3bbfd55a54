package corpus

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// makeDoc builds a record with n content-bearing chunks for tests.
func makeDoc(id string, n int) *DocumentRecord {
	rec := &DocumentRecord{
		ID:       id,
		Sections: map[string]string{},
		Metadata: map[string]string{"title": "Title of " + id},
	}
	for i := 0; i < n; i++ {
		rec.Chunks = append(rec.Chunks, &Chunk{
			Content: fmt.Sprintf("%s chunk %d", id, i),
			Meta:    ChunkMeta{DocumentID: id, ChunkIndex: i},
		})
	}
	return rec
}

// TestStore_AddGetRemove verifies the basic lifecycle: add, get, remove,
// and ErrNotFound after removal.
func TestStore_AddGetRemove(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add(makeDoc("d1", 2))

	rec, err := s.Get("d1")
	if err != nil {
		t.Fatalf("Get(d1): %v", err)
	}
	if len(rec.Chunks) != 2 {
		t.Errorf("chunks: expected 2, got %d", len(rec.Chunks))
	}

	if !s.Remove("d1") {
		t.Errorf("Remove(d1): expected true")
	}
	if s.Remove("d1") {
		t.Errorf("Remove(d1) twice: expected false")
	}
	if _, err := s.Get("d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after remove: expected ErrNotFound, got %v", err)
	}
}

// TestStore_AddOverwrites verifies silent last-write-wins semantics: adding
// the same ID twice yields exactly one record holding the latest chunks.
func TestStore_AddOverwrites(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add(makeDoc("d1", 2))
	s.Add(makeDoc("d1", 5))

	if s.Len() != 1 {
		t.Fatalf("Len: expected 1, got %d", s.Len())
	}
	rec, err := s.Get("d1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Chunks) != 5 {
		t.Errorf("chunks after overwrite: expected 5, got %d", len(rec.Chunks))
	}
	if got := len(s.AllChunks()); got != 5 {
		t.Errorf("AllChunks after overwrite: expected 5, got %d", got)
	}
}

// TestStore_AllChunksOrder verifies that AllChunks flattens documents in
// insertion order with chunk order preserved inside each document.
func TestStore_AllChunksOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add(makeDoc("b", 2))
	s.Add(makeDoc("a", 3))

	chunks := s.AllChunks()
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}

	want := []string{
		"b chunk 0", "b chunk 1",
		"a chunk 0", "a chunk 1", "a chunk 2",
	}
	for i, c := range chunks {
		if c.Content != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], c.Content)
		}
	}
}

// TestStore_OverwriteKeepsPosition verifies that replacing a record does not
// move the document to the end of the flattening order.
func TestStore_OverwriteKeepsPosition(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add(makeDoc("first", 1))
	s.Add(makeDoc("second", 1))
	s.Add(makeDoc("first", 1))

	chunks := s.AllChunks()
	if chunks[0].Meta.DocumentID != "first" {
		t.Errorf("expected replaced document to keep its position, got %q first", chunks[0].Meta.DocumentID)
	}
}

// TestStore_ConcurrentMutation exercises the store under racing adds and
// removes; run with -race.
func TestStore_ConcurrentMutation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("d%d", i%4)
			s.Add(makeDoc(id, 3))
			s.AllChunks()
			s.List()
			s.Remove(id)
		}(i)
	}
	wg.Wait()
}

// TestDocumentRecord_Validate covers the chunk index invariants.
func TestDocumentRecord_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*DocumentRecord)
		wantErr bool
	}{
		{"valid", func(*DocumentRecord) {}, false},
		{"empty id", func(r *DocumentRecord) { r.ID = "" }, true},
		{"duplicate index", func(r *DocumentRecord) { r.Chunks[1].Meta.ChunkIndex = 0 }, true},
		{"wrong owner", func(r *DocumentRecord) { r.Chunks[0].Meta.DocumentID = "other" }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := makeDoc("d1", 3)
			tc.mutate(rec)
			err := rec.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
