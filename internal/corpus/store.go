package corpus

import (
	"sync"
)

// Store holds every ingested document, keyed by document ID, and remembers
// document insertion order so AllChunks produces a deterministic flattening.
//
// Store methods are individually safe for concurrent use, but Add/Remove do
// NOT trigger an index rebuild: the ingestion workflow is responsible for
// holding its mutation lock across {store mutation, rebuild} so that every
// rebuild corresponds to one well-defined corpus snapshot.
type Store struct {
	mu sync.RWMutex

	// docs maps document ID to its record.
	docs map[string]*DocumentRecord

	// order lists document IDs in first-insertion order. Replacing an
	// existing ID keeps its original position.
	order []string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*DocumentRecord)}
}

// Add inserts or replaces the record for its document ID. Overwrite is
// silent and last-write-wins: re-ingesting a document with the same ID
// yields exactly one record.
func (s *Store) Add(rec *DocumentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.docs[rec.ID] = rec
}

// Remove deletes the record for id and reports whether it existed.
// Removing an unknown ID is not an error; callers that need the distinction
// use the returned bool.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; !exists {
		return false
	}
	delete(s.docs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(id string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// AllChunks flattens every record's chunks: documents in insertion order,
// chunks within each document in their original order. This is the exact
// input handed to an index rebuild.
func (s *Store) AllChunks() []*Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Chunk
	for _, id := range s.order {
		out = append(out, s.docs[id].Chunks...)
	}
	return out
}

// All returns every record in insertion order.
func (s *Store) All() []*DocumentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*DocumentRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// List returns a listing summary for every document in insertion order.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		rec := s.docs[id]
		sections := make([]string, 0, len(rec.Sections))
		for name := range rec.Sections {
			sections = append(sections, name)
		}
		out = append(out, Summary{
			ID:             rec.ID,
			Title:          rec.Title(),
			ChunkCount:     len(rec.Chunks),
			Sections:       sections,
			Topics:         rec.Topics,
			ChunkingMethod: rec.ChunkingMethod,
		})
	}
	return out
}

// Len returns the number of documents in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
