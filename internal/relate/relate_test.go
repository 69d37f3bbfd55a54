package relate

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/paperlens/paperlens-go/internal/corpus"
)

func docWithTopics(id string, topics ...string) *corpus.DocumentRecord {
	return &corpus.DocumentRecord{ID: id, Topics: topics}
}

func TestRelated_JaccardScore(t *testing.T) {
	t.Parallel()

	store := corpus.NewStore()
	store.Add(docWithTopics("d1", "transformers", "attention"))
	store.Add(docWithTopics("d2", "attention", "memory"))

	related, err := NewAggregator(store).Related("d1")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 1 {
		t.Fatalf("expected 1 related document, got %d", len(related))
	}
	r := related[0]
	if r.DocumentID != "d2" {
		t.Errorf("related id = %q", r.DocumentID)
	}
	// |{attention}| / |{transformers, attention, memory}| = 1/3
	if math.Abs(r.Score-1.0/3.0) > 1e-9 {
		t.Errorf("score = %v, expected 1/3", r.Score)
	}
	if len(r.CommonTopics) != 1 || r.CommonTopics[0] != "attention" {
		t.Errorf("common topics = %v", r.CommonTopics)
	}
}

func TestRelated_ZeroOverlapExcluded(t *testing.T) {
	t.Parallel()

	store := corpus.NewStore()
	store.Add(docWithTopics("d1", "graphs"))
	store.Add(docWithTopics("d2", "optics"))

	related, err := NewAggregator(store).Related("d1")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 0 {
		t.Errorf("expected no related documents, got %v", related)
	}
}

func TestRelated_EmptyTopicsIsEmptyResult(t *testing.T) {
	t.Parallel()

	store := corpus.NewStore()
	store.Add(docWithTopics("d1"))
	store.Add(docWithTopics("d2", "anything"))

	related, err := NewAggregator(store).Related("d1")
	if err != nil {
		t.Fatalf("topic-less target must not error, got %v", err)
	}
	if len(related) != 0 {
		t.Errorf("expected empty result, got %v", related)
	}
}

func TestRelated_TopFiveWithDeterministicTies(t *testing.T) {
	t.Parallel()

	store := corpus.NewStore()
	store.Add(docWithTopics("target", "shared"))
	// Seven identically scoring candidates, added out of ID order.
	for _, id := range []string{"d3", "d7", "d1", "d5", "d2", "d6", "d4"} {
		store.Add(docWithTopics(id, "shared"))
	}

	related, err := NewAggregator(store).Related("target")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 5 {
		t.Fatalf("expected top 5, got %d", len(related))
	}
	for i, want := range []string{"d1", "d2", "d3", "d4", "d5"} {
		if related[i].DocumentID != want {
			t.Errorf("position %d = %q, expected %q", i, related[i].DocumentID, want)
		}
	}
}

func TestRelated_UnknownDocument(t *testing.T) {
	t.Parallel()

	_, err := NewAggregator(corpus.NewStore()).Related("missing")
	if !errors.Is(err, corpus.ErrNotFound) {
		t.Fatalf("expected corpus.ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------

func TestSynthesisInput_ExtractsAndCapsFields(t *testing.T) {
	t.Parallel()

	longFindings := strings.Repeat("f", 1500)
	store := corpus.NewStore()
	store.Add(&corpus.DocumentRecord{
		ID:     "paper-1",
		Topics: []string{"attention"},
		Metadata: map[string]string{
			"title":         "Attention Is Enough",
			"creation_date": "2017",
		},
		Sections: map[string]string{
			"Introduction":     "intro text",
			"Results":          longFindings,
			"Methodology":      "we trained a model",
			"Acknowledgements": "thanks",
		},
	})

	papers, err := NewAggregator(store).SynthesisInput([]string{"paper-1"})
	if err != nil {
		t.Fatalf("synthesis input: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(papers))
	}
	p := papers[0]
	if p.Title != "Attention Is Enough" || p.Year != "2017" {
		t.Errorf("identity fields = %q / %q", p.Title, p.Year)
	}
	if len(p.Findings) != 1000 {
		t.Errorf("findings length = %d, expected capped at 1000", len(p.Findings))
	}
	if p.Methods != "we trained a model" {
		t.Errorf("methods = %q", p.Methods)
	}
}

func TestSynthesisInput_MissingYearDefaultsUnknown(t *testing.T) {
	t.Parallel()

	store := corpus.NewStore()
	store.Add(&corpus.DocumentRecord{ID: "paper-1"})

	papers, err := NewAggregator(store).SynthesisInput([]string{"paper-1"})
	if err != nil {
		t.Fatalf("synthesis input: %v", err)
	}
	if papers[0].Year != "Unknown" {
		t.Errorf("year = %q, expected Unknown", papers[0].Year)
	}
}

func TestSynthesisInput_SkipsUnknownIDs(t *testing.T) {
	t.Parallel()

	store := corpus.NewStore()
	store.Add(&corpus.DocumentRecord{ID: "present"})

	papers, err := NewAggregator(store).SynthesisInput([]string{"ghost-1", "present", "ghost-2"})
	if err != nil {
		t.Fatalf("synthesis input: %v", err)
	}
	if len(papers) != 1 || papers[0].DocumentID != "present" {
		t.Fatalf("expected only the present document, got %+v", papers)
	}
}

func TestSynthesisInput_NoValidDocuments(t *testing.T) {
	t.Parallel()

	_, err := NewAggregator(corpus.NewStore()).SynthesisInput([]string{"ghost"})
	if !errors.Is(err, ErrNoValidDocuments) {
		t.Fatalf("expected ErrNoValidDocuments, got %v", err)
	}
}

func TestRelated_ScoreOrdering(t *testing.T) {
	t.Parallel()

	store := corpus.NewStore()
	store.Add(docWithTopics("target", "a", "b", "c"))
	store.Add(docWithTopics("partial", "a", "x", "y"))
	store.Add(docWithTopics("close", "a", "b", "c"))

	related, err := NewAggregator(store).Related("target")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("expected 2 related, got %d", len(related))
	}
	if related[0].DocumentID != "close" {
		t.Errorf("highest Jaccard should rank first, got %q (scores %v)",
			related[0].DocumentID, []float64{related[0].Score, related[1].Score})
	}
	if related[0].Score != 1.0 {
		t.Errorf("identical topic sets should score 1.0, got %v", related[0].Score)
	}
}

// Keeps the Example-style check close to the behavior users see in listings.
func Example() {
	store := corpus.NewStore()
	store.Add(&corpus.DocumentRecord{ID: "d1", Topics: []string{"transformers", "attention"}})
	store.Add(&corpus.DocumentRecord{ID: "d2", Topics: []string{"attention", "memory"}})

	related, _ := NewAggregator(store).Related("d1")
	for _, r := range related {
		fmt.Printf("%s %s %.2f\n", r.DocumentID, r.CommonTopics, r.Score)
	}
	// Output: d2 [attention] 0.33
}
