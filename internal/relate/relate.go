// Package relate connects documents to each other: topic-overlap scoring
// for "related papers" listings, and per-paper field extraction feeding
// multi-paper synthesis.
package relate

import (
	"errors"
	"sort"
	"strings"

	"github.com/paperlens/paperlens-go/internal/budget"
	"github.com/paperlens/paperlens-go/internal/corpus"
)

// ErrNoValidDocuments is returned when a synthesis request resolves to zero
// corpus documents.
var ErrNoValidDocuments = errors.New("relate: none of the requested documents are in the corpus")

const (
	// maxRelated caps the related-documents listing.
	maxRelated = 5

	// sectionFieldLimit bounds each extracted section field, keeping the
	// downstream synthesis prompt within budget.
	sectionFieldLimit = 1000
)

// Related is one topic-overlap match for a target document.
type Related struct {
	// DocumentID identifies the related document.
	DocumentID string `json:"document_id"`
	// Title is the related document's display title.
	Title string `json:"title"`
	// CommonTopics are the shared topics, sorted for determinism.
	CommonTopics []string `json:"common_topics"`
	// Score is the Jaccard index over the two topic sets, in (0, 1].
	Score float64 `json:"score"`
}

// Paper is the per-document synthesis input: identity plus the findings and
// methods text extracted from its sections.
type Paper struct {
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`
	// Title is the document's display title.
	Title string `json:"title"`
	// Year is the document's creation date, or "Unknown".
	Year string `json:"year"`
	// Topics are the document's extracted key topics.
	Topics []string `json:"topics"`
	// Findings is text from a findings/results section, capped at 1000
	// characters. Empty when the document has no such section.
	Findings string `json:"findings,omitempty"`
	// Methods is text from a methods section, capped at 1000 characters.
	Methods string `json:"methods,omitempty"`
}

// Aggregator computes document relatedness over the corpus.
type Aggregator struct {
	store *corpus.Store
}

// NewAggregator constructs an Aggregator.
func NewAggregator(store *corpus.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Related ranks every other document by Jaccard similarity of topic sets
// against documentID. Documents with zero overlap are excluded; ties are
// broken by document ID; at most five results are returned. A target with
// no topics yields an empty result, not an error. Returns corpus.ErrNotFound
// for an unknown document.
func (a *Aggregator) Related(documentID string) ([]Related, error) {
	target, err := a.store.Get(documentID)
	if err != nil {
		return nil, err
	}

	targetTopics := topicSet(target.Topics)
	if len(targetTopics) == 0 {
		return []Related{}, nil
	}

	var related []Related
	for _, other := range a.store.All() {
		if other.ID == documentID {
			continue
		}
		common, union := overlap(targetTopics, topicSet(other.Topics))
		if len(common) == 0 {
			continue
		}
		related = append(related, Related{
			DocumentID:   other.ID,
			Title:        other.Title(),
			CommonTopics: common,
			Score:        float64(len(common)) / float64(union),
		})
	}

	sort.Slice(related, func(i, j int) bool {
		if related[i].Score != related[j].Score {
			return related[i].Score > related[j].Score
		}
		return related[i].DocumentID < related[j].DocumentID
	})
	if len(related) > maxRelated {
		related = related[:maxRelated]
	}
	if related == nil {
		related = []Related{}
	}
	return related, nil
}

// SynthesisInput resolves documentIDs against the corpus and extracts the
// synthesis fields for each hit. IDs absent from the corpus are silently
// skipped; if nothing resolves, ErrNoValidDocuments is returned.
func (a *Aggregator) SynthesisInput(documentIDs []string) ([]Paper, error) {
	papers := make([]Paper, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, err := a.store.Get(id)
		if err != nil {
			continue
		}

		year := doc.Metadata["creation_date"]
		if year == "" {
			year = "Unknown"
		}
		p := Paper{
			DocumentID: doc.ID,
			Title:      doc.Title(),
			Year:       year,
			Topics:     doc.Topics,
		}
		p.Findings, p.Methods = extractSectionFields(doc.Sections)
		papers = append(papers, p)
	}
	if len(papers) == 0 {
		return nil, ErrNoValidDocuments
	}
	return papers, nil
}

// extractSectionFields scans section names for findings/results and methods
// content. Section names are matched as case-insensitive substrings; a
// findings match takes precedence over a methods match for the same section.
func extractSectionFields(sections map[string]string) (findings, methods string) {
	// Map iteration order is random; walk names sorted so repeated calls
	// pick the same section when several match.
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "finding") || strings.Contains(lower, "result"):
			findings = budget.Truncate(sections[name], sectionFieldLimit)
		case strings.Contains(lower, "method"):
			methods = budget.Truncate(sections[name], sectionFieldLimit)
		}
	}
	return findings, methods
}

// topicSet builds a set from a topic list.
func topicSet(topics []string) map[string]struct{} {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return set
}

// overlap returns the sorted intersection of two sets and their union size.
func overlap(a, b map[string]struct{}) (common []string, union int) {
	union = len(a)
	for t := range b {
		if _, ok := a[t]; ok {
			common = append(common, t)
		} else {
			union++
		}
	}
	sort.Strings(common)
	return common, union
}
