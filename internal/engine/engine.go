// Package engine is the service facade: it owns the corpus-mutation lock and
// composes the corpus store, index manager, retrieval, attribution,
// relatedness, and the language model into the operations the transport
// layer exposes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/paperlens/paperlens-go/internal/attribution"
	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/index"
	"github.com/paperlens/paperlens-go/internal/logging"
	"github.com/paperlens/paperlens-go/internal/parser"
	"github.com/paperlens/paperlens-go/internal/relate"
	"github.com/paperlens/paperlens-go/internal/retrieval"
)

// ErrNoContent is returned when an operation needs document text but the
// document has no chunks.
var ErrNoContent = errors.New("engine: document has no content")

// LanguageModel is the generation surface the engine needs. Implemented by
// the llm package; retrieval's answer generation is wired separately.
type LanguageModel interface {
	GenerateSummary(ctx context.Context, text, audience string, sections map[string]string) (string, error)
	ExtractKeyTopics(ctx context.Context, text string) ([]string, error)
	ExplainText(ctx context.Context, selectedText, contextText, question, audience string) (string, error)
	SynthesizePapers(ctx context.Context, papers []relate.Paper, synthesisType string) (string, error)
}

// IngestResult reports the outcome of one ingestion.
type IngestResult struct {
	// Document is the stored record.
	Document *corpus.DocumentRecord `json:"document"`
	// Indexed is false when the document was stored but the index rebuild
	// failed; search serves stale results until the next successful rebuild.
	Indexed bool `json:"indexed"`
}

// SynthesisResult is a cross-paper synthesis plus the inputs it was built on.
type SynthesisResult struct {
	Synthesis string         `json:"synthesis"`
	Type      string         `json:"synthesis_type"`
	Papers    []relate.Paper `json:"papers"`
}

// Engine composes the subsystem components behind one API.
//
// mu is the corpus-mutation lock: it is held across {store mutation, index
// rebuild} so every rebuild reflects one well-defined corpus snapshot in the
// serialized mutation sequence. Read paths (query, health, attribution,
// relatedness) never take it.
type Engine struct {
	store       *corpus.Store
	index       *index.Manager
	retrieval   *retrieval.Engine
	attribution *attribution.Scorer
	relate      *relate.Aggregator
	lm          LanguageModel

	mu sync.Mutex
}

// New wires an Engine from its components.
func New(store *corpus.Store, idx *index.Manager, ret *retrieval.Engine,
	scorer *attribution.Scorer, agg *relate.Aggregator, lm LanguageModel) *Engine {
	return &Engine{
		store:       store,
		index:       idx,
		retrieval:   ret,
		attribution: scorer,
		relate:      agg,
		lm:          lm,
	}
}

// MakeDocumentID derives a document ID from the original filename plus the
// ingestion timestamp, so re-uploading a file yields a distinct document.
func MakeDocumentID(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	return fmt.Sprintf("%s-%d", base, time.Now().UnixNano())
}

// Ingest admits a parsed document under documentID and rebuilds the index.
// Topic extraction failure degrades to an empty topic set; a failed rebuild
// still counts as a successful ingest (the corpus mutation holds) and is
// reported via IngestResult.Indexed.
func (e *Engine) Ingest(ctx context.Context, documentID string, doc *parser.Document) (*IngestResult, error) {
	logger := logging.FromContext(ctx)

	rec := &corpus.DocumentRecord{
		ID:             documentID,
		Sections:       doc.Sections,
		Metadata:       doc.Metadata,
		ChunkingMethod: doc.ChunkingMethod,
	}
	for i, content := range doc.Chunks {
		rec.Chunks = append(rec.Chunks, &corpus.Chunk{
			Content: content,
			Meta:    corpus.ChunkMeta{DocumentID: documentID, ChunkIndex: i},
		})
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	topics, err := e.lm.ExtractKeyTopics(ctx, e.fullText(rec))
	if err != nil {
		logger.Warn("topic extraction failed, continuing without topics",
			"document_id", documentID, "error", err)
	} else {
		rec.Topics = topics
	}

	e.mu.Lock()
	e.store.Add(rec)
	rebuildErr := e.index.Rebuild(ctx)
	e.mu.Unlock()

	if rebuildErr != nil {
		logger.Warn("index rebuild failed after ingest, search results are stale",
			"document_id", documentID, "error", rebuildErr)
	}
	return &IngestResult{Document: rec, Indexed: rebuildErr == nil}, nil
}

// Delete removes a document and rebuilds the index over the remaining
// corpus. Returns corpus.ErrNotFound when the ID is unknown; a failed
// rebuild does not undo the deletion.
func (e *Engine) Delete(ctx context.Context, documentID string) error {
	e.mu.Lock()
	removed := e.store.Remove(documentID)
	var rebuildErr error
	if removed {
		rebuildErr = e.index.Rebuild(ctx)
	}
	e.mu.Unlock()

	if !removed {
		return corpus.ErrNotFound
	}
	if rebuildErr != nil {
		logging.FromContext(ctx).Warn("index rebuild failed after delete, search results are stale",
			"document_id", documentID, "error", rebuildErr)
	}
	return nil
}

// Query returns the k most similar chunks for text within scope.
func (e *Engine) Query(ctx context.Context, text string, k int, scope index.Scope) ([]index.Result, error) {
	return e.retrieval.Query(ctx, text, k, scope)
}

// QueryWithAnswer composes retrieval with citation-grounded generation.
func (e *Engine) QueryWithAnswer(ctx context.Context, text string, k int, scope index.Scope) (*retrieval.Answer, error) {
	return e.retrieval.QueryWithAnswer(ctx, text, k, scope)
}

// Attribute returns the evidence chunks behind sentence within a document.
func (e *Engine) Attribute(ctx context.Context, documentID, sentence string) (*attribution.Result, error) {
	return e.attribution.Score(ctx, documentID, sentence)
}

// Related lists documents sharing topics with documentID.
func (e *Engine) Related(documentID string) ([]relate.Related, error) {
	return e.relate.Related(documentID)
}

// Synthesize extracts synthesis input for the given documents and generates
// a cross-paper synthesis over it.
func (e *Engine) Synthesize(ctx context.Context, documentIDs []string, synthesisType string) (*SynthesisResult, error) {
	papers, err := e.relate.SynthesisInput(documentIDs)
	if err != nil {
		return nil, err
	}
	text, err := e.lm.SynthesizePapers(ctx, papers, synthesisType)
	if err != nil {
		return nil, err
	}
	if synthesisType == "" {
		synthesisType = "general"
	}
	return &SynthesisResult{Synthesis: text, Type: synthesisType, Papers: papers}, nil
}

// Summarize generates an audience-tuned summary of one document's full text.
func (e *Engine) Summarize(ctx context.Context, documentID, audience string) (string, error) {
	doc, err := e.store.Get(documentID)
	if err != nil {
		return "", err
	}
	if len(doc.Chunks) == 0 {
		return "", ErrNoContent
	}
	return e.lm.GenerateSummary(ctx, e.fullText(doc), audience, doc.Sections)
}

// ExplainText explains a highlighted passage of a document. The document
// must exist, but the passage itself is taken verbatim from the caller.
func (e *Engine) ExplainText(ctx context.Context, documentID, selectedText, contextText, question, audience string) (string, error) {
	if _, err := e.store.Get(documentID); err != nil {
		return "", err
	}
	return e.lm.ExplainText(ctx, selectedText, contextText, question, audience)
}

// Document returns one document record.
func (e *Engine) Document(documentID string) (*corpus.DocumentRecord, error) {
	return e.store.Get(documentID)
}

// Documents lists the corpus.
func (e *Engine) Documents() []corpus.Summary {
	return e.store.List()
}

// IndexHealth returns the index diagnostic snapshot.
func (e *Engine) IndexHealth() index.Health {
	return e.index.Health()
}

// SaveIndex persists the live index to its configured path.
func (e *Engine) SaveIndex(ctx context.Context) error {
	return e.index.Save(ctx)
}

// fullText joins a document's chunks in order.
func (e *Engine) fullText(doc *corpus.DocumentRecord) string {
	parts := make([]string, len(doc.Chunks))
	for i, c := range doc.Chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n")
}
