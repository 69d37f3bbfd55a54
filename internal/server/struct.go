package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/paperlens/paperlens-go/internal/attribution"
	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/engine"
	"github.com/paperlens/paperlens-go/internal/index"
	"github.com/paperlens/paperlens-go/internal/parser"
	"github.com/paperlens/paperlens-go/internal/relate"
	"github.com/paperlens/paperlens-go/internal/retrieval"
	"github.com/paperlens/paperlens-go/internal/startup"
	"github.com/paperlens/paperlens-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// UploadDir is where uploaded documents are written before parsing.
	// Defaults to the OS temp dir.
	UploadDir string
	// MaxUploadBytes caps the size of an uploaded document. Defaults to 32 MiB.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready reflects only the startup flags.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// service is the engine surface the handlers call. *engine.Engine satisfies
// it; tests inject a fake.
type service interface {
	Ingest(ctx context.Context, documentID string, doc *parser.Document) (*engine.IngestResult, error)
	Delete(ctx context.Context, documentID string) error
	Query(ctx context.Context, text string, k int, scope index.Scope) ([]index.Result, error)
	QueryWithAnswer(ctx context.Context, text string, k int, scope index.Scope) (*retrieval.Answer, error)
	Attribute(ctx context.Context, documentID, sentence string) (*attribution.Result, error)
	Related(documentID string) ([]relate.Related, error)
	Synthesize(ctx context.Context, documentIDs []string, synthesisType string) (*engine.SynthesisResult, error)
	Summarize(ctx context.Context, documentID, audience string) (string, error)
	ExplainText(ctx context.Context, documentID, selectedText, contextText, question, audience string) (string, error)
	Document(documentID string) (*corpus.DocumentRecord, error)
	Documents() []corpus.Summary
	IndexHealth() index.Health
}

// Server is the HTTP server that exposes the document analysis engine as a
// REST API. It is started by the `paperlens serve` CLI command.
type Server struct {
	// engine handles all document and query operations.
	engine service
	// parser turns uploaded files into chunked documents.
	parser parser.Parser
	// boot reports startup readiness; nil when the server is constructed
	// without a startup sequence (tests).
	boot *startup.Orchestrator
	// history records answered queries; nil disables history.
	history store.HistoryStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query and
// POST /api/documents/{id}/query.
type queryRequest struct {
	// Query is the natural language question.
	Query string `json:"query"`
	// K is the number of passages to retrieve. Zero selects the default.
	K int `json:"k,omitempty"`
}

// queryResponse is the JSON response for query endpoints.
type queryResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources are the retrieved passages the answer is grounded on.
	Sources []index.Result `json:"sources"`
}

// searchResponse is the JSON response for GET /api/search.
type searchResponse struct {
	// Results are the retrieved passages, ranked by similarity.
	Results []index.Result `json:"results"`
}

// summaryRequest is the JSON body for POST /api/documents/{id}/summary.
type summaryRequest struct {
	// Audience tunes the summary register (e.g. "child", "student", "expert").
	Audience string `json:"audience,omitempty"`
}

// summaryResponse is the JSON response for POST /api/documents/{id}/summary.
type summaryResponse struct {
	// Summary is the generated summary text.
	Summary string `json:"summary"`
	// Audience echoes the requested audience.
	Audience string `json:"audience,omitempty"`
}

// explainRequest is the JSON body for POST /api/documents/{id}/explain-text.
type explainRequest struct {
	// SelectedText is the highlighted passage to explain.
	SelectedText string `json:"selected_text"`
	// Context is the surrounding text of the selection.
	Context string `json:"context,omitempty"`
	// Question is an optional focusing question about the selection.
	Question string `json:"question,omitempty"`
	// Audience tunes the explanation register.
	Audience string `json:"audience_type,omitempty"`
}

// explainResponse is the JSON response for POST /api/documents/{id}/explain-text.
type explainResponse struct {
	// Explanation is the generated explanation text.
	Explanation string `json:"explanation"`
}

// attributionRequest is the JSON body for POST /api/documents/{id}/explanation.
type attributionRequest struct {
	// Sentence is the generated sentence to trace back to source passages.
	Sentence string `json:"sentence"`
}

// synthesizeRequest is the JSON body for POST /api/synthesize.
type synthesizeRequest struct {
	// DocumentIDs are the papers to synthesize across.
	DocumentIDs []string `json:"document_ids"`
	// SynthesisType selects the synthesis framing (default: "general").
	SynthesisType string `json:"synthesis_type,omitempty"`
}

// relatedResponse is the JSON response for GET /api/documents/{id}/related.
type relatedResponse struct {
	// Related lists documents sharing topics, ranked by overlap.
	Related []relate.Related `json:"related"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Records are the most recent history entries, newest-first.
	Records []store.Record `json:"records"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	// Error is the human-readable failure reason.
	Error string `json:"error"`
}
