// Package llm wraps the chat model behind the operations the service
// actually needs: audience-tuned summaries, citation-grounded answers, key
// topic extraction, text explanation, and multi-paper synthesis.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/paperlens/paperlens-go/internal/budget"
	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/relate"
)

// GenerationError wraps a chat-model failure with the operation that
// triggered it.
type GenerationError struct {
	// Op names the failing operation ("summary", "answer", …).
	Op string
	// Err is the underlying model error.
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm: %s generation failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error { return e.Err }

// maxTopics caps the topic list extracted per document.
const maxTopics = 8

// Client executes prompt operations against one chat model. Safe for
// concurrent use.
type Client struct {
	model model.ToolCallingChatModel

	// contextTokens bounds the document text injected into prompts.
	contextTokens int
}

// NewClient wraps m. contextTokens <= 0 selects budget.DefaultMaxContextTokens.
func NewClient(m model.ToolCallingChatModel, contextTokens int) *Client {
	if contextTokens <= 0 {
		contextTokens = budget.DefaultMaxContextTokens
	}
	return &Client{model: m, contextTokens: contextTokens}
}

// generate runs one prompt and returns the response text. All model
// failures come back as *GenerationError.
func (c *Client) generate(ctx context.Context, op string, msgs []*schema.Message) (string, error) {
	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", &GenerationError{Op: op, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &GenerationError{Op: op, Err: fmt.Errorf("model returned an empty response")}
	}
	return resp.Content, nil
}

// GenerateSummary produces an audience-tuned summary of text. When the
// document's section map is available it is listed in the prompt so the
// summary can follow the paper's own structure.
func (c *Client) GenerateSummary(ctx context.Context, text, audience string, sections map[string]string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, summaryPrompt, audienceStyle(audience))
	if len(sections) > 0 {
		sb.WriteString("\n\nThe paper has these sections: ")
		sb.WriteString(strings.Join(sectionNames(sections), ", "))
		sb.WriteString(".")
	}

	msgs := []*schema.Message{
		schema.SystemMessage(sb.String()),
		schema.UserMessage(budget.TruncateToTokens(text, c.contextTokens)),
	}
	return c.generate(ctx, "summary", msgs)
}

// AnswerWithCitations answers question using only the given chunks,
// numbering them so the model can cite [1]..[n]. Satisfies the retrieval
// package's Generator interface.
func (c *Client) AnswerWithCitations(ctx context.Context, question string, chunks []*corpus.Chunk) (string, error) {
	var sb strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "[%d] (%s, %s)\n%s\n\n", i+1, chunk.Meta.DocumentID, chunk.Meta.SectionName, chunk.Content)
	}

	msgs := []*schema.Message{
		schema.SystemMessage(answerPrompt),
		schema.UserMessage(fmt.Sprintf("Passages:\n\n%sQuestion: %s",
			budget.TruncateToTokens(sb.String(), c.contextTokens), question)),
	}
	return c.generate(ctx, "answer", msgs)
}

// ExtractKeyTopics pulls the main topics out of a document's text as a flat
// list of short phrases.
func (c *Client) ExtractKeyTopics(ctx context.Context, text string) ([]string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(topicsPrompt, maxTopics)),
		schema.UserMessage(budget.TruncateToTokens(text, c.contextTokens)),
	}
	raw, err := c.generate(ctx, "topics", msgs)
	if err != nil {
		return nil, err
	}
	return parseTopics(raw), nil
}

// ExplainText explains a passage the user highlighted, using the
// surrounding context and an optional follow-up question.
func (c *Client) ExplainText(ctx context.Context, selectedText, contextText, question, audience string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Selected text:\n%s\n", selectedText)
	if contextText != "" {
		fmt.Fprintf(&sb, "\nSurrounding context:\n%s\n", budget.TruncateToTokens(contextText, c.contextTokens/2))
	}
	if question != "" {
		fmt.Fprintf(&sb, "\nThe reader asks: %s\n", question)
	}

	msgs := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(explainPrompt, audienceStyle(audience))),
		schema.UserMessage(sb.String()),
	}
	return c.generate(ctx, "explain", msgs)
}

// SynthesizePapers produces a cross-paper synthesis over the extracted paper
// summaries. synthesisType selects the angle ("comparison", "survey", …);
// empty means a general synthesis.
func (c *Client) SynthesizePapers(ctx context.Context, papers []relate.Paper, synthesisType string) (string, error) {
	if synthesisType == "" {
		synthesisType = "general"
	}

	var sb strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&sb, "Paper %d: %s (%s)\n", i+1, p.Title, p.Year)
		if len(p.Topics) > 0 {
			fmt.Fprintf(&sb, "Topics: %s\n", strings.Join(p.Topics, ", "))
		}
		if p.Findings != "" {
			fmt.Fprintf(&sb, "Findings: %s\n", p.Findings)
		}
		if p.Methods != "" {
			fmt.Fprintf(&sb, "Methods: %s\n", p.Methods)
		}
		sb.WriteString("\n")
	}

	msgs := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(synthesizePrompt, synthesisType)),
		schema.UserMessage(budget.TruncateToTokens(sb.String(), c.contextTokens)),
	}
	return c.generate(ctx, "synthesis", msgs)
}

// parseTopics accepts either a JSON string array or a loose newline/comma
// separated list, since smaller models do not reliably emit strict JSON.
func parseTopics(raw string) []string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var topics []string
	if err := json.Unmarshal([]byte(cleaned), &topics); err == nil {
		return normalizeTopics(topics)
	}

	split := func(r rune) bool { return r == '\n' || r == ',' }
	return normalizeTopics(strings.FieldsFunc(cleaned, split))
}

// normalizeTopics trims list markers and drops empties and duplicates,
// capping the result at maxTopics.
func normalizeTopics(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	topics := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "-*•0123456789. "))
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		topics = append(topics, t)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

// sectionNames returns the sorted section names of a document.
func sectionNames(sections map[string]string) []string {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	// Deterministic prompt content keeps responses reproducible.
	sort.Strings(names)
	return names
}
