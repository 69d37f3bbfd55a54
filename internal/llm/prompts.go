package llm

// Prompt templates. Each takes its variable parts via fmt verbs; document
// text always travels in the user message so system prompts stay constant.
const (
	summaryPrompt = `You are a research assistant summarizing an academic paper.
Write a summary %s.
Cover the problem the paper addresses, its approach, and its main findings.
Base the summary strictly on the provided text; do not invent results.`

	answerPrompt = `You are a research assistant answering questions about academic papers.
Answer using only the numbered passages provided. After each claim, cite the
passage that supports it in square brackets, e.g. [2]. If the passages do not
contain the answer, say so plainly instead of guessing.`

	topicsPrompt = `Extract the main research topics from the following paper text.
Respond with a JSON array of at most %d short topic phrases, lowercase,
no commentary. Example: ["transformer architectures", "attention mechanisms"]`

	explainPrompt = `You are a research assistant. A reader highlighted a passage in a paper
and wants it explained %s.
Explain what the passage means and why it matters in its context. If the
reader asked a specific question, answer that question directly.`

	synthesizePrompt = `You are a research assistant writing a %s synthesis across several papers.
Identify the common threads, the points of disagreement, and the open gaps.
Refer to the papers by their titles. Base everything strictly on the
provided per-paper notes.`
)

// audienceStyle maps an audience label to phrasing instructions. Unknown
// labels get the general-reader register rather than an error; the audience
// knob is advisory.
func audienceStyle(audience string) string {
	switch audience {
	case "child":
		return "for a curious child: short sentences, everyday words, no jargon"
	case "student":
		return "for an undergraduate student: define technical terms on first use"
	case "expert", "researcher":
		return "for a domain expert: precise terminology, no basic background"
	default:
		return "for a general reader: accessible language, explain jargon briefly"
	}
}
