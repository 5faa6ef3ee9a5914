package chat

import (
	"fmt"
	"strings"

	"github.com/sakchai-t/doclens/models"
)

const systemPromptDoc = "You are a helpful assistant for a document analyzer app.\n" +
	"You must answer primarily using the provided CONTEXT.\n" +
	"If you use facts from excerpts, cite them like [C12].\n" +
	"Do NOT mention 'based on the file' or 'according to the document' explicitly.\n" +
	"Always reply in the same language as the USER QUESTION.\n" +
	"If the answer is not in the context, say you don't have enough information " +
	"and suggest what to upload or what to ask next.\n"

const systemPromptGeneral = "You are a helpful assistant.\n" +
	"Reply naturally like a normal chat.\n" +
	"Do NOT mention documents, context, excerpts, or citations.\n" +
	"Always reply in the same language as the USER QUESTION.\n"

// trimMiddle caps text at maxChars runes, keeping the head and tail halves
// around an explicit truncation marker. Nothing is ever dropped silently.
func trimMiddle(text string, maxChars int) string {
	t := strings.TrimSpace(text)
	r := []rune(t)
	if maxChars <= 0 || len(r) <= maxChars {
		return t
	}
	half := maxChars / 2
	return string(r[:half]) + "\n\n...[TRUNCATED]...\n\n" + string(r[len(r)-half:])
}

// buildUserTurn assembles the user-side prompt: language directive, optional
// context block, the question, and a bounded trailing history block.
func (s *Service) buildUserTurn(mode string, directive, context, question string, history []models.Message) string {
	var b strings.Builder
	b.WriteString(directive)
	b.WriteString("\n")

	if mode == modeDoc {
		b.WriteString("\nCONTEXT:\n")
		b.WriteString(trimMiddle(context, s.cfg.MaxContextChars))
		b.WriteString("\n")
	}

	b.WriteString("\nUSER QUESTION:\n")
	b.WriteString(question)
	b.WriteString("\n")

	if mode == modeDoc {
		b.WriteString("\nRules:\n")
		b.WriteString("- If you use excerpt facts, cite [C#].\n")
		b.WriteString("- If missing info in context, say what's missing and suggest next step.\n")
	}

	if block := s.historyBlock(history); block != "" {
		b.WriteString("\nCHAT HISTORY (most recent):\n")
		b.WriteString(block)
		b.WriteString("\n")
	}
	return b.String()
}

// historyBlock renders the last turns oldest-first as "ROLE: content" lines,
// capped separately from the context block.
func (s *Service) historyBlock(history []models.Message) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		lines = append(lines, strings.ToUpper(m.Role)+": "+content)
	}
	if len(lines) == 0 {
		return ""
	}
	return trimMiddle(strings.Join(lines, "\n"), s.cfg.MaxHistoryChars)
}

// documentContext builds the context block for single-document mode: the
// stored summary plus the top-scored excerpts labeled by chunk index.
func documentContext(doc models.Document, excerpts []models.ScoredChunk) string {
	var parts []string
	if sum := strings.TrimSpace(doc.Summary); sum != "" {
		parts = append(parts, "SUMMARY:\n"+sum)
	}
	if len(excerpts) > 0 {
		lines := make([]string, 0, len(excerpts))
		for _, c := range excerpts {
			lines = append(lines, fmt.Sprintf("[C%d] %s", c.Index, c.Excerpt))
		}
		parts = append(parts, "RELEVANT EXCERPTS:\n"+strings.Join(lines, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}

// pooledExcerpt is a notebook retrieval hit tagged with its source file.
type pooledExcerpt struct {
	fileName string
	chunk    models.ScoredChunk
}

// notebookContext builds the context block for notebook mode: title,
// combined summary, and the pooled excerpts relabeled with sequential
// citation ids so ids stay unique across member documents.
func notebookContext(nb models.Notebook, pooled []pooledExcerpt) string {
	parts := []string{"NOTEBOOK TITLE:\n" + nb.Title}
	if sum := strings.TrimSpace(nb.CombinedSummary); sum != "" {
		parts = append(parts, "COMBINED SUMMARY:\n"+sum)
	}
	if len(pooled) > 0 {
		lines := make([]string, 0, len(pooled))
		for i, p := range pooled {
			lines = append(lines, fmt.Sprintf("[C%d] (%s) %s", i+1, p.fileName, p.chunk.Excerpt))
		}
		parts = append(parts, "RELEVANT EXCERPTS:\n"+strings.Join(lines, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}
