// Package analysis holds the per-document LLM enrichments that run during
// ingestion: summary, type classification, and notebook title plus combined
// summary. All of them degrade instead of failing: a generation error yields
// a default value and the surrounding pipeline keeps going.
package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sakchai-t/doclens/internal/language"
	"github.com/sakchai-t/doclens/models"
)

const (
	maxSummaryInputChars  = 12000
	maxClassifyInputChars = 8000
	maxTitleInputChars    = 8000
	maxTitleLen           = 120

	// DefaultTitle is used when title generation degrades or has no input.
	DefaultTitle = "Notebook Summary"
	// DefaultDocumentType is the classifier fallback label.
	DefaultDocumentType = "other"
	// DegradedCombinedSummary marks a notebook whose combined summary could
	// not be generated, usually because a quota ran out.
	DegradedCombinedSummary = "(combined summary not available: quota reached)"
)

// Labels are the allowed document types. The classifier must answer with
// exactly one of them; anything else folds to "other".
var Labels = []string{"invoice", "announcement", "policy", "proposal", "report", "research", "resume", "other"}

var labelSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Labels))
	for _, l := range Labels {
		set[l] = struct{}{}
	}
	return set
}()

// Generator is the blocking generation surface analysis needs.
type Generator interface {
	Generate(ctx context.Context, ownerID, purpose, system, user string) (string, error)
}

// Service runs the enrichments.
type Service struct {
	gen    Generator
	logger *log.Logger
}

// NewService wires the analysis service.
func NewService(gen Generator, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{gen: gen, logger: logger}
}

// Summarize produces a 2-3 sentence summary in the document's language.
// Empty input or a generation failure yields an empty summary.
func (s *Service) Summarize(ctx context.Context, ownerID, text string) string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return ""
	}
	clean = trimMiddle(clean, maxSummaryInputChars)

	system := "You summarize documents for a web app."
	user := fmt.Sprintf(`Write a clean summary in exactly 2-3 sentences. %s

Constraints:
- No intro like "Here is a summary".
- No disclaimers.
- Output ONLY the summary text.

DOCUMENT:
%s
`, language.Detect(clean).Directive(), clean)

	out, err := s.gen.Generate(ctx, ownerID, "summarize", system, user)
	if err != nil {
		s.logger.Printf("summarize degraded: %v", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// Classify labels the document with one of Labels, falling back to "other"
// on any unexpected answer or generation failure.
func (s *Service) Classify(ctx context.Context, ownerID, text string) string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return DefaultDocumentType
	}
	clean = headRunes(clean, maxClassifyInputChars)

	system := "You are a strict document classifier."
	user := fmt.Sprintf(`Classify this document into one of these labels:
%s

Rules:
- Reply with ONE WORD ONLY (exactly one of the labels).
- No extra text.

DOCUMENT:
%s
`, strings.Join(Labels, ", "), clean)

	out, err := s.gen.Generate(ctx, ownerID, "classify", system, user)
	if err != nil {
		s.logger.Printf("classify degraded: %v", err)
		return DefaultDocumentType
	}
	label := strings.Trim(strings.ToLower(strings.TrimSpace(out)), " .,:;\"'")
	if _, ok := labelSet[label]; !ok {
		return DefaultDocumentType
	}
	return label
}

// GenerateTitle produces a short notebook title from the given context
// text, at most 8 words, cleaned of quote and punctuation noise.
func (s *Service) GenerateTitle(ctx context.Context, ownerID, contextText string) string {
	clean := strings.TrimSpace(contextText)
	if clean == "" {
		return DefaultTitle
	}
	directive := language.Detect(clean).Directive()
	clean = headRunes(clean, maxTitleInputChars)

	system := "You generate short, clear titles for a collection of documents."
	user := fmt.Sprintf(`Generate a concise notebook title (max 8 words).
Rules:
- Output only the title text
- No quotes
- No emojis
- No trailing punctuation
- %s

TEXT:
%s
`, directive, clean)

	out, err := s.gen.Generate(ctx, ownerID, "title", system, user)
	if err != nil {
		s.logger.Printf("title degraded: %v", err)
		return DefaultTitle
	}
	title := strings.TrimSpace(out)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.TrimRight(title, " .,:;\"'`")
	title = headRunes(title, maxTitleLen)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// CombinedTitleAndSummary runs the notebook map-reduce: per-document
// summaries (falling back to a text prefix) feed one title generation and
// one consolidated bullet summary.
func (s *Service) CombinedTitleAndSummary(ctx context.Context, ownerID string, docs []models.Document) (string, string) {
	joined := joinDocSummaries(docs)
	if joined == "" {
		return DefaultTitle, ""
	}

	title := s.GenerateTitle(ctx, ownerID, joined)
	summary := s.combinedSummary(ctx, ownerID, docs, joined)
	return title, summary
}

func (s *Service) combinedSummary(ctx context.Context, ownerID string, docs []models.Document, joined string) string {
	joined = headRunes(joined, maxSummaryInputChars)

	system := "You summarize multiple documents into one consolidated summary."
	user := fmt.Sprintf(`Create a consolidated summary from the document summaries below.

Requirements:
- Output MUST be exactly 4-6 bullet points.
- Use "-" at the start of each bullet.
- No intro, no headings, no extra lines.
- Each bullet captures a key theme across documents.
- %s

DOCUMENT SUMMARIES:
%s
`, voteLanguage(docs).Directive(), joined)

	out, err := s.gen.Generate(ctx, ownerID, "combined", system, user)
	if err != nil {
		s.logger.Printf("combined summary degraded: %v", err)
		return DegradedCombinedSummary
	}
	return strings.TrimSpace(out)
}

// joinDocSummaries renders the map step: one "- file: summary" line per
// document, substituting a flattened text prefix when no summary exists.
func joinDocSummaries(docs []models.Document) string {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		s := strings.TrimSpace(d.Summary)
		if s == "" {
			raw := strings.TrimSpace(strings.ReplaceAll(d.ExtractedText, "\n", " "))
			if raw != "" {
				s = headRunes(raw, 400) + "…"
			}
		}
		if s != "" {
			lines = append(lines, "- "+d.FileName+": "+s)
		}
	}
	return strings.Join(lines, "\n")
}

// voteLanguage picks the majority language across documents, ties going to
// Thai.
func voteLanguage(docs []models.Document) language.Lang {
	votes := map[language.Lang]int{}
	for _, d := range docs {
		txt := strings.TrimSpace(d.Summary)
		if txt == "" {
			txt = strings.TrimSpace(d.ExtractedText)
		}
		votes[language.Detect(txt)]++
	}
	if votes[language.Thai] >= votes[language.English] {
		return language.Thai
	}
	return language.English
}

func headRunes(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

// trimMiddle caps text keeping the head and tail halves around an explicit
// truncation marker.
func trimMiddle(text string, maxChars int) string {
	r := []rune(text)
	if len(r) <= maxChars {
		return text
	}
	half := maxChars / 2
	return string(r[:half]) + "\n\n...[TRUNCATED]...\n\n" + string(r[len(r)-half:])
}
