// Package retrieval ranks a document's chunks against a query using purely
// lexical signals: weighted term overlap with a matched-term bonus and a
// length penalty. There is no index and no embedding; every call scores the
// document's chunks fresh.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sakchai-t/doclens/models"
)

// ChunkSource is the read side of the chunk store: chunks ordered by index
// for one document.
type ChunkSource interface {
	ListChunks(ctx context.Context, documentID int64) ([]models.Chunk, error)
}

// Config holds the scoring knobs. The gating floors are heuristics, so they
// live in configuration rather than as constants.
type Config struct {
	// MinScore is the relevance-gate floor on the top result's score.
	MinScore float64
	// MinMatchedTerms is the relevance-gate floor on matched query terms.
	MinMatchedTerms int
	// ReferenceLength is the chunk length (runes) the length penalty favors.
	ReferenceLength int
	// ExcerptRadius is how many runes around the first matched term the
	// returned excerpt keeps on each side.
	ExcerptRadius int
}

// DefaultConfig mirrors the tuned values the chat layer gates with.
func DefaultConfig() Config {
	return Config{
		MinScore:        4,
		MinMatchedTerms: 2,
		ReferenceLength: 900,
		ExcerptRadius:   260,
	}
}

const (
	overlapWeight    = 2.0
	matchedBonus     = 1.2
	minLengthPenalty = 0.85
)

// Retriever scores chunks for queries.
type Retriever struct {
	source ChunkSource
	cfg    Config
}

// New returns a Retriever over the given chunk source. Zero config fields
// fall back to defaults.
func New(source ChunkSource, cfg Config) *Retriever {
	def := DefaultConfig()
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if cfg.MinMatchedTerms <= 0 {
		cfg.MinMatchedTerms = def.MinMatchedTerms
	}
	if cfg.ReferenceLength <= 0 {
		cfg.ReferenceLength = def.ReferenceLength
	}
	if cfg.ExcerptRadius <= 0 {
		cfg.ExcerptRadius = def.ExcerptRadius
	}
	return &Retriever{source: source, cfg: cfg}
}

// Retrieve returns up to k chunks of the document ranked by descending
// score. Chunks with no term overlap are excluded outright. Queries that the
// strict tokenizer empties out degrade to a loose tokenization instead of
// erroring.
func (r *Retriever) Retrieve(ctx context.Context, documentID int64, query string, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		k = 6
	}
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		qTokens = tokenizeLoose(query)
	}
	if len(qTokens) == 0 {
		return nil, nil
	}
	qtf := termFreq(qTokens)

	chunks, err := r.source.ListChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for document %d: %w", documentID, err)
	}

	var scored []models.ScoredChunk
	for _, ch := range chunks {
		sc, ok := r.scoreChunk(ch, qtf)
		if ok {
			scored = append(scored, sc)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].MatchedTerms > scored[j].MatchedTerms
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Relevant applies the gating rule deciding document-grounded vs general
// conversation: the top result must clear both the score and matched-term
// floors.
func (r *Retriever) Relevant(results []models.ScoredChunk) bool {
	if len(results) == 0 {
		return false
	}
	top := results[0]
	return top.Score >= r.cfg.MinScore && top.MatchedTerms >= r.cfg.MinMatchedTerms
}

func (r *Retriever) scoreChunk(ch models.Chunk, qtf map[string]int) (models.ScoredChunk, bool) {
	ctf := termFreq(tokenize(ch.Content))
	if len(ctf) == 0 {
		return models.ScoredChunk{}, false
	}

	raw := 0.0
	matched := 0
	overlapping := make(map[string]int, len(qtf))
	for term, qn := range qtf {
		cn, ok := ctf[term]
		if !ok {
			continue
		}
		matched++
		overlapping[term] = cn
		n := cn
		if qn < n {
			n = qn
		}
		raw += float64(n) * overlapWeight
	}
	if matched == 0 {
		return models.ScoredChunk{}, false
	}

	score := (raw + float64(matched)*matchedBonus) * r.lengthPenalty(ch.Content)
	return models.ScoredChunk{
		Index:        ch.Index,
		Excerpt:      r.excerpt(ch.Content, overlapping),
		Score:        score,
		MatchedTerms: matched,
	}, true
}

// lengthPenalty discounts chunks much longer than the reference length so
// they cannot dominate purely by size. Clamped to [0.85, 1.0].
func (r *Retriever) lengthPenalty(content string) float64 {
	n := len([]rune(content))
	if n <= r.cfg.ReferenceLength {
		return 1.0
	}
	p := float64(r.cfg.ReferenceLength) / float64(n)
	if p < minLengthPenalty {
		return minLengthPenalty
	}
	return p
}

// excerpt windows the chunk content around the first occurrence of any
// matched term, marking truncation with ellipses. This bounds prompt size
// downstream.
func (r *Retriever) excerpt(content string, terms map[string]int) string {
	runes := []rune(content)
	if len(runes) <= 2*r.cfg.ExcerptRadius {
		return strings.TrimSpace(content)
	}

	center := 0
	if off := firstOccurrence(content, terms); off >= 0 {
		center = len([]rune(content[:off]))
	}

	lo := center - r.cfg.ExcerptRadius
	if lo < 0 {
		lo = 0
	}
	hi := center + r.cfg.ExcerptRadius
	if hi > len(runes) {
		hi = len(runes)
	}

	out := strings.TrimSpace(string(runes[lo:hi]))
	if lo > 0 {
		out = "..." + out
	}
	if hi < len(runes) {
		out += "..."
	}
	return out
}
