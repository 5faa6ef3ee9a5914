package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/sakchai-t/doclens/models"
)

type staticSource map[int64][]models.Chunk

func (s staticSource) ListChunks(_ context.Context, documentID int64) ([]models.Chunk, error) {
	return s[documentID], nil
}

func newTestRetriever(chunks ...string) *Retriever {
	src := staticSource{}
	for i, c := range chunks {
		src[1] = append(src[1], models.Chunk{DocumentID: 1, Index: i + 1, Content: c})
	}
	return New(src, Config{})
}

func TestRetrieveInvoiceScenario(t *testing.T) {
	t.Parallel()
	r := newTestRetriever("invoice total 500", "thank you for business")

	got, err := r.Retrieve(context.Background(), 1, "invoice total", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one result")
	}
	if got[0].Index != 1 {
		t.Fatalf("top result index = %d, want 1", got[0].Index)
	}
	if got[0].MatchedTerms != 2 {
		t.Fatalf("matched terms = %d, want 2", got[0].MatchedTerms)
	}
	for _, sc := range got[1:] {
		if sc.Index == 2 && sc.Score >= got[0].Score {
			t.Fatalf("second chunk ranked above the first: %+v", got)
		}
	}
}

func TestRetrieveNoOverlapReturnsEmpty(t *testing.T) {
	t.Parallel()
	r := newTestRetriever("alpha beta gamma", "delta epsilon")

	got, err := r.Retrieve(context.Background(), 1, "quarterly revenue breakdown", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestRetrieveMonotonicity(t *testing.T) {
	t.Parallel()
	base := "the contract covers payment terms"
	more := "payment payment " + base

	ctx := context.Background()
	q := "payment payment schedule"

	rBase := newTestRetriever(base)
	rMore := newTestRetriever(more)

	a, err := rBase.Retrieve(ctx, 1, q, 1)
	if err != nil || len(a) != 1 {
		t.Fatalf("base retrieve: %v %v", a, err)
	}
	b, err := rMore.Retrieve(ctx, 1, q, 1)
	if err != nil || len(b) != 1 {
		t.Fatalf("more retrieve: %v %v", b, err)
	}
	if b[0].Score < a[0].Score {
		t.Fatalf("adding term occurrences decreased score: %f -> %f", a[0].Score, b[0].Score)
	}
}

func TestRetrieveStopWordQueryDegradesGracefully(t *testing.T) {
	t.Parallel()
	r := newTestRetriever("alpha beta gamma")

	// Strict tokenization empties greeting-like queries; the loose fallback
	// keeps scoring running so the caller sees an empty ranking, not an
	// error.
	got, err := r.Retrieve(context.Background(), 1, "what is it", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty ranking, got %+v", got)
	}
}

func TestTokenizeKeepsDigits(t *testing.T) {
	t.Parallel()
	// Single-character tokens drop except digits, ASCII or Thai.
	got := tokenize("invoice 7 the 2567 ๕ ข้อ๑๒")
	want := map[string]bool{"invoice": true, "7": true, "2567": true, "๕": true, "ข้อ๑๒": true}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v", got)
	}
	for _, tok := range got {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, got)
		}
	}
}

func TestRetrieveThaiQuery(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(
		"งบประมาณ โครงการ ปี 2567 รวมทั้งสิ้น 500000 บาท",
		"ขอบคุณสำหรับความร่วมมือ",
	)
	got, err := r.Retrieve(context.Background(), 1, "งบประมาณ โครงการ", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) == 0 || got[0].Index != 1 {
		t.Fatalf("expected Thai budget chunk on top, got %+v", got)
	}
	if got[0].MatchedTerms != 2 {
		t.Fatalf("matched terms = %d, want 2", got[0].MatchedTerms)
	}
}

func TestExcerptWindowing(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("filler words before the needle appears here ", 30) +
		"the payment schedule is net thirty days " +
		strings.Repeat("and trailing filler after the match ", 30)
	r := newTestRetriever(long)

	got, err := r.Retrieve(context.Background(), 1, "payment schedule", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Retrieve: %v %v", got, err)
	}
	ex := got[0].Excerpt
	if !strings.Contains(ex, "payment") {
		t.Fatalf("excerpt lost the matched term: %q", ex)
	}
	if !strings.HasPrefix(ex, "...") || !strings.HasSuffix(ex, "...") {
		t.Fatalf("expected ellipsis markers on both ends: %q", ex)
	}
	if n := len([]rune(ex)); n > 2*260+10 {
		t.Fatalf("excerpt too long: %d runes", n)
	}
}

func TestLengthPenaltyFavorsReferenceLength(t *testing.T) {
	t.Parallel()
	short := "invoice total amounts"
	long := "invoice total amounts " + strings.Repeat("padding text without matches ", 200)
	r := newTestRetriever(short, long)

	got, err := r.Retrieve(context.Background(), 1, "invoice total", 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("Retrieve: %v %v", got, err)
	}
	if got[0].Index != 1 {
		t.Fatalf("expected short chunk ranked first, got %+v", got)
	}
	ratio := got[1].Score / got[0].Score
	if ratio < 0.84 || ratio >= 1.0 {
		t.Fatalf("length penalty out of bounds: ratio %f", ratio)
	}
}

func TestRelevantGating(t *testing.T) {
	t.Parallel()
	r := New(staticSource{}, Config{})

	if r.Relevant(nil) {
		t.Fatal("empty results should not be relevant")
	}
	if r.Relevant([]models.ScoredChunk{{Score: 3.9, MatchedTerms: 3}}) {
		t.Fatal("score below floor should not be relevant")
	}
	if r.Relevant([]models.ScoredChunk{{Score: 10, MatchedTerms: 1}}) {
		t.Fatal("matched terms below floor should not be relevant")
	}
	if !r.Relevant([]models.ScoredChunk{{Score: 4, MatchedTerms: 2}}) {
		t.Fatal("floors met should be relevant")
	}
}
