package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakchai-t/doclens/models"
)

type scriptedGen struct {
	byPurpose map[string]string
	err       error
	calls     []string
	lastUser  string
}

func (g *scriptedGen) Generate(_ context.Context, _, purpose, _, user string) (string, error) {
	g.calls = append(g.calls, purpose)
	g.lastUser = user
	if g.err != nil {
		return "", g.err
	}
	return g.byPurpose[purpose], nil
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{byPurpose: map[string]string{"summarize": "  A short summary.  "}}
	s := NewService(gen, nil)

	got := s.Summarize(context.Background(), "u1", "some document text about invoices")
	if got != "A short summary." {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(gen.lastUser, "Write in English.") {
		t.Fatalf("missing directive:\n%s", gen.lastUser)
	}
}

func TestSummarizeDegradesToEmpty(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{err: errors.New("quota")}
	s := NewService(gen, nil)

	if got := s.Summarize(context.Background(), "u1", "text"); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := s.Summarize(context.Background(), "u1", "   "); got != "" {
		t.Fatalf("empty input: %q", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		answer string
		err    error
		want   string
	}{
		{"clean label", "invoice", nil, "invoice"},
		{"noisy label", " Report. ", nil, "report"},
		{"unknown label", "spreadsheet", nil, "other"},
		{"chatty answer", "This looks like an invoice", nil, "other"},
		{"generation failure", "", errors.New("down"), "other"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gen := &scriptedGen{byPurpose: map[string]string{"classify": tc.answer}, err: tc.err}
			s := NewService(gen, nil)
			if got := s.Classify(context.Background(), "u1", "document body"); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{}
	s := NewService(gen, nil)
	if got := s.Classify(context.Background(), "u1", ""); got != DefaultDocumentType {
		t.Fatalf("got %q", got)
	}
	if len(gen.calls) != 0 {
		t.Fatal("empty input must not reach the backend")
	}
}

func TestGenerateTitle(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{byPurpose: map[string]string{"title": "Quarterly Finance Review.\nExtra line"}}
	s := NewService(gen, nil)

	got := s.GenerateTitle(context.Background(), "u1", "finance reports for Q3")
	if got != "Quarterly Finance Review" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateTitleFallbacks(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{err: errors.New("down")}
	s := NewService(gen, nil)
	if got := s.GenerateTitle(context.Background(), "u1", "text"); got != DefaultTitle {
		t.Fatalf("got %q", got)
	}
	if got := s.GenerateTitle(context.Background(), "u1", ""); got != DefaultTitle {
		t.Fatalf("empty input: %q", got)
	}
}

func TestCombinedTitleAndSummary(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{byPurpose: map[string]string{
		"title":    "Contract Pack",
		"combined": "- theme one\n- theme two\n- theme three\n- theme four",
	}}
	s := NewService(gen, nil)

	docs := []models.Document{
		{FileName: "a.txt", Summary: "First contract summary."},
		{FileName: "b.txt", ExtractedText: "raw body\nof the second document"},
	}
	title, summary := s.CombinedTitleAndSummary(context.Background(), "u1", docs)
	if title != "Contract Pack" {
		t.Fatalf("title = %q", title)
	}
	if !strings.HasPrefix(summary, "- theme one") {
		t.Fatalf("summary = %q", summary)
	}
	// The map step feeds both calls: stored summary for a.txt, text prefix
	// for b.txt.
	if !strings.Contains(gen.lastUser, "- a.txt: First contract summary.") {
		t.Fatalf("map step missing summary line:\n%s", gen.lastUser)
	}
	if !strings.Contains(gen.lastUser, "- b.txt: raw body of the second document…") {
		t.Fatalf("map step missing text fallback:\n%s", gen.lastUser)
	}
}

func TestCombinedTitleAndSummaryNoInput(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{}
	s := NewService(gen, nil)
	title, summary := s.CombinedTitleAndSummary(context.Background(), "u1", nil)
	if title != DefaultTitle || summary != "" {
		t.Fatalf("got %q %q", title, summary)
	}
	if len(gen.calls) != 0 {
		t.Fatal("no documents must mean no backend calls")
	}
}

func TestCombinedSummaryDegrades(t *testing.T) {
	t.Parallel()
	gen := &scriptedGen{err: errors.New("quota")}
	s := NewService(gen, nil)
	_, summary := s.CombinedTitleAndSummary(context.Background(), "u1", []models.Document{
		{FileName: "a.txt", Summary: "something"},
	})
	if summary != DegradedCombinedSummary {
		t.Fatalf("summary = %q", summary)
	}
}
