package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/internal/language"
	"github.com/sakchai-t/doclens/models"
)

type fakeRetriever struct {
	hits     map[int64][]models.ScoredChunk
	relevant bool
	calls    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, documentID int64, _ string, k int) ([]models.ScoredChunk, error) {
	f.calls++
	hits := f.hits[documentID]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeRetriever) Relevant(_ []models.ScoredChunk) bool { return f.relevant }

type fakeGen struct {
	system string
	user   string
	text   string
	events []models.StreamEvent
}

func (f *fakeGen) Generate(_ context.Context, _, _, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.text, nil
}

func (f *fakeGen) GenerateStream(_ context.Context, _, _, system, user string) (<-chan models.StreamEvent, error) {
	f.system, f.user = system, user
	ch := make(chan models.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			ch <- ev
		}
	}()
	return ch, nil
}

type fakeDocs struct{ doc models.Document }

func (f *fakeDocs) GetDocument(_ context.Context, _ int64) (models.Document, error) {
	return f.doc, nil
}

type fakeNotebooks struct {
	nb      models.Notebook
	members []models.Document
}

func (f *fakeNotebooks) GetNotebook(_ context.Context, _ int64) (models.Notebook, error) {
	return f.nb, nil
}

func (f *fakeNotebooks) ListNotebookDocuments(_ context.Context, _ int64) ([]models.Document, error) {
	return f.members, nil
}

type fakeMessages struct{ history []models.Message }

func (f *fakeMessages) ListRecentMessages(_ context.Context, _ int64, limit int) ([]models.Message, error) {
	if len(f.history) > limit {
		return f.history[len(f.history)-limit:], nil
	}
	return f.history, nil
}

func testOptions() Options {
	return Options{
		Chat: config.ChatConfig{
			MaxContextChars: 12000,
			MaxHistoryChars: 4000,
			MaxHistoryTurns: 8,
		},
		TopK:             6,
		FallbackLanguage: language.English,
	}
}

func newTestService(retr *fakeRetriever, gen *fakeGen, docs *fakeDocs, notebooks *fakeNotebooks, msgs *fakeMessages) *Service {
	if msgs == nil {
		msgs = &fakeMessages{}
	}
	return NewService(testOptions(), retr, gen, docs, notebooks, msgs, nil)
}

func docConversation() models.Conversation {
	return models.Conversation{ID: 1, OwnerID: "u1", Target: models.DocumentTarget(10)}
}

func TestAnswerChatEmptyQuestion(t *testing.T) {
	t.Parallel()
	s := newTestService(&fakeRetriever{}, &fakeGen{}, &fakeDocs{}, nil, nil)
	if _, err := s.AnswerChat(context.Background(), docConversation(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("err = %v", err)
	}
}

func TestAnswerChatDocumentMode(t *testing.T) {
	t.Parallel()
	retr := &fakeRetriever{
		relevant: true,
		hits: map[int64][]models.ScoredChunk{
			10: {{Index: 3, Excerpt: "invoice total is 500", Score: 9, MatchedTerms: 2}},
		},
	}
	gen := &fakeGen{text: "The total is 500 [C3]."}
	docs := &fakeDocs{doc: models.Document{ID: 10, Summary: "an invoice"}}

	s := newTestService(retr, gen, docs, nil, nil)
	got, err := s.AnswerChat(context.Background(), docConversation(), "invoice total?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got != "The total is 500 [C3]." {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(gen.system, "provided CONTEXT") {
		t.Fatalf("system prompt = %q", gen.system)
	}
	for _, want := range []string{"CONTEXT:", "SUMMARY:\nan invoice", "[C3] invoice total is 500", "USER QUESTION:\ninvoice total?", "Write in English."} {
		if !strings.Contains(gen.user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, gen.user)
		}
	}
}

func TestAnswerChatGeneralModeForGreeting(t *testing.T) {
	t.Parallel()
	retr := &fakeRetriever{relevant: true}
	gen := &fakeGen{text: "hello!"}
	s := newTestService(retr, gen, &fakeDocs{doc: models.Document{ID: 10}}, nil, nil)

	if _, err := s.AnswerChat(context.Background(), docConversation(), "hello there"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if retr.calls != 0 {
		t.Fatalf("greeting must skip retrieval, got %d calls", retr.calls)
	}
	if !strings.Contains(gen.system, "Reply naturally") {
		t.Fatalf("system prompt = %q", gen.system)
	}
	if strings.Contains(gen.user, "CONTEXT:") {
		t.Fatal("general mode must not carry a context block")
	}
}

func TestAnswerChatGeneralModeWhenNotRelevant(t *testing.T) {
	t.Parallel()
	retr := &fakeRetriever{relevant: false}
	gen := &fakeGen{text: "sure"}
	s := newTestService(retr, gen, &fakeDocs{doc: models.Document{ID: 10}}, nil, nil)

	if _, err := s.AnswerChat(context.Background(), docConversation(), "จำนวนเงินรวมเท่าไร"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(gen.system, "Reply naturally") {
		t.Fatalf("system prompt = %q", gen.system)
	}
	if !strings.Contains(gen.user, "Write in Thai.") {
		t.Fatalf("expected Thai directive:\n%s", gen.user)
	}
}

func TestAnswerChatNotebookPoolsAndCaps(t *testing.T) {
	t.Parallel()
	retr := &fakeRetriever{
		relevant: true,
		hits: map[int64][]models.ScoredChunk{
			1: {
				{Index: 1, Excerpt: "alpha", Score: 5, MatchedTerms: 2},
				{Index: 2, Excerpt: "beta", Score: 3, MatchedTerms: 1},
			},
			2: {
				{Index: 1, Excerpt: "gamma", Score: 8, MatchedTerms: 3},
			},
		},
	}
	gen := &fakeGen{text: "ok"}
	notebooks := &fakeNotebooks{
		nb: models.Notebook{ID: 7, Title: "Contracts", CombinedSummary: "two contracts"},
		members: []models.Document{
			{ID: 1, FileName: "a.txt"},
			{ID: 2, FileName: "b.txt"},
		},
	}
	s := newTestService(retr, gen, &fakeDocs{}, notebooks, nil)

	conv := models.Conversation{ID: 2, OwnerID: "u1", Target: models.NotebookTarget(7)}
	if _, err := s.AnswerChat(context.Background(), conv, "contract terms"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(gen.user, "NOTEBOOK TITLE:\nContracts") {
		t.Fatalf("missing notebook title:\n%s", gen.user)
	}
	// Highest score across documents comes first after re-sorting.
	gamma := strings.Index(gen.user, "(b.txt) gamma")
	alpha := strings.Index(gen.user, "(a.txt) alpha")
	if gamma < 0 || alpha < 0 || gamma > alpha {
		t.Fatalf("pooled excerpts not re-sorted by score:\n%s", gen.user)
	}
}

func TestAnswerChatHistoryBlock(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{text: "ok"}
	msgs := &fakeMessages{history: []models.Message{
		{Role: models.RoleUser, Content: "first question"},
		{Role: models.RoleAssistant, Content: "first answer"},
	}}
	s := newTestService(&fakeRetriever{}, gen, &fakeDocs{doc: models.Document{ID: 10}}, nil, msgs)

	if _, err := s.AnswerChat(context.Background(), docConversation(), "hello again"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(gen.user, "CHAT HISTORY (most recent):\nUSER: first question\nASSISTANT: first answer") {
		t.Fatalf("history block missing:\n%s", gen.user)
	}
}

func TestAnswerChatStreamAccumulates(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{events: []models.StreamEvent{
		{Delta: "The answer "},
		{Delta: "is 42."},
		{Done: true, Usage: models.GenUsage{InputTokens: 3, OutputTokens: 2}},
	}}
	s := newTestService(&fakeRetriever{}, gen, &fakeDocs{doc: models.Document{ID: 10}}, nil, nil)

	var seen []string
	got, err := s.AnswerChatStream(context.Background(), docConversation(), "hello", nil, func(d string) error {
		seen = append(seen, d)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "The answer is 42." {
		t.Fatalf("got %q", got)
	}
	if len(seen) != 2 {
		t.Fatalf("deltas = %v", seen)
	}
}

func TestAnswerChatStreamFallbackWhenEmpty(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{events: []models.StreamEvent{{Done: true}}}
	s := newTestService(&fakeRetriever{}, gen, &fakeDocs{doc: models.Document{ID: 10}}, nil, nil)

	got, err := s.AnswerChatStream(context.Background(), docConversation(), "hello", nil, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != FallbackAnswer {
		t.Fatalf("got %q", got)
	}
}

func TestAnswerChatStreamCancelStopsWithinOneDelta(t *testing.T) {
	t.Parallel()
	events := make([]models.StreamEvent, 0, 11)
	for i := 0; i < 10; i++ {
		events = append(events, models.StreamEvent{Delta: "x"})
	}
	events = append(events, models.StreamEvent{Done: true})
	gen := &fakeGen{events: events}
	s := newTestService(&fakeRetriever{}, gen, &fakeDocs{doc: models.Document{ID: 10}}, nil, nil)

	var delivered int
	stop := false
	got, err := s.AnswerChatStream(context.Background(), docConversation(), "hello",
		func() bool { return stop },
		func(string) error {
			delivered++
			if delivered == 2 {
				stop = true
			}
			return nil
		})
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v", err)
	}
	if got != "" {
		t.Fatalf("canceled stream must not return text, got %q", got)
	}
	if delivered != 2 {
		t.Fatalf("expected cancellation within one delta of the flag, delivered %d", delivered)
	}
}

func TestAnswerChatStreamTerminalError(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("upstream died")
	gen := &fakeGen{events: []models.StreamEvent{
		{Delta: "partial"},
		{Done: true, Err: wantErr},
	}}
	s := newTestService(&fakeRetriever{}, gen, &fakeDocs{doc: models.Document{ID: 10}}, nil, nil)

	_, err := s.AnswerChatStream(context.Background(), docConversation(), "hello", nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestTrimMiddle(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := trimMiddle(long, 20)
	if !strings.Contains(got, "[TRUNCATED]") {
		t.Fatalf("got %q", got)
	}
	if !strings.HasPrefix(got, "aaaaaaaaaa") || !strings.HasSuffix(got, "bbbbbbbbbb") {
		t.Fatalf("head/tail not preserved: %q", got)
	}
	if trimMiddle("short", 20) != "short" {
		t.Fatal("short text must pass through")
	}
}

func TestMemoryCancelStore(t *testing.T) {
	t.Parallel()
	store := NewMemoryCancelStore(time.Minute)
	ctx := context.Background()

	ok, err := store.Canceled(ctx, 1, "req")
	if err != nil || ok {
		t.Fatalf("fresh key: %v %v", ok, err)
	}
	if err := store.RequestCancel(ctx, 1, "req"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	ok, err = store.Canceled(ctx, 1, "req")
	if err != nil || !ok {
		t.Fatalf("after cancel: %v %v", ok, err)
	}
	// Other requests are unaffected.
	if ok, _ := store.Canceled(ctx, 1, "other"); ok {
		t.Fatal("unrelated request flagged")
	}
}
