package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakchai-t/doclens/models"
)

type memStore struct {
	docs       map[int64]models.Document
	chunks     map[int64][]models.Chunk
	replaceErr error
	statuses   []models.DocumentStatus
}

func newMemStore(docs ...models.Document) *memStore {
	s := &memStore{docs: map[int64]models.Document{}, chunks: map[int64][]models.Chunk{}}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memStore) GetDocument(_ context.Context, id int64) (models.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return models.Document{}, models.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *memStore) UpdateDocument(_ context.Context, doc models.Document) error {
	s.docs[doc.ID] = doc
	s.statuses = append(s.statuses, doc.Status)
	return nil
}

func (s *memStore) ReplaceChunks(_ context.Context, documentID int64, chunks []models.Chunk) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.chunks[documentID] = chunks
	return nil
}

type stubAnalyzer struct {
	summary string
	label   string
}

func (a *stubAnalyzer) Summarize(_ context.Context, _, _ string) string { return a.summary }
func (a *stubAnalyzer) Classify(_ context.Context, _, _ string) string  { return a.label }

func TestProcessHappyPath(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("invoice line item with amounts. ", 60)
	store := newMemStore(models.Document{
		ID:            1,
		OwnerID:       "u1",
		FileName:      "inv.txt",
		ExtractedText: text,
		Status:        models.DocumentStatusPending,
	})
	p := NewProcessor(store, &stubAnalyzer{summary: "An invoice.", label: "invoice"}, 900, 150, nil)

	doc, err := p.Process(context.Background(), 1)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if doc.Status != models.DocumentStatusDone {
		t.Fatalf("status = %s", doc.Status)
	}
	if doc.Summary != "An invoice." || doc.DocumentType != "invoice" {
		t.Fatalf("enrichment missing: %+v", doc)
	}
	if doc.WordCount == 0 || doc.CharCount == 0 || doc.ProcessedAt == nil {
		t.Fatalf("counts not recorded: %+v", doc)
	}

	chunks := store.chunks[1]
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i+1 {
			t.Fatalf("chunk indices must be 1-based contiguous, got %d at %d", c.Index, i)
		}
		if c.Content == "" {
			t.Fatalf("empty chunk at %d", i)
		}
	}

	// Status went pending -> processing -> done.
	if store.statuses[0] != models.DocumentStatusProcessing {
		t.Fatalf("first transition = %s", store.statuses[0])
	}
}

func TestProcessReplaceFailureMarksError(t *testing.T) {
	t.Parallel()
	store := newMemStore(models.Document{ID: 1, OwnerID: "u1", ExtractedText: "some text"})
	store.replaceErr = errors.New("db down")
	p := NewProcessor(store, nil, 0, -1, nil)

	doc, err := p.Process(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if doc.Status != models.DocumentStatusError || doc.Error == "" {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestProcessWithoutAnalyzer(t *testing.T) {
	t.Parallel()
	store := newMemStore(models.Document{ID: 1, OwnerID: "u1", ExtractedText: "plain text body"})
	p := NewProcessor(store, nil, 900, 150, nil)

	doc, err := p.Process(context.Background(), 1)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if doc.Summary != "" {
		t.Fatalf("summary should stay empty, got %q", doc.Summary)
	}
	if doc.DocumentType != "other" {
		t.Fatalf("type = %q", doc.DocumentType)
	}
}

func TestProcessUnknownDocument(t *testing.T) {
	t.Parallel()
	p := NewProcessor(newMemStore(), nil, 900, 150, nil)
	if _, err := p.Process(context.Background(), 99); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Fatalf("err = %v", err)
	}
}
