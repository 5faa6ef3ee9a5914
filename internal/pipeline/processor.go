// Package pipeline runs document ingestion: chunking, chunk replacement and
// LLM enrichment, with document status tracking the run.
package pipeline

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakchai-t/doclens/internal/chunker"
	"github.com/sakchai-t/doclens/internal/telemetry"
	"github.com/sakchai-t/doclens/models"
)

// Store is the document and chunk persistence the processor needs. Chunk
// replacement is all-or-nothing per document.
type Store interface {
	GetDocument(ctx context.Context, id int64) (models.Document, error)
	UpdateDocument(ctx context.Context, doc models.Document) error
	ReplaceChunks(ctx context.Context, documentID int64, chunks []models.Chunk) error
}

// Analyzer is the enrichment surface. Both operations degrade internally
// and never fail the pipeline.
type Analyzer interface {
	Summarize(ctx context.Context, ownerID, text string) string
	Classify(ctx context.Context, ownerID, text string) string
}

// Processor ingests one document at a time.
type Processor struct {
	store     Store
	analyzer  Analyzer
	chunkSize int
	overlap   int
	logger    *log.Logger
}

// NewProcessor wires the processor. analyzer may be nil to skip LLM
// enrichment entirely.
func NewProcessor(store Store, analyzer Analyzer, chunkSize, overlap int, logger *log.Logger) *Processor {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
	}
	if overlap < 0 {
		overlap = chunker.DefaultOverlap
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{store: store, analyzer: analyzer, chunkSize: chunkSize, overlap: overlap, logger: logger}
}

// Process runs the full ingestion for one document: mark processing,
// rebuild chunks from the extracted text, enrich, mark done. Any storage
// failure marks the document as errored and is returned to the caller.
func (p *Processor) Process(ctx context.Context, documentID int64) (models.Document, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return models.Document{}, err
	}

	doc.Status = models.DocumentStatusProcessing
	doc.Error = ""
	if err := p.store.UpdateDocument(ctx, doc); err != nil {
		return models.Document{}, err
	}

	if err := p.run(ctx, &doc); err != nil {
		doc.Status = models.DocumentStatusError
		doc.Error = err.Error()
		if uerr := p.store.UpdateDocument(ctx, doc); uerr != nil {
			p.logger.Printf("failed to record error status for document %d: %v", documentID, uerr)
		}
		telemetry.ObserveDocumentProcessed(string(models.DocumentStatusError))
		return doc, err
	}

	telemetry.ObserveDocumentProcessed(string(models.DocumentStatusDone))
	return doc, nil
}

func (p *Processor) run(ctx context.Context, doc *models.Document) error {
	text := chunker.Normalize(doc.ExtractedText)
	doc.WordCount = len(strings.Fields(text))
	doc.CharCount = utf8.RuneCountInString(text)

	pieces := chunker.Chunk(text, p.chunkSize, p.overlap)
	chunks := make([]models.Chunk, 0, len(pieces))
	for i, c := range pieces {
		chunks = append(chunks, models.Chunk{DocumentID: doc.ID, Index: i + 1, Content: c})
	}
	if err := p.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return err
	}

	if p.analyzer != nil && strings.TrimSpace(text) != "" {
		doc.Summary = p.analyzer.Summarize(ctx, doc.OwnerID, text)
		doc.DocumentType = p.analyzer.Classify(ctx, doc.OwnerID, text)
	}
	if doc.DocumentType == "" {
		doc.DocumentType = "other"
	}

	now := time.Now()
	doc.Status = models.DocumentStatusDone
	doc.ProcessedAt = &now
	return p.store.UpdateDocument(ctx, *doc)
}
