package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDocumentNotFound is returned when a document does not exist or is not owned by the caller.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrNotebookNotFound is returned when a notebook does not exist or is not owned by the caller.
	ErrNotebookNotFound = errors.New("notebook not found")
	// ErrConversationNotFound is returned when a conversation does not exist or is not owned by the caller.
	ErrConversationNotFound = errors.New("conversation not found")
)

// DocumentStatus tracks ingestion progress of a document.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusDone       DocumentStatus = "done"
	DocumentStatusError      DocumentStatus = "error"
)

// Document is an uploaded document with its decoded text. Raw file handling
// and text extraction happen upstream; this core only sees clean text.
type Document struct {
	ID            int64          `json:"id"`
	OwnerID       string         `json:"owner_id"`
	FileName      string         `json:"file_name"`
	FileExt       string         `json:"file_ext"`
	ExtractedText string         `json:"extracted_text,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	DocumentType  string         `json:"document_type"`
	WordCount     int            `json:"word_count"`
	CharCount     int            `json:"char_count"`
	Status        DocumentStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	UploadedAt    time.Time      `json:"uploaded_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

// Chunk is one retrievable slice of a document. Indices are 1-based,
// contiguous and unique per document; chunks are replaced as a batch each
// time the document is processed.
type Chunk struct {
	DocumentID int64  `json:"document_id"`
	Index      int    `json:"index"`
	Content    string `json:"content"`
}

// ScoredChunk is a transient retrieval result. It is produced fresh per
// retrieval call and never persisted.
type ScoredChunk struct {
	Index        int     `json:"index"`
	Excerpt      string  `json:"excerpt"`
	Score        float64 `json:"score"`
	MatchedTerms int     `json:"matched_terms"`
}

// Notebook is a named collection of documents with one precomputed combined
// summary, usable as a single chat target.
type Notebook struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Title           string    `json:"title"`
	CombinedSummary string    `json:"combined_summary"`
	DocumentIDs     []int64   `json:"document_ids,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TargetKind discriminates what a conversation is grounded on.
type TargetKind string

const (
	TargetDocument TargetKind = "document"
	TargetNotebook TargetKind = "notebook"
)

// Target is the tagged union identifying what a conversation talks about.
// A conversation always carries exactly one variant; use DocumentTarget or
// NotebookTarget to construct it.
type Target struct {
	kind TargetKind
	id   int64
}

func DocumentTarget(id int64) Target { return Target{kind: TargetDocument, id: id} }
func NotebookTarget(id int64) Target { return Target{kind: TargetNotebook, id: id} }

func (t Target) Kind() TargetKind { return t.kind }
func (t Target) ID() int64        { return t.id }

// Valid reports whether the target carries a variant. The zero Target is
// invalid; stores must reject it rather than fall back to a nullable pair.
func (t Target) Valid() bool {
	return (t.kind == TargetDocument || t.kind == TargetNotebook) && t.id > 0
}

func (t Target) String() string {
	if !t.Valid() {
		return "invalid target"
	}
	return fmt.Sprintf("%s:%d", t.kind, t.id)
}

// MarshalJSON exposes the variant for API responses. Unmarshal is not
// provided; the API layer constructs targets explicitly.
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind TargetKind `json:"kind"`
		ID   int64      `json:"id"`
	}{t.kind, t.id})
}

// Conversation is a chat thread bound to a single target.
type Conversation struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Target    Target    `json:"target"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message roles persisted per conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// GenRequest is a single generation request: a system instruction and one
// user turn. Both generation backends take the same shape.
type GenRequest struct {
	System string
	User   string
}

// GenUsage is the token accounting for one call. Estimated marks counts
// derived from character length rather than reported by the backend.
type GenUsage struct {
	InputTokens  int64
	OutputTokens int64
	Estimated    bool
}

// Total returns input plus output tokens.
func (u GenUsage) Total() int64 { return u.InputTokens + u.OutputTokens }

// GenResult is a completed non-streaming generation.
type GenResult struct {
	Text  string
	Usage GenUsage
}

// StreamEvent is one element of a generation stream. Delta events carry
// text; the terminal event has Done set and carries either final usage or
// Err.
type StreamEvent struct {
	Delta string
	Done  bool
	Usage GenUsage
	Err   error
}

// EstimateTokens is the shared token-count heuristic, roughly four
// characters per token, never below one.
func EstimateTokens(text string) int64 {
	n := int64(len(text)) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// CallRecord is the append-only audit row written once per generation
// attempt. It is never read back by the pipeline.
type CallRecord struct {
	OwnerID      string        `json:"owner_id"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Purpose      string        `json:"purpose"`
	OK           bool          `json:"ok"`
	Error        string        `json:"error,omitempty"`
	Latency      time.Duration `json:"latency"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	CreatedAt    time.Time     `json:"created_at"`
}

// PurposeStatus reports one purpose bucket's daily token budget for client
// display.
type PurposeStatus struct {
	Purpose        string  `json:"purpose"`
	Budget         int64   `json:"budget"`
	Spent          int64   `json:"spent"`
	Remaining      int64   `json:"remaining"`
	RemainingRatio float64 `json:"remaining_ratio"`
}
