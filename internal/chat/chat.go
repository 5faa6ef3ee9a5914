// Package chat turns a conversation plus a question into a grounded prompt
// and orchestrates generation, including streaming with cooperative
// cancellation. The response mode is recomputed per turn, never persisted.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/internal/language"
	"github.com/sakchai-t/doclens/models"
)

const (
	modeDoc     = "doc"
	modeGeneral = "general"

	// gateK is how many chunks the relevance gate looks at before
	// committing to document mode.
	gateK = 3
)

// FallbackAnswer is returned when a stream completes without producing any
// text.
const FallbackAnswer = "Sorry, I couldn't generate a response. Please try again."

// ErrEmptyQuestion rejects blank questions before any ledger check.
var ErrEmptyQuestion = errors.New("question is empty")

// ErrCanceled is the terminal outcome of a canceled stream. It is a normal
// outcome, not a failure: accumulated text is discarded and nothing should
// be persisted as a finalized answer.
var ErrCanceled = errors.New("chat canceled")

// Retriever ranks a document's chunks against a query and judges whether
// the best hits are good enough to ground an answer.
type Retriever interface {
	Retrieve(ctx context.Context, documentID int64, query string, k int) ([]models.ScoredChunk, error)
	Relevant(results []models.ScoredChunk) bool
}

// Generator is the generation gateway surface the chat service needs.
type Generator interface {
	Generate(ctx context.Context, ownerID, purpose, system, user string) (string, error)
	GenerateStream(ctx context.Context, ownerID, purpose, system, user string) (<-chan models.StreamEvent, error)
}

// DocumentStore loads chat target documents.
type DocumentStore interface {
	GetDocument(ctx context.Context, id int64) (models.Document, error)
}

// NotebookStore loads chat target notebooks and their members.
type NotebookStore interface {
	GetNotebook(ctx context.Context, id int64) (models.Notebook, error)
	ListNotebookDocuments(ctx context.Context, notebookID int64) ([]models.Document, error)
}

// MessageStore reads conversation history. ListRecentMessages returns up to
// limit of the newest user/assistant turns, oldest first.
type MessageStore interface {
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error)
}

// Options bundles the tunables the service reads per turn.
type Options struct {
	Chat             config.ChatConfig
	TopK             int
	FallbackLanguage language.Lang
}

// Service is the chat context assembler and streaming orchestrator.
type Service struct {
	cfg       config.ChatConfig
	topK      int
	fallback  language.Lang
	retriever Retriever
	gen       Generator
	docs      DocumentStore
	notebooks NotebookStore
	messages  MessageStore
	logger    *log.Logger
}

// NewService wires the chat service.
func NewService(opts Options, retriever Retriever, gen Generator, docs DocumentStore, notebooks NotebookStore, messages MessageStore, logger *log.Logger) *Service {
	topK := opts.TopK
	if topK <= 0 {
		topK = 6
	}
	fallback := opts.FallbackLanguage
	if fallback != language.Thai && fallback != language.English {
		fallback = language.English
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:       opts.Chat,
		topK:      topK,
		fallback:  fallback,
		retriever: retriever,
		gen:       gen,
		docs:      docs,
		notebooks: notebooks,
		messages:  messages,
		logger:    logger,
	}
}

// AnswerChat runs one blocking chat turn and returns the trimmed answer.
func (s *Service) AnswerChat(ctx context.Context, conv models.Conversation, question string) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return "", ErrEmptyQuestion
	}
	system, user, err := s.assemble(ctx, conv, q)
	if err != nil {
		return "", err
	}
	text, err := s.gen.Generate(ctx, conv.OwnerID, "chat", system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// AnswerChatStream runs one streaming chat turn. Each delta is passed to
// onDelta as it arrives; shouldStop is polled between deltas and a positive
// check discards the accumulated text and returns ErrCanceled. On natural
// completion the accumulated answer is returned for the caller to persist,
// substituting FallbackAnswer when the stream produced nothing.
func (s *Service) AnswerChatStream(ctx context.Context, conv models.Conversation, question string, shouldStop func() bool, onDelta func(delta string) error) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return "", ErrEmptyQuestion
	}
	system, user, err := s.assemble(ctx, conv, q)
	if err != nil {
		return "", err
	}

	streamCtx, stop := context.WithCancel(ctx)
	defer stop()
	events, err := s.gen.GenerateStream(streamCtx, conv.OwnerID, "chat_stream", system, user)
	if err != nil {
		return "", err
	}

	var acc strings.Builder
	for ev := range events {
		if ev.Done {
			if ev.Err != nil {
				return "", ev.Err
			}
			answer := strings.TrimSpace(acc.String())
			if answer == "" {
				return FallbackAnswer, nil
			}
			return answer, nil
		}
		if shouldStop != nil && shouldStop() {
			stop()
			go drain(events)
			return "", ErrCanceled
		}
		acc.WriteString(ev.Delta)
		if onDelta != nil {
			if err := onDelta(ev.Delta); err != nil {
				stop()
				go drain(events)
				return "", err
			}
		}
	}
	return "", fmt.Errorf("stream closed without terminal event")
}

// drain consumes an abandoned stream so its producer can exit.
func drain(events <-chan models.StreamEvent) {
	for range events {
	}
}

// assemble picks the response mode and builds both prompt halves.
func (s *Service) assemble(ctx context.Context, conv models.Conversation, q string) (system, user string, err error) {
	mode := modeGeneral
	contextBlock := ""

	switch conv.Target.Kind() {
	case models.TargetDocument:
		doc, derr := s.docs.GetDocument(ctx, conv.Target.ID())
		if derr != nil {
			return "", "", derr
		}
		relevant, derr := s.documentRelevant(ctx, doc.ID, q)
		if derr != nil {
			return "", "", derr
		}
		if relevant {
			mode = modeDoc
			excerpts, rerr := s.retriever.Retrieve(ctx, doc.ID, q, s.topK)
			if rerr != nil {
				return "", "", rerr
			}
			contextBlock = documentContext(doc, excerpts)
		}
	case models.TargetNotebook:
		nb, nerr := s.notebooks.GetNotebook(ctx, conv.Target.ID())
		if nerr != nil {
			return "", "", nerr
		}
		pooled, perr := s.poolNotebookExcerpts(ctx, nb.ID, q)
		if perr != nil {
			return "", "", perr
		}
		mode = modeDoc
		contextBlock = notebookContext(nb, pooled)
	default:
		return "", "", fmt.Errorf("conversation %d has no valid target", conv.ID)
	}

	history, herr := s.messages.ListRecentMessages(ctx, conv.ID, s.cfg.MaxHistoryTurns*2)
	if herr != nil {
		return "", "", herr
	}

	system = systemPromptGeneral
	if mode == modeDoc {
		system = systemPromptDoc
	}
	user = s.buildUserTurn(mode, s.directive(q, contextBlock), contextBlock, q, history)
	return system, user, nil
}

// documentRelevant gates document mode: greetings and broad questions stay
// general, and the top retrieval hit must clear the relevance floors.
func (s *Service) documentRelevant(ctx context.Context, documentID int64, q string) (bool, error) {
	if looksGeneralQuestion(q) {
		return false, nil
	}
	hits, err := s.retriever.Retrieve(ctx, documentID, q, gateK)
	if err != nil {
		return false, err
	}
	return s.retriever.Relevant(hits), nil
}

// poolNotebookExcerpts retrieves per member document, merges the hits,
// re-sorts by score and caps the pool.
func (s *Service) poolNotebookExcerpts(ctx context.Context, notebookID int64, q string) ([]pooledExcerpt, error) {
	members, err := s.notebooks.ListNotebookDocuments(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	var pooled []pooledExcerpt
	for _, doc := range members {
		hits, err := s.retriever.Retrieve(ctx, doc.ID, q, s.topK)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			pooled = append(pooled, pooledExcerpt{fileName: doc.FileName, chunk: h})
		}
	}
	sort.SliceStable(pooled, func(i, j int) bool {
		if pooled[i].chunk.Score != pooled[j].chunk.Score {
			return pooled[i].chunk.Score > pooled[j].chunk.Score
		}
		return pooled[i].chunk.MatchedTerms > pooled[j].chunk.MatchedTerms
	})
	if len(pooled) > s.topK {
		pooled = pooled[:s.topK]
	}
	return pooled, nil
}

// directive picks the reply-language instruction from the question, falling
// back to the context and then the configured default when the question
// carries no letters at all.
func (s *Service) directive(q, context string) string {
	if hasLetter(q) {
		return language.Detect(q).Directive()
	}
	if hasLetter(context) {
		return language.Detect(context + "\n" + q).Directive()
	}
	return s.fallback.Directive()
}

func hasLetter(text string) bool {
	for _, r := range text {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= 'ก' && r <= 'ฮ') {
			return true
		}
	}
	return false
}

// generalStarts are question openers that should stay conversational even
// when the conversation targets a document.
var generalStarts = []string{
	"สวัสดี", "hello", "hi", "ช่วยคิด", "ไอเดีย", "แนะนำ", "opinion",
	"ทำยังไง", "how to", "what is", "คืออะไร", "แตกต่าง", "ต่างกัน",
}

func looksGeneralQuestion(q string) bool {
	ql := strings.ToLower(strings.TrimSpace(q))
	if ql == "" {
		return true
	}
	for _, prefix := range generalStarts {
		if strings.HasPrefix(ql, prefix) {
			return true
		}
	}
	return false
}
