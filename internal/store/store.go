// Package store is the relational persistence layer: users, documents,
// chunks, notebooks, conversations, messages and the generation call log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/models"
)

type Store struct {
	DB *sql.DB
}

// New constructs the Store from config.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`, email, hash).Scan(&id)
	return id, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Document operations

func (s *Store) CreateDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO documents (owner_id, file_name, file_ext, extracted_text, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, uploaded_at`,
		doc.OwnerID, doc.FileName, doc.FileExt, doc.ExtractedText, models.DocumentStatusPending,
	).Scan(&doc.ID, &doc.UploadedAt)
	if err != nil {
		return models.Document{}, err
	}
	doc.Status = models.DocumentStatusPending
	return doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (models.Document, error) {
	var doc models.Document
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, file_name, file_ext, extracted_text, summary, document_type,
		       word_count, char_count, status, error, uploaded_at, processed_at
		FROM documents WHERE id=$1`, id).Scan(
		&doc.ID, &doc.OwnerID, &doc.FileName, &doc.FileExt, &doc.ExtractedText, &doc.Summary,
		&doc.DocumentType, &doc.WordCount, &doc.CharCount, &doc.Status, &doc.Error,
		&doc.UploadedAt, &doc.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, models.ErrDocumentNotFound
	}
	return doc, err
}

// GetOwnedDocument loads a document only when it belongs to ownerID.
func (s *Store) GetOwnedDocument(ctx context.Context, id int64, ownerID string) (models.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return models.Document{}, err
	}
	if doc.OwnerID != ownerID {
		return models.Document{}, models.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, owner_id, file_name, file_ext, summary, document_type,
		       word_count, char_count, status, error, uploaded_at, processed_at
		FROM documents WHERE owner_id=$1 ORDER BY uploaded_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID, &doc.OwnerID, &doc.FileName, &doc.FileExt, &doc.Summary,
			&doc.DocumentType, &doc.WordCount, &doc.CharCount, &doc.Status, &doc.Error,
			&doc.UploadedAt, &doc.ProcessedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDocument(ctx context.Context, doc models.Document) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE documents
		SET extracted_text=$2, summary=$3, document_type=$4, word_count=$5, char_count=$6,
		    status=$7, error=$8, processed_at=$9
		WHERE id=$1`,
		doc.ID, doc.ExtractedText, doc.Summary, doc.DocumentType, doc.WordCount, doc.CharCount,
		doc.Status, doc.Error, doc.ProcessedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return models.ErrDocumentNotFound
	}
	return err
}

// Chunk operations

// ReplaceChunks swaps a document's chunk set atomically: delete everything,
// insert the new batch, all in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID int64, chunks []models.Chunk) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id=$1`, documentID); err != nil {
		return err
	}
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_chunks (document_id, idx, content) VALUES ($1,$2,$3)`,
			documentID, c.Index, c.Content,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListChunks returns a document's chunks ordered by index.
func (s *Store) ListChunks(ctx context.Context, documentID int64) ([]models.Chunk, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT document_id, idx, content FROM document_chunks WHERE document_id=$1 ORDER BY idx`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.DocumentID, &c.Index, &c.Content); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Notebook operations

func (s *Store) CreateNotebook(ctx context.Context, nb models.Notebook) (models.Notebook, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Notebook{}, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO notebooks (owner_id, title, combined_summary)
		VALUES ($1,$2,$3) RETURNING id, created_at`,
		nb.OwnerID, nb.Title, nb.CombinedSummary,
	).Scan(&nb.ID, &nb.CreatedAt)
	if err != nil {
		return models.Notebook{}, err
	}
	for _, docID := range nb.DocumentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notebook_documents (notebook_id, document_id) VALUES ($1,$2)`,
			nb.ID, docID,
		); err != nil {
			return models.Notebook{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Notebook{}, err
	}
	return nb, nil
}

func (s *Store) GetNotebook(ctx context.Context, id int64) (models.Notebook, error) {
	var nb models.Notebook
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, title, combined_summary, created_at
		FROM notebooks WHERE id=$1`, id).Scan(&nb.ID, &nb.OwnerID, &nb.Title, &nb.CombinedSummary, &nb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notebook{}, models.ErrNotebookNotFound
	}
	if err != nil {
		return models.Notebook{}, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT document_id FROM notebook_documents WHERE notebook_id=$1 ORDER BY document_id`, id)
	if err != nil {
		return models.Notebook{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var docID int64
		if err := rows.Scan(&docID); err != nil {
			return models.Notebook{}, err
		}
		nb.DocumentIDs = append(nb.DocumentIDs, docID)
	}
	return nb, rows.Err()
}

// GetOwnedNotebook loads a notebook only when it belongs to ownerID.
func (s *Store) GetOwnedNotebook(ctx context.Context, id int64, ownerID string) (models.Notebook, error) {
	nb, err := s.GetNotebook(ctx, id)
	if err != nil {
		return models.Notebook{}, err
	}
	if nb.OwnerID != ownerID {
		return models.Notebook{}, models.ErrNotebookNotFound
	}
	return nb, nil
}

func (s *Store) ListNotebooks(ctx context.Context, ownerID string) ([]models.Notebook, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, owner_id, title, combined_summary, created_at
		FROM notebooks WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Notebook
	for rows.Next() {
		var nb models.Notebook
		if err := rows.Scan(&nb.ID, &nb.OwnerID, &nb.Title, &nb.CombinedSummary, &nb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, nb)
	}
	return out, rows.Err()
}

// ListNotebookDocuments returns member documents newest-upload first.
func (s *Store) ListNotebookDocuments(ctx context.Context, notebookID int64) ([]models.Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT d.id, d.owner_id, d.file_name, d.file_ext, d.extracted_text, d.summary,
		       d.document_type, d.word_count, d.char_count, d.status, d.error, d.uploaded_at, d.processed_at
		FROM documents d
		JOIN notebook_documents nd ON nd.document_id = d.id
		WHERE nd.notebook_id=$1
		ORDER BY d.uploaded_at DESC`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID, &doc.OwnerID, &doc.FileName, &doc.FileExt, &doc.ExtractedText, &doc.Summary,
			&doc.DocumentType, &doc.WordCount, &doc.CharCount, &doc.Status, &doc.Error,
			&doc.UploadedAt, &doc.ProcessedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) UpdateNotebookSummary(ctx context.Context, id int64, title, combinedSummary string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE notebooks SET title=$2, combined_summary=$3 WHERE id=$1`, id, title, combinedSummary)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return models.ErrNotebookNotFound
	}
	return err
}

// Conversation operations

// CreateConversation persists the target union as a document/notebook id
// pair constrained to exactly one non-null column.
func (s *Store) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	if !conv.Target.Valid() {
		return models.Conversation{}, fmt.Errorf("conversation target is invalid")
	}
	var docID, nbID sql.NullInt64
	switch conv.Target.Kind() {
	case models.TargetDocument:
		docID = sql.NullInt64{Int64: conv.Target.ID(), Valid: true}
	case models.TargetNotebook:
		nbID = sql.NullInt64{Int64: conv.Target.ID(), Valid: true}
	}
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO conversations (owner_id, document_id, notebook_id, title)
		VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		conv.OwnerID, docID, nbID, conv.Title,
	).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (models.Conversation, error) {
	var conv models.Conversation
	var docID, nbID sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, document_id, notebook_id, title, created_at
		FROM conversations WHERE id=$1`, id).Scan(
		&conv.ID, &conv.OwnerID, &docID, &nbID, &conv.Title, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, models.ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	switch {
	case docID.Valid:
		conv.Target = models.DocumentTarget(docID.Int64)
	case nbID.Valid:
		conv.Target = models.NotebookTarget(nbID.Int64)
	default:
		return models.Conversation{}, fmt.Errorf("conversation %d has no target", id)
	}
	return conv, nil
}

// GetOwnedConversation loads a conversation only when it belongs to ownerID.
func (s *Store) GetOwnedConversation(ctx context.Context, id int64, ownerID string) (models.Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return models.Conversation{}, err
	}
	if conv.OwnerID != ownerID {
		return models.Conversation{}, models.ErrConversationNotFound
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, owner_id, document_id, notebook_id, title, created_at
		FROM conversations WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var docID, nbID sql.NullInt64
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &docID, &nbID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, err
		}
		switch {
		case docID.Valid:
			conv.Target = models.DocumentTarget(docID.Int64)
		case nbID.Valid:
			conv.Target = models.NotebookTarget(nbID.Int64)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// Message operations

func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, role, content)
		VALUES ($1,$2,$3) RETURNING id, created_at`,
		msg.ConversationID, msg.Role, msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns all of a conversation's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id=$1 ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListRecentMessages returns up to limit of the newest messages, reordered
// oldest first for prompt assembly.
func (s *Store) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Call log

// AppendCallRecord writes one audit row for a generation attempt.
func (s *Store) AppendCallRecord(ctx context.Context, rec models.CallRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO llm_call_log (owner_id, provider, model, purpose, ok, error, latency_ms, input_tokens, output_tokens)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.OwnerID, rec.Provider, rec.Model, rec.Purpose, rec.OK, rec.Error,
		rec.Latency.Milliseconds(), rec.InputTokens, rec.OutputTokens,
	)
	return err
}
