package server

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// UploadDocumentRequest carries pre-extracted document text.
type UploadDocumentRequest struct {
	FileName string `json:"file_name"`
	FileExt  string `json:"file_ext"`
	Content  string `json:"content"`
}

// CreateNotebookRequest groups owned documents under one notebook.
type CreateNotebookRequest struct {
	Title       string  `json:"title"`
	DocumentIDs []int64 `json:"document_ids"`
}

// CreateConversationRequest targets exactly one of a document or a notebook.
type CreateConversationRequest struct {
	DocumentID int64  `json:"document_id,omitempty"`
	NotebookID int64  `json:"notebook_id,omitempty"`
	Title      string `json:"title"`
}

// ChatRequest is one chat turn.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the blocking chat reply.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// CancelChatRequest flags a streaming turn for cancellation.
type CancelChatRequest struct {
	RequestID string `json:"request_id"`
}
