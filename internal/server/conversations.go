package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sakchai-t/doclens/internal/chat"
	"github.com/sakchai-t/doclens/internal/store"
	"github.com/sakchai-t/doclens/models"
)

type ConversationsHandler struct {
	Store   *store.Store
	Chat    *chat.Service
	Cancels chat.CancelStore
}

func (h *ConversationsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id/messages", h.messages)
	g.POST("/:id/chat", h.chat)
	g.POST("/:id/chat/stream", h.chatStream)
	g.POST("/:id/chat/cancel", h.cancel)
}

func (h *ConversationsHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var target models.Target
	switch {
	case req.DocumentID > 0 && req.NotebookID > 0:
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of document_id or notebook_id required")
	case req.DocumentID > 0:
		if _, err := h.Store.GetOwnedDocument(c.Request().Context(), req.DocumentID, userID); err != nil {
			return err
		}
		target = models.DocumentTarget(req.DocumentID)
	case req.NotebookID > 0:
		if _, err := h.Store.GetOwnedNotebook(c.Request().Context(), req.NotebookID, userID); err != nil {
			return err
		}
		target = models.NotebookTarget(req.NotebookID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of document_id or notebook_id required")
	}
	conv, err := h.Store.CreateConversation(c.Request().Context(), models.Conversation{
		OwnerID: userID,
		Target:  target,
		Title:   req.Title,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, conv)
}

func (h *ConversationsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ConversationsHandler) messages(c echo.Context) error {
	conv, err := h.ownedConversation(c)
	if err != nil {
		return err
	}
	msgs, err := h.Store.ListMessages(c.Request().Context(), conv.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, msgs)
}

// chat runs one blocking turn: persist the question, answer, persist the
// answer.
func (h *ConversationsHandler) chat(c echo.Context) error {
	conv, err := h.ownedConversation(c)
	if err != nil {
		return err
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	answer, err := h.Chat.AnswerChat(ctx, conv, req.Message)
	if err != nil {
		return err
	}
	if err := h.persistTurn(c, conv.ID, req.Message, answer); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ChatResponse{Answer: answer})
}

// chatStream answers over SSE. The first event carries the request id the
// client needs for the cancel endpoint; each delta is one data event; the
// final event reports done or canceled. Canceled turns are not persisted.
func (h *ConversationsHandler) chatStream(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// Reject blank questions while the response can still carry a 400;
	// after the SSE headers go out errors only fit in stream events.
	if strings.TrimSpace(req.Message) == "" {
		return chat.ErrEmptyQuestion
	}
	conv, err := h.ownedConversation(c)
	if err != nil {
		return err
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	requestID := uuid.NewString()
	writeEvent := func(name string, payload interface{}) error {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", name, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := writeEvent("meta", map[string]string{"request_id": requestID}); err != nil {
		return nil
	}

	shouldStop := func() bool {
		canceled, err := h.Cancels.Canceled(ctx, conv.ID, requestID)
		return err == nil && canceled
	}
	onDelta := func(delta string) error {
		return writeEvent("delta", map[string]string{"delta": delta})
	}

	answer, err := h.Chat.AnswerChatStream(ctx, conv, req.Message, shouldStop, onDelta)
	switch {
	case errors.Is(err, chat.ErrCanceled):
		_ = writeEvent("done", map[string]interface{}{"canceled": true})
		return nil
	case err != nil:
		_, msg := mapError(err)
		_ = writeEvent("error", map[string]string{"error": msg})
		return nil
	}
	if perr := h.persistTurn(c, conv.ID, req.Message, answer); perr != nil {
		_ = writeEvent("error", map[string]string{"error": perr.Error()})
		return nil
	}
	_ = writeEvent("done", map[string]interface{}{"answer": answer})
	return nil
}

func (h *ConversationsHandler) cancel(c echo.Context) error {
	conv, err := h.ownedConversation(c)
	if err != nil {
		return err
	}
	var req CancelChatRequest
	if err := c.Bind(&req); err != nil || req.RequestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request_id required")
	}
	if err := h.Cancels.RequestCancel(c.Request().Context(), conv.ID, req.RequestID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *ConversationsHandler) ownedConversation(c echo.Context) (models.Conversation, error) {
	userID := c.Get("user_id").(string)
	id, err := parseID(c.Param("id"))
	if err != nil {
		return models.Conversation{}, echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
	}
	return h.Store.GetOwnedConversation(c.Request().Context(), id, userID)
}

func (h *ConversationsHandler) persistTurn(c echo.Context, conversationID int64, question, answer string) error {
	ctx := c.Request().Context()
	if _, err := h.Store.AppendMessage(ctx, models.Message{
		ConversationID: conversationID, Role: models.RoleUser, Content: question,
	}); err != nil {
		return err
	}
	_, err := h.Store.AppendMessage(ctx, models.Message{
		ConversationID: conversationID, Role: models.RoleAssistant, Content: answer,
	})
	return err
}
